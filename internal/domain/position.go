package domain

import "time"

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeDecision is the only thing handed to the order dispatcher.
type TradeDecision struct {
	Instrument     string  `json:"instrument"`
	Broker         string  `json:"broker"`
	Side           Side    `json:"side"`
	Size           float64 `json:"size"`
	ReferencePrice float64 `json:"reference_price"`
	StopLoss       float64 `json:"stop_loss,omitempty"`
	TakeProfit     float64 `json:"take_profit,omitempty"`
	Confidence     float64 `json:"confidence"`
}

type TradeStatus string

const (
	StatusFilled  TradeStatus = "filled"
	StatusFailed  TradeStatus = "failed"
	StatusSkipped TradeStatus = "skipped"
)

// TradeResult is terminal. Once appended to the ledger it is never changed.
type TradeResult struct {
	ID          string      `json:"id" db:"id"`
	Instrument  string      `json:"instrument" db:"instrument"`
	Broker      string      `json:"broker" db:"broker"`
	Side        Side        `json:"side" db:"side"`
	Size        float64     `json:"size" db:"size"`
	Price       float64     `json:"price" db:"price"`
	RealizedPnL float64     `json:"realized_pnl_usd" db:"realized_pnl"`
	Status      TradeStatus `json:"status" db:"status"`
	Reason      string      `json:"reason,omitempty" db:"reason"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}
