package domain

import (
	"context"
	"time"
)

// Broker is the capability set every broker adapter exposes.
type Broker interface {
	Name() string
	Class() InstrumentClass
	FetchCandles(ctx context.Context, instrument, timeframe string, count int) ([]Candle, error)
	PlaceOrder(ctx context.Context, decision TradeDecision) (TradeResult, error)
	GetBalance(ctx context.Context) (float64, error)
	Ping(ctx context.Context) bool
}

type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// KillSwitchSource is polled; the core only ever consumes the boolean.
type KillSwitchSource interface {
	Read(ctx context.Context) (bool, error)
}

// KillSwitchWriter is implemented by sources an operator (or the breaker) can flip.
type KillSwitchWriter interface {
	Set(ctx context.Context, reason string) error
	Clear(ctx context.Context) error
}

// CooldownRepository persists the last successful trade time per instrument key.
type CooldownRepository interface {
	LoadCooldowns(ctx context.Context) (map[InstrumentKey]time.Time, error)
	SaveCooldown(ctx context.Context, key InstrumentKey, at time.Time) error
}

// LedgerRepository stores trade results grouped by UTC day (yyyy-mm-dd).
type LedgerRepository interface {
	AppendTradeResult(ctx context.Context, day string, result TradeResult) error
	ListTradeResults(ctx context.Context, day string) ([]TradeResult, error)
}

// RiskStateRepository keeps the day's risk snapshot across restarts.
type RiskStateRepository interface {
	LoadRiskState(ctx context.Context) (*RiskSnapshot, error)
	SaveRiskState(ctx context.Context, snap RiskSnapshot) error
}

// Store bundles every repository the gatekeeper needs.
type Store interface {
	CooldownRepository
	LedgerRepository
	RiskStateRepository
}
