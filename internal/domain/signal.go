package domain

import "time"

type Trend string

const (
	TrendSideways Trend = "sideways"
	TrendTrending Trend = "trending"
	TrendStrong   Trend = "strong"
)

type Strength string

const (
	StrengthWeak     Strength = "Weak"
	StrengthModerate Strength = "Moderate"
	StrengthStrong   Strength = "Strong"
)

// Indicators holds one reading of every indicator. NaN marks a missing value.
type Indicators struct {
	RSI             float64 `json:"rsi"`
	MACDHistogram   float64 `json:"macd_histogram"`
	EMASlope        float64 `json:"ema_slope"`
	VolatilitySpike float64 `json:"volatility_spike"`
}

// NeutralIndicators is what a malformed window collapses to.
func NeutralIndicators() Indicators {
	return Indicators{RSI: 50, MACDHistogram: 0, EMASlope: 0, VolatilitySpike: 1}
}

type Signal struct {
	Instrument     string     `json:"instrument"`
	Broker         string     `json:"broker"`
	Indicators     Indicators `json:"indicators"`
	Trend          Trend      `json:"trend"`
	Side           Side       `json:"side"`
	ReferencePrice float64    `json:"reference_price"`
	StopLoss       float64    `json:"stop_loss"`
	TakeProfit     float64    `json:"take_profit"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ScoredSignal struct {
	Signal
	Confidence float64  `json:"confidence"`
	Strength   Strength `json:"strength"`
}
