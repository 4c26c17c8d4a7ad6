package usecase

import (
	"math"

	"github.com/vitos/signal_trader/internal/domain"
)

// ScoreComponents exposes the intermediate terms for logging and tests.
type ScoreComponents struct {
	RSI             float64
	MACD            float64
	Slope           float64
	VolatilityAdj   float64
	Weighted        float64
	TrendMultiplier float64
}

// Score computes the bounded [0,10] confidence of a signal.
func Score(sig domain.Signal) domain.ScoredSignal {
	conf, _ := Confidence(sig.Indicators, sig.Trend)
	return domain.ScoredSignal{
		Signal:     sig,
		Confidence: conf,
		Strength:   StrengthOf(conf),
	}
}

// Confidence is the weighted composite. Missing inputs fall back to neutral values.
func Confidence(ind domain.Indicators, trend domain.Trend) (float64, ScoreComponents) {
	rsi := orDefault(ind.RSI, 50)
	macd := orDefault(ind.MACDHistogram, 0)
	slope := orDefault(ind.EMASlope, 0)
	spike := orDefault(ind.VolatilitySpike, 1)

	var c ScoreComponents

	switch {
	case rsi < 30:
		c.RSI = 8 + (30-rsi)/5
	case rsi > 70:
		c.RSI = 8 + (rsi-70)/5
	default:
		c.RSI = 5 - math.Abs(50-rsi)/10
	}
	c.RSI = clamp(c.RSI, 0, 10)

	c.MACD = clamp(5+3*math.Tanh(2*macd), 0, 10)
	c.Slope = clamp(5+100*slope, 0, 10)

	switch {
	case spike > 1.5:
		c.VolatilityAdj = 2
	case spike < 0.7:
		c.VolatilityAdj = -1
	}

	c.Weighted = 0.4*c.RSI + 0.3*c.MACD + 0.3*c.Slope + c.VolatilityAdj

	c.TrendMultiplier = 1.0
	switch trend {
	case domain.TrendSideways:
		c.TrendMultiplier = 0.7
	case domain.TrendStrong:
		c.TrendMultiplier = 1.1
	}

	return round(clamp(c.Weighted*c.TrendMultiplier, 0, 10), 2), c
}

func StrengthOf(confidence float64) domain.Strength {
	switch {
	case confidence >= 8:
		return domain.StrengthStrong
	case confidence >= 5:
		return domain.StrengthModerate
	default:
		return domain.StrengthWeak
	}
}

func orDefault(v, neutral float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return neutral
	}
	return v
}
