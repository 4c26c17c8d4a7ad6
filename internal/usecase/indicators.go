package usecase

import (
	"fmt"
	"math"

	"github.com/vitos/signal_trader/internal/domain"
)

const (
	RSIPeriod        = 7
	MACDShort        = 6
	MACDLong         = 19
	MACDSignal       = 5
	EMASlopePeriod   = 3
	VolatilityPeriod = 14

	// MinCandles is the smallest window the pipeline will score.
	MinCandles = 30
)

// RSI returns the Wilder-smoothed relative strength index of closes.
// Fewer than period deltas yields the neutral 50.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes)-1 < period {
		return 50.0
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := splitDelta(closes[i] - closes[i-1])
		avgGain += gain
		avgLoss += loss
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		gain, loss := splitDelta(closes[i] - closes[i-1])
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50.0
	case avgLoss == 0:
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

func splitDelta(d float64) (gain, loss float64) {
	if d > 0 {
		return d, 0
	}
	return 0, -d
}

// emaSeries computes an EMA seeded with the first value.
func emaSeries(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(window+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = out[i-1] + alpha*(values[i]-out[i-1])
	}
	return out
}

// MACDHistogram returns the last MACD histogram value, or 0 with fewer than long closes.
func MACDHistogram(closes []float64, short, long, signal int) float64 {
	if len(closes) < long || long <= 0 {
		return 0.0
	}
	emaShort := emaSeries(closes, short)
	emaLong := emaSeries(closes, long)

	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = emaShort[i] - emaLong[i]
	}
	signalLine := emaSeries(macd, signal)
	last := len(closes) - 1
	return macd[last] - signalLine[last]
}

// EMASlope is the relative change of a short EMA over period steps.
func EMASlope(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return 0.0
	}
	ema := emaSeries(closes, period)
	prev := ema[len(ema)-period]
	if prev == 0 {
		return 0.0
	}
	return (ema[len(ema)-1] - prev) / prev
}

// VolatilitySpike compares the mean candle range of the latest period
// against the period before it. Short history or a flat prior window gives 1.0.
func VolatilitySpike(candles []domain.Candle, period int) float64 {
	if period <= 0 || len(candles) <= period*2 {
		return 1.0
	}
	n := len(candles)
	recent := meanRange(candles[n-period:])
	prior := meanRange(candles[n-2*period : n-period])
	if prior == 0 {
		return 1.0
	}
	return round(recent/prior, 2)
}

func meanRange(candles []domain.Candle) float64 {
	var sum float64
	for _, c := range candles {
		sum += c.High - c.Low
	}
	return sum / float64(len(candles))
}

// ComputeIndicators runs every indicator over the window. A malformed window
// returns neutral readings together with an ErrMalformedInput error.
func ComputeIndicators(candles []domain.Candle) (domain.Indicators, error) {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		if !finite(c.Open, c.High, c.Low, c.Close) || c.Close <= 0 || c.High < c.Low {
			return domain.NeutralIndicators(), fmt.Errorf("%w: candle %d", domain.ErrMalformedInput, i)
		}
		closes[i] = c.Close
	}

	return domain.Indicators{
		RSI:             RSI(closes, RSIPeriod),
		MACDHistogram:   MACDHistogram(closes, MACDShort, MACDLong, MACDSignal),
		EMASlope:        EMASlope(closes, EMASlopePeriod),
		VolatilitySpike: VolatilitySpike(candles, VolatilityPeriod),
	}, nil
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
