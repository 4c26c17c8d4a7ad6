package usecase_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/usecase"
)

func TestConfidence_StrongScenario(t *testing.T) {
	ind := domain.Indicators{RSI: 25, MACDHistogram: 0.002, EMASlope: 0.05, VolatilitySpike: 1.2}

	conf, parts := usecase.Confidence(ind, domain.TrendStrong)
	assert.Equal(t, 8.91, conf)
	assert.Equal(t, 9.0, parts.RSI)
	assert.Equal(t, 10.0, parts.Slope)
	assert.Equal(t, 0.0, parts.VolatilityAdj)
	assert.Equal(t, 1.1, parts.TrendMultiplier)
	assert.Equal(t, domain.StrengthStrong, usecase.StrengthOf(conf))

	scored := usecase.Score(domain.Signal{Indicators: ind, Trend: domain.TrendStrong})
	assert.Equal(t, 8.91, scored.Confidence)
	assert.Equal(t, domain.StrengthStrong, scored.Strength)
}

func TestConfidence_MissingInputsAreNeutral(t *testing.T) {
	nan := math.NaN()
	ind := domain.Indicators{RSI: nan, MACDHistogram: nan, EMASlope: math.Inf(1), VolatilitySpike: nan}

	conf, _ := usecase.Confidence(ind, domain.TrendTrending)
	assert.Equal(t, 5.0, conf)

	conf, _ = usecase.Confidence(domain.NeutralIndicators(), domain.TrendSideways)
	assert.Equal(t, 3.5, conf)
	assert.Equal(t, domain.StrengthWeak, usecase.StrengthOf(conf))
}

func TestConfidence_VolatilityAdjustment(t *testing.T) {
	base := domain.NeutralIndicators()

	hot := base
	hot.VolatilitySpike = 1.6
	conf, _ := usecase.Confidence(hot, domain.TrendTrending)
	assert.Equal(t, 7.0, conf)

	calm := base
	calm.VolatilitySpike = 0.5
	conf, _ = usecase.Confidence(calm, domain.TrendTrending)
	assert.Equal(t, 4.0, conf)
}

func TestConfidence_AlwaysBounded(t *testing.T) {
	rsis := []float64{-50, 0, 10, 29.9, 50, 70.1, 100, 400}
	macds := []float64{-100, -0.5, 0, 0.5, 100}
	slopes := []float64{-10, -0.01, 0, 0.01, 10}
	spikes := []float64{0, 0.5, 1, 1.6, 50}
	trends := []domain.Trend{domain.TrendSideways, domain.TrendTrending, domain.TrendStrong}

	for _, r := range rsis {
		for _, m := range macds {
			for _, s := range slopes {
				for _, v := range spikes {
					for _, tr := range trends {
						conf, _ := usecase.Confidence(domain.Indicators{RSI: r, MACDHistogram: m, EMASlope: s, VolatilitySpike: v}, tr)
						if conf < 0 || conf > 10 {
							t.Fatalf("confidence %v out of range for rsi=%v macd=%v slope=%v spike=%v trend=%s", conf, r, m, s, v, tr)
						}
					}
				}
			}
		}
	}
}

func TestStrengthOf(t *testing.T) {
	assert.Equal(t, domain.StrengthWeak, usecase.StrengthOf(4.99))
	assert.Equal(t, domain.StrengthModerate, usecase.StrengthOf(5))
	assert.Equal(t, domain.StrengthModerate, usecase.StrengthOf(7.99))
	assert.Equal(t, domain.StrengthStrong, usecase.StrengthOf(8))
}
