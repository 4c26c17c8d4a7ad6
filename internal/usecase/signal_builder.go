package usecase

import (
	"fmt"
	"math"
	"time"

	"github.com/vitos/signal_trader/internal/domain"
)

const (
	strongSlope = 0.002
	flatSlope   = 0.0005
)

// BuildSignal turns a candle window into a Signal. A window shorter than
// MinCandles is a data error; a malformed one still produces a neutral
// signal alongside the ErrMalformedInput error.
func BuildSignal(target domain.Target, candles []domain.Candle, risk domain.RiskConfig, now time.Time) (domain.Signal, error) {
	if len(candles) < MinCandles {
		return domain.Signal{}, fmt.Errorf("%w: %s has %d candles, need %d",
			domain.ErrInsufficientData, target.Instrument, len(candles), MinCandles)
	}

	ind, computeErr := ComputeIndicators(candles)
	price := candles[len(candles)-1].Close

	sig := domain.Signal{
		Instrument:     target.Instrument,
		Broker:         target.Broker,
		Indicators:     ind,
		Trend:          TrendFromSlope(ind.EMASlope),
		Side:           domain.SideSell,
		ReferencePrice: price,
		CreatedAt:      now,
	}
	if ind.EMASlope > 0 {
		sig.Side = domain.SideBuy
	}
	sig.StopLoss, sig.TakeProfit = protectiveLevels(sig.Side, price, risk)
	return sig, computeErr
}

func TrendFromSlope(slope float64) domain.Trend {
	abs := math.Abs(slope)
	switch {
	case abs > strongSlope:
		return domain.TrendStrong
	case abs < flatSlope:
		return domain.TrendSideways
	default:
		return domain.TrendTrending
	}
}

func protectiveLevels(side domain.Side, price float64, risk domain.RiskConfig) (stop, take float64) {
	if price <= 0 || !finite(price) {
		return 0, 0
	}
	if side == domain.SideBuy {
		return price * (1 - risk.StopLossPct), price * (1 + risk.TakeProfitPct)
	}
	return price * (1 + risk.StopLossPct), price * (1 - risk.TakeProfitPct)
}
