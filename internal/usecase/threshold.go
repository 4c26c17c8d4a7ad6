package usecase

import "github.com/vitos/signal_trader/internal/domain"

// AdaptiveThreshold returns the minimum confidence needed to act.
// High volatility lowers the bar; the low-liquidity session raises it.
func AdaptiveThreshold(spike float64, hourUTC int, cfg domain.ThresholdConfig) float64 {
	score := cfg.Base
	if orDefault(spike, 1) > cfg.VolatilityBoost {
		score -= 0.5
	}
	if InSession(hourUTC, cfg.LowLiquidityStartHour, cfg.LowLiquidityEndHour) {
		score += 1.0
	}
	return round(clamp(score, cfg.Min, cfg.Max), 2)
}

// InSession reports whether hour falls in [start, end], wrapping past midnight when start > end.
func InSession(hour, start, end int) bool {
	if start <= end {
		return hour >= start && hour <= end
	}
	return hour >= start || hour <= end
}

// Qualifies is the single comparison the pipeline gates on.
func Qualifies(confidence, threshold float64) bool {
	return confidence >= threshold
}
