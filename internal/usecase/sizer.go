package usecase

import (
	"math"

	"github.com/vitos/signal_trader/internal/domain"
)

// PositionSizer converts a confidence score into a trade size inside [MinLot, MaxLot], or 0.
type PositionSizer struct {
	risk   domain.RiskConfig
	sizing domain.SizingConfig
}

func NewPositionSizer(risk domain.RiskConfig, sizing domain.SizingConfig) *PositionSizer {
	return &PositionSizer{risk: risk, sizing: sizing}
}

// ParticipationFraction maps a score to the share of the maximum size to use.
func ParticipationFraction(score float64) float64 {
	switch {
	case score < 5.0:
		return 0
	case score < 6.1:
		return 0.5
	case score < 7.6:
		return 0.75
	default:
		return 1.0
	}
}

// Size dispatches to the configured mode.
func (s *PositionSizer) Size(mode domain.SizingMode, class domain.InstrumentClass, score, price, balance float64) float64 {
	if mode == domain.SizingMultiplier {
		return s.Multiplier(class, score, price)
	}
	return s.Tiered(class, score, price, balance)
}

// Tiered sizes from capital allocation: balance * risk * leverage / price, scaled by participation.
func (s *PositionSizer) Tiered(class domain.InstrumentClass, score, price, balance float64) float64 {
	if !s.sizeable(score, price) || balance <= 0 || !finite(balance) {
		return 0
	}
	fraction := ParticipationFraction(score)
	if fraction == 0 {
		return 0
	}
	allocation := balance * s.risk.RiskFraction * s.risk.Leverage / price
	return s.bound(allocation*fraction, class)
}

// Multiplier sizes as base_unit * max(1, score/5).
func (s *PositionSizer) Multiplier(class domain.InstrumentClass, score, price float64) float64 {
	if !s.sizeable(score, price) {
		return 0
	}
	multiplier := math.Max(1, score/5)
	return s.bound(s.sizing.BaseUnit(class)*multiplier, class)
}

func (s *PositionSizer) sizeable(score, price float64) bool {
	return finite(score, price) && score > 0 && price > 0
}

func (s *PositionSizer) bound(size float64, class domain.InstrumentClass) float64 {
	size = round(clamp(size, s.risk.MinLot, s.risk.MaxLot), class.Precision())
	// rounding must not push the size back out of the configured band
	return clamp(size, s.risk.MinLot, s.risk.MaxLot)
}
