package domain

// RiskConfig is process wide and fixed for the lifetime of a run.
type RiskConfig struct {
	RiskFraction           float64 `yaml:"risk_fraction"`
	Leverage               float64 `yaml:"leverage"`
	MinLot                 float64 `yaml:"min_lot"`
	MaxLot                 float64 `yaml:"max_lot"`
	StopLossPct            float64 `yaml:"stop_loss_pct"`
	TakeProfitPct          float64 `yaml:"take_profit_pct"`
	MaxTradesPerHour       int     `yaml:"max_trades_per_hour"`
	CooldownSeconds        int     `yaml:"cooldown_seconds"`
	MaxConsecutiveLosses   int     `yaml:"max_consecutive_losses"`
	MaxDailyDrawdown       float64 `yaml:"max_daily_drawdown"`
	DailyProfitTarget      float64 `yaml:"daily_profit_target"`
	ProfitTargetAutoResume bool    `yaml:"profit_target_auto_resume"`
	StartingBalance        float64 `yaml:"starting_balance"`
}

// DefaultRiskConfig mirrors the defaults the bot ships with.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		RiskFraction:         0.12,
		Leverage:             20,
		MinLot:               0.01,
		MaxLot:               1.0,
		StopLossPct:          0.04,
		TakeProfitPct:        0.25,
		MaxTradesPerHour:     25,
		CooldownSeconds:      60,
		MaxConsecutiveLosses: 3,
		MaxDailyDrawdown:     0.10,
		DailyProfitTarget:    0.20,
		StartingBalance:      1000,
	}
}

// ThresholdConfig drives the adaptive score threshold.
type ThresholdConfig struct {
	Base                  float64 `yaml:"base"`
	Min                   float64 `yaml:"min"`
	Max                   float64 `yaml:"max"`
	VolatilityBoost       float64 `yaml:"volatility_boost"`
	LowLiquidityStartHour int     `yaml:"low_liquidity_start_hour"`
	LowLiquidityEndHour   int     `yaml:"low_liquidity_end_hour"`
}

func DefaultThresholdConfig() ThresholdConfig {
	return ThresholdConfig{
		Base:                  6.0,
		Min:                   5.0,
		Max:                   8.0,
		VolatilityBoost:       1.3,
		LowLiquidityStartHour: 0,
		LowLiquidityEndHour:   7,
	}
}

type SizingMode string

const (
	SizingTiered     SizingMode = "tiered"
	SizingMultiplier SizingMode = "multiplier"
)

// SizingConfig holds the base units used by the multiplier mode.
type SizingConfig struct {
	BaseUnitLot    float64 `yaml:"base_unit_lot"`
	BaseUnitCrypto float64 `yaml:"base_unit_crypto"`
	BaseUnitShare  float64 `yaml:"base_unit_share"`
}

func DefaultSizingConfig() SizingConfig {
	return SizingConfig{BaseUnitLot: 0.1, BaseUnitCrypto: 0.001, BaseUnitShare: 1}
}

func (c SizingConfig) BaseUnit(class InstrumentClass) float64 {
	switch class {
	case ClassCrypto:
		return c.BaseUnitCrypto
	case ClassShare:
		return c.BaseUnitShare
	default:
		return c.BaseUnitLot
	}
}
