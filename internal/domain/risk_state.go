package domain

import "time"

// RiskSnapshot is a read-only copy of the gatekeeper's risk state.
type RiskSnapshot struct {
	Day               string    `json:"day" db:"day"`
	DailyStartBalance float64   `json:"daily_start_balance" db:"daily_start_balance"`
	CurrentBalance    float64   `json:"current_balance" db:"current_balance"`
	RealizedPnL       float64   `json:"realized_pnl" db:"realized_pnl"`
	ConsecutiveLosses int       `json:"consecutive_losses" db:"consecutive_losses"`
	TradesLastHour    int       `json:"trades_last_hour" db:"-"`
	ExternalKill      bool      `json:"external_kill" db:"-"`
	Tripped           bool      `json:"tripped" db:"tripped"`
	HaltReason        string    `json:"halt_reason,omitempty" db:"halt_reason"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// Halted reports whether new trades are currently refused.
func (s RiskSnapshot) Halted() bool {
	return s.ExternalKill || s.Tripped
}

// Drawdown is the fractional loss against the day's opening balance.
func (s RiskSnapshot) Drawdown() float64 {
	if s.DailyStartBalance <= 0 {
		return 0
	}
	return 1 - s.CurrentBalance/s.DailyStartBalance
}
