package usecase

import "github.com/vitos/signal_trader/internal/domain"

// Metrics is the narrow set of observations the core reports. The prometheus
// implementation lives in infrastructure/metrics.
type Metrics interface {
	ObserveStage(broker, stage string)
	ObserveTrade(broker string, status domain.TradeStatus)
	ObserveConfidence(broker string, confidence float64)
	BreakerTripped(reason string)
	SetHalted(halted bool)
	SetBalance(balance float64)
}

type nopMetrics struct{}

func (nopMetrics) ObserveStage(string, string)             {}
func (nopMetrics) ObserveTrade(string, domain.TradeStatus) {}
func (nopMetrics) ObserveConfidence(string, float64)       {}
func (nopMetrics) BreakerTripped(string)                   {}
func (nopMetrics) SetHalted(bool)                          {}
func (nopMetrics) SetBalance(float64)                      {}

// NopMetrics discards everything.
func NopMetrics() Metrics { return nopMetrics{} }
