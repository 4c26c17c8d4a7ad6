package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitos/signal_trader/internal/domain"
)

// Recorder implements usecase.Metrics on its own registry.
type Recorder struct {
	registry *prometheus.Registry

	stages      *prometheus.CounterVec
	trades      *prometheus.CounterVec
	confidence  *prometheus.HistogramVec
	breakerTrip *prometheus.CounterVec
	halted      prometheus.Gauge
	balance     prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_pipeline_stage_total",
			Help: "Pipeline passes by the stage they ended at",
		}, []string{"broker", "stage"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trades_total",
			Help: "Dispatched orders by broker and terminal status",
		}, []string{"broker", "status"}),
		confidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trader_signal_confidence",
			Help:    "Scored signal confidence (0-10)",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		}, []string{"broker"}),
		breakerTrip: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_breaker_trips_total",
			Help: "Circuit breaker trips by reason",
		}, []string{"reason"}),
		halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_halted",
			Help: "1 while new trades are refused",
		}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trader_balance",
			Help: "Last known account balance",
		}),
	}

	r.registry.MustRegister(
		r.stages, r.trades, r.confidence, r.breakerTrip, r.halted, r.balance,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func (r *Recorder) ObserveStage(broker, stage string) {
	r.stages.WithLabelValues(broker, stage).Inc()
}

func (r *Recorder) ObserveTrade(broker string, status domain.TradeStatus) {
	r.trades.WithLabelValues(broker, string(status)).Inc()
}

func (r *Recorder) ObserveConfidence(broker string, confidence float64) {
	r.confidence.WithLabelValues(broker).Observe(confidence)
}

func (r *Recorder) BreakerTripped(reason string) {
	r.breakerTrip.WithLabelValues(reason).Inc()
}

func (r *Recorder) SetHalted(halted bool) {
	if halted {
		r.halted.Set(1)
		return
	}
	r.halted.Set(0)
}

func (r *Recorder) SetBalance(balance float64) {
	r.balance.Set(balance)
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
