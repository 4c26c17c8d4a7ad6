package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sony/gobreaker"
	"github.com/vitos/signal_trader/internal/domain"
	"go.uber.org/zap"
)

// DispatcherConfig tunes the per-broker circuit breakers.
type DispatcherConfig struct {
	OrderTimeout     time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		OrderTimeout:     15 * time.Second,
		FailureThreshold: 3,
		OpenTimeout:      60 * time.Second,
	}
}

// Dispatcher routes trade decisions to brokers. Each broker sits behind its own
// circuit breaker; in dry-run mode every order goes to the paper broker.
type Dispatcher struct {
	cfg     DispatcherConfig
	logger  *zap.Logger
	metrics Metrics
	timeNow func() time.Time

	mu       sync.RWMutex
	brokers  map[string]domain.Broker
	breakers map[string]*gobreaker.CircuitBreaker
	paper    domain.Broker

	dryRun atomic.Bool
	// modeSeq counts SetDryRun calls so a caller can tell whether someone
	// else changed the mode since it last did.
	modeSeq atomic.Uint64
}

func NewDispatcher(cfg DispatcherConfig, logger *zap.Logger, metrics Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	return &Dispatcher{
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		timeNow:  time.Now,
		brokers:  make(map[string]domain.Broker),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Register adds a broker under its Name().
func (d *Dispatcher) Register(b domain.Broker) {
	name := strings.ToLower(b.Name())
	threshold := d.cfg.FailureThreshold

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     d.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warn("Broker breaker state changed",
				zap.String("broker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	d.brokers[name] = b
	d.breakers[name] = cb
}

// SetPaper installs the broker used for dry-run orders.
func (d *Dispatcher) SetPaper(b domain.Broker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.paper = b
}

// Paper returns the dry-run broker, or nil.
func (d *Dispatcher) Paper() domain.Broker {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.paper
}

func (d *Dispatcher) SetDryRun(on bool) {
	d.modeSeq.Add(1)
	if d.dryRun.Swap(on) != on {
		d.logger.Warn("Dispatcher mode changed", zap.Bool("dry_run", on))
	}
}

func (d *Dispatcher) DryRun() bool {
	return d.dryRun.Load()
}

// ModeSeq increases on every SetDryRun call.
func (d *Dispatcher) ModeSeq() uint64 {
	return d.modeSeq.Load()
}

// Broker looks up a registered broker by name.
func (d *Dispatcher) Broker(name string) (domain.Broker, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.brokers[strings.ToLower(name)]
	return b, ok
}

// Brokers returns every registered broker.
func (d *Dispatcher) Brokers() []domain.Broker {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.Broker, 0, len(d.brokers))
	for _, b := range d.brokers {
		out = append(out, b)
	}
	return out
}

// Dispatch places the order with primary, then fallback. It never returns an
// error: failures come back as a Failed result carrying the reason.
func (d *Dispatcher) Dispatch(ctx context.Context, decision domain.TradeDecision, primary, fallback string) domain.TradeResult {
	if d.DryRun() {
		return d.dispatchPaper(ctx, decision)
	}

	primary = strings.ToLower(primary)
	fallback = strings.ToLower(fallback)

	res, err := d.place(ctx, primary, decision)
	if err == nil {
		return res
	}
	errs := []error{err}

	if fallback != "" && fallback != primary {
		d.logger.Warn("Primary broker failed, trying fallback",
			zap.String("primary", primary),
			zap.String("fallback", fallback),
			zap.String("instrument", decision.Instrument),
			zap.Error(err))
		res, err = d.place(ctx, fallback, decision)
		if err == nil {
			return res
		}
		errs = append(errs, err)
	}

	joined := errors.Join(errs...)
	d.logger.Error("Order dispatch failed",
		zap.String("instrument", decision.Instrument),
		zap.String("broker", primary),
		zap.Error(joined))
	d.metrics.ObserveTrade(primary, domain.StatusFailed)
	return d.failed(decision, primary, joined)
}

func (d *Dispatcher) dispatchPaper(ctx context.Context, decision domain.TradeDecision) domain.TradeResult {
	d.mu.RLock()
	paper := d.paper
	d.mu.RUnlock()

	if paper == nil {
		d.metrics.ObserveTrade("paper", domain.StatusFailed)
		return d.failed(decision, "paper", errors.New("dry run without a paper broker"))
	}
	res, err := d.call(ctx, paper, decision)
	if err != nil {
		d.metrics.ObserveTrade(paper.Name(), domain.StatusFailed)
		return d.failed(decision, paper.Name(), err)
	}
	d.metrics.ObserveTrade(paper.Name(), res.Status)
	return res
}

func (d *Dispatcher) place(ctx context.Context, name string, decision domain.TradeDecision) (domain.TradeResult, error) {
	d.mu.RLock()
	b, ok := d.brokers[name]
	cb := d.breakers[name]
	d.mu.RUnlock()
	if !ok {
		return domain.TradeResult{}, fmt.Errorf("%w: unknown broker %q", domain.ErrBroker, name)
	}

	out, err := cb.Execute(func() (interface{}, error) {
		return d.call(ctx, b, decision)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = domain.NewBrokerError(name, "place_order", 0, err)
		}
		return domain.TradeResult{}, err
	}

	res := out.(domain.TradeResult)
	d.metrics.ObserveTrade(name, res.Status)
	d.logger.Info("Order filled",
		zap.String("id", res.ID),
		zap.String("broker", name),
		zap.String("instrument", res.Instrument),
		zap.String("side", string(res.Side)),
		zap.Float64("size", res.Size),
		zap.Float64("price", res.Price))
	return res, nil
}

// call invokes the adapter with a deadline and turns a panic into an error.
func (d *Dispatcher) call(ctx context.Context, b domain.Broker, decision domain.TradeDecision) (res domain.TradeResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.NewBrokerError(b.Name(), "place_order", 0, fmt.Errorf("panic: %v", r))
		}
	}()

	if d.cfg.OrderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.OrderTimeout)
		defer cancel()
	}

	res, err = b.PlaceOrder(ctx, decision)
	if err != nil {
		return domain.TradeResult{}, err
	}
	if res.Status == "" {
		res.Status = domain.StatusFilled
	}
	if res.Status != domain.StatusFilled {
		return domain.TradeResult{}, domain.NewBrokerError(b.Name(), "place_order", 0,
			fmt.Errorf("order not filled: %s %s", res.Status, res.Reason))
	}
	d.fillDefaults(&res, decision, b.Name())
	return res, nil
}

func (d *Dispatcher) fillDefaults(res *domain.TradeResult, decision domain.TradeDecision, broker string) {
	if res.ID == "" {
		res.ID = ulid.Make().String()
	}
	if res.Instrument == "" {
		res.Instrument = decision.Instrument
	}
	if res.Broker == "" {
		res.Broker = broker
	}
	if res.Side == "" {
		res.Side = decision.Side
	}
	if res.Size == 0 {
		res.Size = decision.Size
	}
	if res.Price == 0 {
		res.Price = decision.ReferencePrice
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = d.timeNow().UTC()
	}
}

func (d *Dispatcher) failed(decision domain.TradeDecision, broker string, err error) domain.TradeResult {
	return domain.TradeResult{
		ID:         ulid.Make().String(),
		Instrument: decision.Instrument,
		Broker:     broker,
		Side:       decision.Side,
		Size:       decision.Size,
		Price:      decision.ReferencePrice,
		Status:     domain.StatusFailed,
		Reason:     err.Error(),
		CreatedAt:  d.timeNow().UTC(),
	}
}
