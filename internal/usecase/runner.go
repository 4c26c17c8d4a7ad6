package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vitos/signal_trader/internal/domain"
	"go.uber.org/zap"
)

// Runner drives one pipeline pass per target on every tick.
type Runner struct {
	pipeline   *Pipeline
	gate       *Gatekeeper
	dispatcher *Dispatcher
	targets    []domain.Target
	balanceVia string
	interval   time.Duration
	logger     *zap.Logger
}

func NewRunner(pipeline *Pipeline, gate *Gatekeeper, dispatcher *Dispatcher, targets []domain.Target, balanceVia string, interval time.Duration, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Runner{
		pipeline:   pipeline,
		gate:       gate,
		dispatcher: dispatcher,
		targets:    targets,
		balanceVia: balanceVia,
		interval:   interval,
		logger:     logger,
	}
}

// Run repeats cycles until ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Runner started",
		zap.Int("targets", len(r.targets)),
		zap.Duration("interval", r.interval),
		zap.Bool("dry_run", r.dispatcher.DryRun()))

	for {
		r.RunCycle(ctx)
		select {
		case <-ctx.Done():
			r.logger.Info("Runner stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle processes every target concurrently. A halted gatekeeper skips the
// whole cycle and returns nil.
func (r *Runner) RunCycle(ctx context.Context) []CycleOutcome {
	if snap := r.gate.Snapshot(); snap.Halted() {
		r.logger.Warn("Trading halted, skipping cycle",
			zap.Bool("external_kill", snap.ExternalKill),
			zap.String("reason", snap.HaltReason))
		return nil
	}

	r.refreshBalance(ctx)

	outcomes := make([]CycleOutcome, len(r.targets))
	var wg sync.WaitGroup
	for i, target := range r.targets {
		wg.Add(1)
		go func(i int, target domain.Target) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("Worker panicked",
						zap.String("instrument", target.Instrument),
						zap.String("broker", target.Broker),
						zap.Any("panic", rec))
					outcomes[i] = CycleOutcome{Target: target, Err: fmt.Errorf("worker panic: %v", rec)}
				}
			}()
			outcomes[i] = r.pipeline.Process(ctx, target)
		}(i, target)
	}
	wg.Wait()
	return outcomes
}

func (r *Runner) refreshBalance(ctx context.Context) {
	broker, ok := r.balanceBroker()
	if !ok {
		return
	}
	balance, err := broker.GetBalance(ctx)
	if err != nil {
		r.logger.Warn("Balance refresh failed", zap.String("broker", broker.Name()), zap.Error(err))
		return
	}
	if err := r.gate.ObserveBalance(ctx, balance); err != nil {
		r.logger.Warn("Balance observation", zap.Float64("balance", balance), zap.Error(err))
	}
}

func (r *Runner) balanceBroker() (domain.Broker, bool) {
	if r.dispatcher.DryRun() {
		if paper := r.dispatcher.Paper(); paper != nil {
			return paper, true
		}
	}
	if r.balanceVia == "" {
		return nil, false
	}
	return r.dispatcher.Broker(r.balanceVia)
}
