package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Heartbeat pings the primary broker and forces dry-run after repeated failures.
// It only lifts dry-run it imposed itself, and only while nobody else has
// switched the mode since.
type Heartbeat struct {
	dispatcher  *Dispatcher
	primary     string
	maxFailures int
	interval    time.Duration
	logger      *zap.Logger

	failures  int
	forced    bool
	forcedSeq uint64
}

func NewHeartbeat(dispatcher *Dispatcher, primary string, maxFailures int, interval time.Duration, logger *zap.Logger) *Heartbeat {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Heartbeat{
		dispatcher:  dispatcher,
		primary:     primary,
		maxFailures: maxFailures,
		interval:    interval,
		logger:      logger,
	}
}

// Beat runs one ping and reports whether the broker answered.
func (h *Heartbeat) Beat(ctx context.Context) bool {
	broker, ok := h.dispatcher.Broker(h.primary)
	if !ok {
		return false
	}

	pingCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	if broker.Ping(pingCtx) {
		if h.forced {
			if h.dispatcher.ModeSeq() == h.forcedSeq {
				h.logger.Info("Broker heartbeat recovered, leaving dry run", zap.String("broker", h.primary))
				h.dispatcher.SetDryRun(false)
			} else {
				h.logger.Info("Broker heartbeat recovered, mode was changed by the operator, keeping it",
					zap.String("broker", h.primary),
					zap.Bool("dry_run", h.dispatcher.DryRun()))
			}
			h.forced = false
		}
		h.failures = 0
		return true
	}

	h.failures++
	h.logger.Warn("Broker heartbeat failed",
		zap.String("broker", h.primary),
		zap.Int("failures", h.failures))
	if h.failures >= h.maxFailures && !h.dispatcher.DryRun() {
		h.logger.Error("Broker unreachable, switching to dry run", zap.String("broker", h.primary))
		h.dispatcher.SetDryRun(true)
		h.forced = true
		h.forcedSeq = h.dispatcher.ModeSeq()
	}
	return false
}

func (h *Heartbeat) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Beat(ctx)
		}
	}
}
