package usecase

import (
	"context"
	"time"

	"github.com/vitos/signal_trader/internal/domain"
	"go.uber.org/zap"
)

// KillWatcher mirrors an external kill switch into the gatekeeper.
type KillWatcher struct {
	source   domain.KillSwitchSource
	gate     *Gatekeeper
	interval time.Duration
	logger   *zap.Logger

	last  bool
	known bool
}

func NewKillWatcher(source domain.KillSwitchSource, gate *Gatekeeper, interval time.Duration, logger *zap.Logger) *KillWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &KillWatcher{source: source, gate: gate, interval: interval, logger: logger}
}

// Poll reads the source once. A read error keeps the last known value. When
// the operator clears the flag, a tripped breaker is resumed as well.
func (w *KillWatcher) Poll(ctx context.Context) {
	killed, err := w.source.Read(ctx)
	if err != nil {
		w.logger.Warn("Kill switch read failed", zap.Error(err), zap.Bool("last", w.last))
		return
	}

	w.gate.SetExternalKill(killed)
	if w.known && w.last && !killed && w.gate.Snapshot().Tripped {
		w.logger.Info("Kill switch cleared by operator, resuming")
		w.gate.Resume(ctx)
	}
	w.last = killed
	w.known = true
}

func (w *KillWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
