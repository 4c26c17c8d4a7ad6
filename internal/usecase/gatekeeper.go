package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/vitos/signal_trader/internal/domain"
	"go.uber.org/zap"
)

const (
	HaltConsecutiveLosses = "max_consecutive_losses"
	HaltDailyDrawdown     = "max_daily_drawdown"
	HaltProfitTarget      = "daily_profit_target"
	HaltManual            = "manual"

	dayLayout    = "2006-01-02"
	minuteLayout = "2006-01-02T15:04"

	persistTimeout = 5 * time.Second
)

// DayKey is the UTC ledger day for t.
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Reservation is a slot held between Reserve and RecordResult.
type Reservation struct {
	Key domain.InstrumentKey
	At  time.Time
	id  uint64
}

type tradeStamp struct {
	id uint64
	at time.Time
}

// Gatekeeper owns the risk state and every cooldown. All reads and writes go
// through its mutex, persistence included.
type Gatekeeper struct {
	risk    domain.RiskConfig
	store   domain.Store
	logger  *zap.Logger
	metrics Metrics
	timeNow func() time.Time

	// OnTrip runs outside the lock after a breaker trips.
	OnTrip func(reason string)

	mu         sync.Mutex
	state      domain.RiskSnapshot
	cooldowns  map[domain.InstrumentKey]time.Time
	lastMinute map[domain.InstrumentKey]string
	pending    map[domain.InstrumentKey]uint64
	trades     []tradeStamp
	nextID     uint64
}

func NewGatekeeper(risk domain.RiskConfig, store domain.Store, logger *zap.Logger, metrics Metrics) *Gatekeeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	g := &Gatekeeper{
		risk:       risk,
		store:      store,
		logger:     logger,
		metrics:    metrics,
		timeNow:    time.Now,
		cooldowns:  make(map[domain.InstrumentKey]time.Time),
		lastMinute: make(map[domain.InstrumentKey]string),
		pending:    make(map[domain.InstrumentKey]uint64),
	}
	g.state = g.freshState(g.timeNow(), risk.StartingBalance)
	return g
}

// SetClock replaces the time source. Tests only.
func (g *Gatekeeper) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.timeNow = now
	g.state.Day = DayKey(now())
}

func (g *Gatekeeper) freshState(now time.Time, balance float64) domain.RiskSnapshot {
	return domain.RiskSnapshot{
		Day:               DayKey(now),
		DailyStartBalance: balance,
		CurrentBalance:    balance,
		UpdatedAt:         now.UTC(),
	}
}

// Restore loads persisted cooldowns and the risk snapshot. Missing records
// leave the defaults in place.
func (g *Gatekeeper) Restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}

	cooldowns, cdErr := g.store.LoadCooldowns(ctx)
	snap, snapErr := g.store.LoadRiskState(ctx)

	g.mu.Lock()
	defer g.mu.Unlock()

	if cdErr == nil {
		for key, at := range cooldowns {
			g.cooldowns[key] = at
			g.lastMinute[key] = at.UTC().Format(minuteLayout)
		}
	}
	if snapErr == nil && snap != nil {
		external := g.state.ExternalKill
		g.state = *snap
		g.state.ExternalKill = external
		g.state.TradesLastHour = 0
		if g.state.DailyStartBalance <= 0 {
			g.state.DailyStartBalance = g.risk.StartingBalance
		}
		if g.state.CurrentBalance <= 0 {
			g.state.CurrentBalance = g.state.DailyStartBalance
		}
	}
	g.rolloverLocked(g.timeNow())
	g.metrics.SetHalted(g.state.Halted())
	g.metrics.SetBalance(g.state.CurrentBalance)

	g.logger.Info("Gatekeeper state restored",
		zap.Int("cooldowns", len(g.cooldowns)),
		zap.String("day", g.state.Day),
		zap.Float64("balance", g.state.CurrentBalance),
		zap.Bool("tripped", g.state.Tripped))

	return errors.Join(cdErr, snapErr)
}

// Check is a read-only pre-check. Order: rollover, kill, hourly limit, cooldown, duplicate.
func (g *Gatekeeper) Check(key domain.InstrumentKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.timeNow()
	g.rolloverLocked(now)
	return g.checkLocked(key, now)
}

func (g *Gatekeeper) checkLocked(key domain.InstrumentKey, now time.Time) error {
	if g.state.Halted() {
		return fmt.Errorf("%w: %s", domain.ErrKilled, g.haltReasonLocked())
	}

	if limit := g.risk.MaxTradesPerHour; limit > 0 {
		if n := g.tradesWithinHourLocked(now); n >= limit {
			return fmt.Errorf("%w: %d trades in the last hour (max %d)", domain.ErrRateLimited, n, limit)
		}
	}

	if _, busy := g.pending[key]; busy {
		return fmt.Errorf("%w: %s has a trade in flight", domain.ErrCooldown, key)
	}
	if last, ok := g.cooldowns[key]; ok && g.risk.CooldownSeconds > 0 {
		window := time.Duration(g.risk.CooldownSeconds) * time.Second
		if elapsed := now.Sub(last); elapsed < window {
			return fmt.Errorf("%w: %s traded %s ago", domain.ErrCooldown, key, elapsed.Truncate(time.Second))
		}
	}

	if g.lastMinute[key] == now.UTC().Format(minuteLayout) {
		return fmt.Errorf("%w: %s already traded this minute", domain.ErrDuplicate, key)
	}
	return nil
}

func (g *Gatekeeper) haltReasonLocked() string {
	switch {
	case g.state.Tripped && g.state.HaltReason != "":
		return g.state.HaltReason
	case g.state.ExternalKill:
		return "kill switch engaged"
	default:
		return "trading halted"
	}
}

// Reserve re-runs Check under the same lock and, on success, holds the key and
// one slot of the hourly budget.
func (g *Gatekeeper) Reserve(key domain.InstrumentKey) (*Reservation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.timeNow()
	g.rolloverLocked(now)
	if err := g.checkLocked(key, now); err != nil {
		return nil, err
	}

	g.nextID++
	id := g.nextID
	g.pending[key] = id
	g.trades = append(g.trades, tradeStamp{id: id, at: now})
	return &Reservation{Key: key, At: now, id: id}, nil
}

// RecordResult settles a reservation. Filled trades start the cooldown and
// feed the breakers; anything else releases the slot. The returned error
// wraps ErrCircuitBreaker when this result tripped a breaker.
func (g *Gatekeeper) RecordResult(ctx context.Context, res *Reservation, result domain.TradeResult) error {
	if res == nil {
		return errors.New("record result: nil reservation")
	}

	g.mu.Lock()
	if g.pending[res.Key] != res.id {
		g.mu.Unlock()
		return fmt.Errorf("record result: reservation for %s is not active", res.Key)
	}
	delete(g.pending, res.Key)

	now := g.timeNow()
	g.rolloverLocked(now)

	var trip string
	switch result.Status {
	case domain.StatusFilled:
		g.cooldowns[res.Key] = now
		g.lastMinute[res.Key] = now.UTC().Format(minuteLayout)
		if g.store != nil {
			if err := g.store.SaveCooldown(ctx, res.Key, now); err != nil {
				g.logger.Error("Failed to persist cooldown", zap.String("key", res.Key.String()), zap.Error(err))
			}
		}
		trip = g.applyPnLLocked(result.RealizedPnL)
	default:
		g.dropStampLocked(res.id)
	}

	if result.Status != domain.StatusSkipped && g.store != nil {
		if err := g.store.AppendTradeResult(ctx, DayKey(now), result); err != nil {
			g.logger.Error("Failed to append trade result", zap.String("id", result.ID), zap.Error(err))
		}
	}
	g.state.UpdatedAt = now.UTC()
	g.saveStateLocked(ctx)
	g.mu.Unlock()

	if trip != "" {
		g.afterTrip(trip)
		return fmt.Errorf("%w: %s", domain.ErrCircuitBreaker, trip)
	}
	return nil
}

func (g *Gatekeeper) applyPnLLocked(pnl float64) string {
	if math.IsNaN(pnl) || math.IsInf(pnl, 0) {
		pnl = 0
	}
	g.state.RealizedPnL += pnl
	g.state.CurrentBalance += pnl
	g.metrics.SetBalance(g.state.CurrentBalance)

	switch {
	case pnl < 0:
		g.state.ConsecutiveLosses++
	default:
		g.state.ConsecutiveLosses = 0
	}
	return g.evaluateBreakersLocked()
}

// evaluateBreakersLocked trips at most once and returns the reason when it did.
func (g *Gatekeeper) evaluateBreakersLocked() string {
	if g.state.Tripped {
		return ""
	}

	var reason string
	switch {
	case g.risk.MaxConsecutiveLosses > 0 && g.state.ConsecutiveLosses >= g.risk.MaxConsecutiveLosses:
		reason = HaltConsecutiveLosses
	case g.risk.MaxDailyDrawdown > 0 && g.state.Drawdown() >= g.risk.MaxDailyDrawdown:
		reason = HaltDailyDrawdown
	case g.risk.DailyProfitTarget > 0 && g.state.DailyStartBalance > 0 &&
		g.state.RealizedPnL >= g.state.DailyStartBalance*g.risk.DailyProfitTarget:
		reason = HaltProfitTarget
	default:
		return ""
	}

	g.state.Tripped = true
	g.state.HaltReason = reason
	g.metrics.BreakerTripped(reason)
	g.metrics.SetHalted(true)
	g.logger.Warn("Circuit breaker tripped",
		zap.String("reason", reason),
		zap.Float64("balance", g.state.CurrentBalance),
		zap.Float64("day_open", g.state.DailyStartBalance),
		zap.Float64("drawdown", g.state.Drawdown()),
		zap.Int("consecutive_losses", g.state.ConsecutiveLosses))
	return reason
}

func (g *Gatekeeper) afterTrip(reason string) {
	if g.OnTrip != nil {
		g.OnTrip(reason)
	}
}

func (g *Gatekeeper) dropStampLocked(id uint64) {
	for i, s := range g.trades {
		if s.id == id {
			g.trades = append(g.trades[:i], g.trades[i+1:]...)
			return
		}
	}
}

func (g *Gatekeeper) tradesWithinHourLocked(now time.Time) int {
	cutoff := now.Add(-time.Hour)
	kept := g.trades[:0]
	for _, s := range g.trades {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	g.trades = kept
	return len(kept)
}

// ObserveBalance records a broker-reported balance and evaluates the drawdown breaker.
func (g *Gatekeeper) ObserveBalance(ctx context.Context, balance float64) error {
	if balance <= 0 || math.IsNaN(balance) || math.IsInf(balance, 0) {
		return fmt.Errorf("%w: balance %v", domain.ErrMalformedInput, balance)
	}

	g.mu.Lock()
	now := g.timeNow()
	g.rolloverLocked(now)
	g.state.CurrentBalance = balance
	if g.state.DailyStartBalance <= 0 {
		g.state.DailyStartBalance = balance
	}
	g.metrics.SetBalance(balance)
	trip := g.evaluateBreakersLocked()
	g.state.UpdatedAt = now.UTC()
	g.saveStateLocked(ctx)
	g.mu.Unlock()

	if trip != "" {
		g.afterTrip(trip)
		return fmt.Errorf("%w: %s", domain.ErrCircuitBreaker, trip)
	}
	return nil
}

// SetExternalKill mirrors the polled kill-switch source.
func (g *Gatekeeper) SetExternalKill(killed bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state.ExternalKill == killed {
		return
	}
	g.state.ExternalKill = killed
	g.metrics.SetHalted(g.state.Halted())
	g.logger.Warn("External kill switch changed", zap.Bool("killed", killed))
}

// Trip halts trading by operator request.
func (g *Gatekeeper) Trip(ctx context.Context, reason string) {
	if reason == "" {
		reason = HaltManual
	}
	g.mu.Lock()
	already := g.state.Tripped
	if !already {
		g.state.Tripped = true
		g.state.HaltReason = reason
		g.metrics.BreakerTripped(reason)
		g.metrics.SetHalted(true)
		g.saveStateLocked(ctx)
	}
	g.mu.Unlock()

	if !already {
		g.logger.Warn("Trading halted", zap.String("reason", reason))
		g.afterTrip(reason)
	}
}

// Resume clears a tripped breaker. The loss streak resets and the drawdown
// anchor moves to the current balance.
func (g *Gatekeeper) Resume(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.state.Tripped {
		return
	}
	reason := g.state.HaltReason
	g.state.Tripped = false
	g.state.HaltReason = ""
	g.state.ConsecutiveLosses = 0
	g.state.DailyStartBalance = g.state.CurrentBalance
	g.state.UpdatedAt = g.timeNow().UTC()
	g.metrics.SetHalted(g.state.Halted())
	g.saveStateLocked(ctx)
	g.logger.Info("Circuit breaker cleared", zap.String("previous_reason", reason))
}

// Snapshot returns a copy of the risk state.
func (g *Gatekeeper) Snapshot() domain.RiskSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.timeNow()
	g.rolloverLocked(now)
	snap := g.state
	snap.TradesLastHour = g.tradesWithinHourLocked(now)
	return snap
}

// CooldownRemaining reports how long key must still wait, or 0.
func (g *Gatekeeper) CooldownRemaining(key domain.InstrumentKey) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.cooldowns[key]
	if !ok {
		return 0
	}
	remaining := time.Duration(g.risk.CooldownSeconds)*time.Second - g.timeNow().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// rolloverLocked starts a new UTC day: the opening balance becomes the current
// balance and the daily counters reset. Only a profit-target halt may clear here.
func (g *Gatekeeper) rolloverLocked(now time.Time) {
	day := DayKey(now)
	if g.state.Day == day {
		return
	}

	prev := g.state.Day
	g.state.Day = day
	g.state.DailyStartBalance = g.state.CurrentBalance
	g.state.RealizedPnL = 0
	g.state.ConsecutiveLosses = 0
	g.state.UpdatedAt = now.UTC()

	if g.state.Tripped && g.state.HaltReason == HaltProfitTarget && g.risk.ProfitTargetAutoResume {
		g.state.Tripped = false
		g.state.HaltReason = ""
		g.metrics.SetHalted(g.state.Halted())
	}

	g.logger.Info("Day rollover",
		zap.String("from", prev),
		zap.String("to", day),
		zap.Float64("day_open", g.state.DailyStartBalance),
		zap.Bool("tripped", g.state.Tripped))

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	g.saveStateLocked(ctx)
}

func (g *Gatekeeper) saveStateLocked(ctx context.Context) {
	if g.store == nil {
		return
	}
	if err := g.store.SaveRiskState(ctx, g.state); err != nil {
		g.logger.Error("Failed to persist risk state", zap.Error(err))
	}
}
