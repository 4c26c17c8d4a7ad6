package usecase_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/vitos/signal_trader/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeBroker is a scriptable domain.Broker.
type fakeBroker struct {
	name    string
	class   domain.InstrumentClass
	candles []domain.Candle
	balance float64
	pnl     float64

	fetchErr   error
	fetchPanic bool
	placeErr   error
	placePanic bool
	pingOK     bool

	mu     sync.Mutex
	placed []domain.TradeDecision
	fetch  int
}

func (b *fakeBroker) Name() string                  { return b.name }
func (b *fakeBroker) Class() domain.InstrumentClass { return b.class }

func (b *fakeBroker) FetchCandles(ctx context.Context, instrument, timeframe string, count int) ([]domain.Candle, error) {
	b.mu.Lock()
	b.fetch++
	b.mu.Unlock()
	if b.fetchPanic {
		panic("feed exploded")
	}
	if b.fetchErr != nil {
		return nil, b.fetchErr
	}
	return b.candles, nil
}

func (b *fakeBroker) PlaceOrder(ctx context.Context, d domain.TradeDecision) (domain.TradeResult, error) {
	b.mu.Lock()
	b.placed = append(b.placed, d)
	b.mu.Unlock()
	if b.placePanic {
		panic("adapter bug")
	}
	if b.placeErr != nil {
		return domain.TradeResult{}, b.placeErr
	}
	return domain.TradeResult{
		Instrument:  d.Instrument,
		Broker:      b.name,
		Side:        d.Side,
		Size:        d.Size,
		Price:       d.ReferencePrice,
		RealizedPnL: b.pnl,
		Status:      domain.StatusFilled,
	}, nil
}

func (b *fakeBroker) GetBalance(ctx context.Context) (float64, error) {
	if b.balance == 0 {
		return 0, errors.New("no balance")
	}
	return b.balance, nil
}

func (b *fakeBroker) Ping(ctx context.Context) bool { return b.pingOK }

func (b *fakeBroker) placedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.placed)
}

func (b *fakeBroker) fetchCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fetch
}

// memStore keeps everything in maps.
type memStore struct {
	mu        sync.Mutex
	cooldowns map[domain.InstrumentKey]time.Time
	ledger    map[string][]domain.TradeResult
	state     *domain.RiskSnapshot
}

func newMemStore() *memStore {
	return &memStore{
		cooldowns: make(map[domain.InstrumentKey]time.Time),
		ledger:    make(map[string][]domain.TradeResult),
	}
}

func (s *memStore) LoadCooldowns(ctx context.Context) (map[domain.InstrumentKey]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.InstrumentKey]time.Time, len(s.cooldowns))
	for k, v := range s.cooldowns {
		out[k] = v
	}
	return out, nil
}

func (s *memStore) SaveCooldown(ctx context.Context, key domain.InstrumentKey, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cooldowns[key] = at
	return nil
}

func (s *memStore) AppendTradeResult(ctx context.Context, day string, r domain.TradeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger[day] = append(s.ledger[day], r)
	return nil
}

func (s *memStore) ListTradeResults(ctx context.Context, day string) ([]domain.TradeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TradeResult(nil), s.ledger[day]...), nil
}

func (s *memStore) LoadRiskState(ctx context.Context) (*domain.RiskSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	cp := *s.state
	return &cp, nil
}

func (s *memStore) SaveRiskState(ctx context.Context, snap domain.RiskSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = &snap
	return nil
}

// flatCandles never moves: neutral indicators, sideways trend.
func flatCandles(n int, price float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		out[i] = domain.Candle{
			Time:  int64(i * 60),
			Open:  price,
			High:  price + 0.5,
			Low:   price - 0.5,
			Close: price,
		}
	}
	return out
}

// risingCandles compounds by step per candle with a proportional range.
func risingCandles(n int, start, step float64) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := range out {
		c := start * math.Pow(1+step, float64(i))
		out[i] = domain.Candle{
			Time:  int64(i * 60),
			Open:  c / (1 + step),
			High:  c * 1.005,
			Low:   c * 0.995,
			Close: c,
		}
	}
	return out
}

func closesOf(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

var noon = time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)
