package main

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/signal_trader/internal/config"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/infrastructure/exchange"
	"github.com/vitos/signal_trader/internal/infrastructure/killswitch"
	"github.com/vitos/signal_trader/internal/infrastructure/storage"
)

type stubBroker struct {
	name    string
	alive   bool
	balance float64
}

func (s *stubBroker) Name() string                  { return s.name }
func (s *stubBroker) Class() domain.InstrumentClass { return domain.ClassLot }
func (s *stubBroker) FetchCandles(ctx context.Context, instrument, timeframe string, count int) ([]domain.Candle, error) {
	return nil, nil
}
func (s *stubBroker) PlaceOrder(ctx context.Context, d domain.TradeDecision) (domain.TradeResult, error) {
	return domain.TradeResult{}, nil
}
func (s *stubBroker) GetBalance(ctx context.Context) (float64, error) { return s.balance, nil }
func (s *stubBroker) Ping(ctx context.Context) bool                   { return s.alive }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Brokers.OANDA.Enabled = true
	cfg.Brokers.Alpaca.Enabled = true
	cfg.Targets = []config.Target{{Broker: "alpaca", Instrument: "AAPL"}}
	cfg.KillSwitch.FilePath = filepath.Join(t.TempDir(), "kill.flag")
	return &cfg
}

func TestBuildBrokers(t *testing.T) {
	cfg := testConfig(t)
	brokers := buildBrokers(cfg)

	require.Len(t, brokers, 2)
	assert.IsType(t, &exchange.OANDAAdapter{}, brokers["oanda"])
	assert.Equal(t, domain.ClassShare, brokers["alpaca"].Class())

	feed, err := paperFeed(cfg, brokers)
	require.NoError(t, err)
	assert.Equal(t, "oanda", feed.Name())

	cfg.Runner.BalanceBroker = "alpaca"
	feed, err = paperFeed(cfg, brokers)
	require.NoError(t, err)
	assert.Equal(t, "alpaca", feed.Name())

	_, err = paperFeed(cfg, map[string]domain.Broker{})
	assert.Error(t, err)
}

func TestOpenKillSwitch_File(t *testing.T) {
	cfg := testConfig(t)
	k, closeFn, err := openKillSwitch(cfg)
	require.NoError(t, err)
	defer closeFn()

	assert.IsType(t, &killswitch.FileSource{}, k)
	assert.Equal(t, "file:"+cfg.KillSwitch.FilePath, describeKillSwitch(k))
	ctx := context.Background()
	require.NoError(t, k.Set(ctx, "test"))
	killed, err := k.Read(ctx)
	require.NoError(t, err)
	assert.True(t, killed)
}

func TestOpenKillSwitch_BadRedisURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.KillSwitch.RedisURL = "not-a-url://"
	_, _, err := openKillSwitch(cfg)
	assert.Error(t, err)
}

func TestBuildStatus(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "status.db"))
	require.NoError(t, err)
	defer store.Close()

	at := time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveRiskState(ctx, domain.RiskSnapshot{
		Day: "2024-05-14", DailyStartBalance: 1000, CurrentBalance: 980,
		Tripped: true, HaltReason: "max_consecutive_losses", UpdatedAt: at,
	}))
	require.NoError(t, store.AppendTradeResult(ctx, "2024-05-14", domain.TradeResult{
		ID: "a", Instrument: "EUR/USD", Broker: "oanda", Side: domain.SideBuy,
		Size: 0.1, Price: 1.1, RealizedPnL: -20, Status: domain.StatusFilled, CreatedAt: at,
	}))

	flag := killswitch.NewFileSource(filepath.Join(dir, "kill.flag"))
	require.NoError(t, flag.Set(ctx, "max_consecutive_losses"))

	report, err := buildStatus(ctx, store, flag, "2024-05-14")
	require.NoError(t, err)
	assert.True(t, report.Killed)
	assert.Contains(t, report.KillReason, "max_consecutive_losses")
	assert.Equal(t, "file:"+flag.Path(), report.KillSwitch)
	require.NotNil(t, report.Risk)
	assert.True(t, report.Risk.Tripped)
	assert.InDelta(t, -20, report.PnL, 1e-9)
	assert.Len(t, report.Trades, 1)

	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, report))
	assert.Contains(t, buf.String(), `"halt_reason": "max_consecutive_losses"`)
}

func TestCheckBrokers(t *testing.T) {
	var buf bytes.Buffer
	ok := checkBrokers(context.Background(), &buf, map[string]domain.Broker{
		"oanda":  &stubBroker{name: "oanda", alive: true, balance: 1234.5},
		"kraken": &stubBroker{name: "kraken"},
	})
	assert.False(t, ok)
	assert.Contains(t, buf.String(), "kraken   unreachable")
	assert.Contains(t, buf.String(), "oanda    up, balance 1234.50")
}

func TestAnalyze(t *testing.T) {
	cfg := config.Default()
	pc := cfg.PipelineConfig()
	target := domain.Target{Broker: "oanda", Instrument: "EUR/USD"}
	now := time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)

	_, err := analyze(target, domain.ClassLot, make([]domain.Candle, 10), pc, now)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	candles := make([]domain.Candle, 60)
	for i := range candles {
		c := 1.1 * math.Pow(1.003, float64(i))
		candles[i] = domain.Candle{Time: int64(i * 60), Open: c, High: c * 1.001, Low: c * 0.999, Close: c}
	}
	report, err := analyze(target, domain.ClassLot, candles, pc, now)
	require.NoError(t, err)
	assert.Equal(t, 60, report.Candles)
	assert.Equal(t, domain.SideBuy, report.Signal.Side)
	assert.GreaterOrEqual(t, report.Threshold, cfg.Threshold.Min)
	assert.LessOrEqual(t, report.Threshold, cfg.Threshold.Max)
	assert.GreaterOrEqual(t, report.Signal.Confidence, 0.0)
	assert.LessOrEqual(t, report.Signal.Confidence, 10.0)
	if report.Qualifies {
		assert.GreaterOrEqual(t, report.Size, cfg.Risk.MinLot)
	} else {
		assert.Zero(t, report.Size)
	}
}
