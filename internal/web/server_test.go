package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/infrastructure/exchange"
	"github.com/vitos/signal_trader/internal/infrastructure/killswitch"
	"github.com/vitos/signal_trader/internal/infrastructure/metrics"
	"github.com/vitos/signal_trader/internal/infrastructure/storage"
	"github.com/vitos/signal_trader/internal/usecase"
)

type fixture struct {
	server *Server
	gate   *usecase.Gatekeeper
	disp   *usecase.Dispatcher
	store  *storage.SQLiteStore
	flag   *killswitch.FileSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "web.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	rec := metrics.NewRecorder()
	gate := usecase.NewGatekeeper(domain.DefaultRiskConfig(), store, nil, rec)
	disp := usecase.NewDispatcher(usecase.DefaultDispatcherConfig(), nil, rec)
	disp.Register(exchange.NewPaperBroker(nil, 1000))
	flag := killswitch.NewFileSource(filepath.Join(dir, "kill.flag"))

	s := NewServer(0, gate, disp, store, flag, rec.Handler(), nil)
	return &fixture{server: s, gate: gate, disp: disp, store: store, flag: flag}
}

func (f *fixture) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) statusResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	resp := decodeStatus(t, f.do(t, http.MethodGet, "/status"))
	assert.False(t, resp.Halted)
	assert.False(t, resp.DryRun)
	assert.Equal(t, 1000.0, resp.Risk.CurrentBalance)
	assert.Equal(t, []string{"paper"}, resp.Brokers)
}

func TestKillAndResume(t *testing.T) {
	f := newFixture(t)

	resp := decodeStatus(t, f.do(t, http.MethodPost, "/kill?reason=maintenance"))
	assert.True(t, resp.Halted)
	assert.Equal(t, "maintenance", resp.Risk.HaltReason)

	killed, err := f.flag.Read(context.Background())
	require.NoError(t, err)
	assert.True(t, killed)
	assert.ErrorIs(t, f.gate.Check(domain.NewInstrumentKey("oanda", "EUR/USD")), domain.ErrKilled)

	resp = decodeStatus(t, f.do(t, http.MethodPost, "/resume"))
	assert.False(t, resp.Halted)
	_, err = os.Stat(f.flag.Path())
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoError(t, f.gate.Check(domain.NewInstrumentKey("oanda", "EUR/USD")))
}

func TestKill_RejectsGet(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/kill")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, f.gate.Snapshot().Halted())
}

func TestTrades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.store.AppendTradeResult(ctx, "2024-05-14", domain.TradeResult{
		ID: "t1", Instrument: "EUR/USD", Broker: "oanda", Side: domain.SideBuy,
		Size: 0.1, Price: 1.1, RealizedPnL: 12.5, Status: domain.StatusFilled, CreatedAt: at,
	}))
	require.NoError(t, f.store.AppendTradeResult(ctx, "2024-05-14", domain.TradeResult{
		ID: "t2", Instrument: "BTC/USD", Broker: "kraken", Side: domain.SideSell,
		Size: 0.001, Price: 60000, Status: domain.StatusFailed, Reason: "timeout", CreatedAt: at.Add(time.Minute),
	}))

	rec := f.do(t, http.MethodGet, "/trades?day=2024-05-14")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp tradesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2024-05-14", resp.Day)
	assert.Len(t, resp.Trades, 2)
	assert.Equal(t, 1, resp.Filled)
	assert.Equal(t, 1, resp.Failed)
	assert.InDelta(t, 12.5, resp.PnL, 1e-9)

	rec = f.do(t, http.MethodGet, "/trades?day=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/trades?day=2024-05-15")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Trades)
}

func TestCooldown(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/cooldowns/kraken/BTC/USD")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "kraken:BTC/USD", resp["key"])
	assert.Equal(t, true, resp["eligible"])
	assert.Equal(t, 0.0, resp["remaining_seconds"])
}

func TestMode(t *testing.T) {
	f := newFixture(t)

	resp := decodeStatus(t, f.do(t, http.MethodPost, "/mode?dry_run=true"))
	assert.True(t, resp.DryRun)
	assert.True(t, f.disp.DryRun())

	rec := f.do(t, http.MethodPost, "/mode?dry_run=maybe")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsAndHealth(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, "/kill")

	rec := f.do(t, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `trader_breaker_trips_total{reason="manual"} 1`)
	assert.Contains(t, rec.Body.String(), "trader_halted 1")

	rec = f.do(t, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}
