package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/usecase"
)

var _ usecase.Metrics = (*Recorder)(nil)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.ObserveTrade("oanda", domain.StatusFilled)
	r.ObserveTrade("oanda", domain.StatusFilled)
	r.ObserveTrade("kraken", domain.StatusFailed)
	r.BreakerTripped("max_daily_drawdown")
	r.SetHalted(true)
	r.SetBalance(895)
	r.ObserveStage("oanda", "threshold")
	r.ObserveConfidence("oanda", 8.91)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.trades.WithLabelValues("oanda", "filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trades.WithLabelValues("kraken", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.breakerTrip.WithLabelValues("max_daily_drawdown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.halted))
	assert.Equal(t, 895.0, testutil.ToFloat64(r.balance))

	r.SetHalted(false)
	assert.Zero(t, testutil.ToFloat64(r.halted))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.ObserveTrade("paper", domain.StatusFilled)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `trader_trades_total{broker="paper",status="filled"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
