package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/usecase"
)

func TestGatekeeperDecisionsSurviveRestart(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	key := domain.NewInstrumentKey("kraken", "BTC/USD")

	before := usecase.NewGatekeeper(domain.DefaultRiskConfig(), store, nil, nil)
	before.SetClock(clock)
	res, err := before.Reserve(key)
	require.NoError(t, err)
	require.NoError(t, before.RecordResult(ctx, res, domain.TradeResult{
		ID: "01HX", Instrument: "BTC/USD", Broker: "kraken", RealizedPnL: -15, Status: domain.StatusFilled, CreatedAt: now,
	}))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	after := usecase.NewGatekeeper(domain.DefaultRiskConfig(), reopened, nil, nil)
	after.SetClock(clock)
	require.NoError(t, after.Restore(ctx))

	for _, offset := range []time.Duration{0, 30 * time.Second, 59 * time.Second, 65 * time.Second} {
		now = time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC).Add(offset)
		errBefore := before.Check(key)
		errAfter := after.Check(key)
		assert.Equal(t, errBefore == nil, errAfter == nil, "offset %s", offset)
	}
	assert.NoError(t, after.Check(key))
	assert.Equal(t, 985.0, after.Snapshot().CurrentBalance)

	ledger, err := reopened.ListTradeResults(ctx, "2024-05-14")
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	assert.Equal(t, "01HX", ledger[0].ID)
}
