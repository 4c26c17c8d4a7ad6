package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/usecase"
)

func TestRunner_SkipsCycleWhenHalted(t *testing.T) {
	broker := &fakeBroker{name: "oanda", class: domain.ClassLot, candles: risingCandles(60, 100, 0.01), balance: 1000}
	f := newPipelineFixture(t, broker)
	targets := []domain.Target{{Broker: "oanda", Instrument: "EUR_USD"}}
	r := usecase.NewRunner(f.pipeline, f.gate, f.dispatch, targets, "oanda", time.Minute, nil)

	f.gate.SetExternalKill(true)
	assert.Nil(t, r.RunCycle(context.Background()))
	assert.Zero(t, broker.fetchCount())
}

func TestRunner_IsolatesWorkerPanics(t *testing.T) {
	healthy := &fakeBroker{name: "oanda", class: domain.ClassLot, candles: risingCandles(60, 100, 0.01), balance: 1000}
	broken := &fakeBroker{name: "kraken", class: domain.ClassCrypto, fetchPanic: true}
	f := newPipelineFixture(t, healthy, broken)
	targets := []domain.Target{
		{Broker: "oanda", Instrument: "EUR_USD"},
		{Broker: "kraken", Instrument: "BTC/USD"},
	}
	r := usecase.NewRunner(f.pipeline, f.gate, f.dispatch, targets, "oanda", time.Minute, nil)

	outcomes := r.RunCycle(context.Background())
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Traded())
	assert.ErrorContains(t, outcomes[1].Err, "panic")
}

func TestRunner_BalanceRefreshCanTrip(t *testing.T) {
	broker := &fakeBroker{name: "oanda", class: domain.ClassLot, candles: risingCandles(60, 100, 0.01), balance: 800}
	f := newPipelineFixture(t, broker)
	targets := []domain.Target{{Broker: "oanda", Instrument: "EUR_USD"}}
	r := usecase.NewRunner(f.pipeline, f.gate, f.dispatch, targets, "oanda", time.Minute, nil)

	outcomes := r.RunCycle(context.Background())
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, domain.ErrKilled)
	assert.Zero(t, broker.placedCount())

	assert.Nil(t, r.RunCycle(context.Background()), "next cycle is skipped entirely")
}

func TestRunner_RunStopsWithContext(t *testing.T) {
	broker := &fakeBroker{name: "oanda", class: domain.ClassLot, candles: flatCandles(60, 1.1), balance: 1000}
	f := newPipelineFixture(t, broker)
	r := usecase.NewRunner(f.pipeline, f.gate, f.dispatch,
		[]domain.Target{{Broker: "oanda", Instrument: "EUR_USD"}}, "oanda", 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Run(ctx), context.DeadlineExceeded)
	assert.GreaterOrEqual(t, broker.fetchCount(), 1)
}
