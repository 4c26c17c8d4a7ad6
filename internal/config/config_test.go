package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/signal_trader/internal/domain"
)

func TestLoad(t *testing.T) {
	t.Setenv("TEST_OANDA_TOKEN", "oanda-token")
	t.Setenv("TEST_KRAKEN_KEY", "kraken-key")
	t.Setenv("TEST_KRAKEN_SECRET", "a3Jha2VuLXNlY3JldA==")

	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	require.NoError(t, err)

	assert.False(t, cfg.DryRun)
	assert.Equal(t, "oanda-token", cfg.Brokers.OANDA.Token)
	assert.Equal(t, "kraken-key", cfg.Brokers.Kraken.APIKey)
	assert.Equal(t, []string{"oanda", "kraken"}, cfg.Brokers.Enabled())

	require.Len(t, cfg.Targets, 2)
	assert.Equal(t, domain.Target{Broker: "oanda", Fallback: "kraken", Instrument: "EUR/USD"}, cfg.DomainTargets()[0])
	assert.Equal(t, "oanda", cfg.Runner.BalanceBroker)

	// overridden fields change, the rest keep their defaults
	assert.Equal(t, 0.05, cfg.Risk.MaxDailyDrawdown)
	assert.Equal(t, 90, cfg.Risk.CooldownSeconds)
	assert.Equal(t, 3, cfg.Risk.MaxConsecutiveLosses)
	assert.Equal(t, 6.0, cfg.Threshold.Base)
	assert.Equal(t, 0.002, cfg.Sizing.BaseUnitCrypto)
	assert.Equal(t, 0.1, cfg.Sizing.BaseUnitLot)
	assert.Equal(t, domain.SizingMultiplier, cfg.Sizing.Modes["kraken"])

	assert.Equal(t, 30*time.Second, cfg.RunInterval())
	assert.Equal(t, 5*time.Second, cfg.KillPollInterval())
	assert.Equal(t, "redis://localhost:6379/0", cfg.KillSwitch.RedisURL)

	pc := cfg.PipelineConfig()
	assert.Equal(t, "M1", pc.Timeframe)
	assert.Equal(t, 100, pc.CandleCount)

	dc := cfg.DispatcherConfig()
	assert.Equal(t, 15*time.Second, dc.OrderTimeout)
	assert.Equal(t, uint32(3), dc.FailureThreshold)
}

func TestParse_ValidationCollectsEveryProblem(t *testing.T) {
	raw := []byte(`
dry_run: false
brokers:
  oanda:
    enabled: true
targets:
  - broker: kraken
    instrument: BTC/USD
risk:
  min_lot: 2
  max_lot: 1
threshold:
  low_liquidity_end_hour: 24
sizing:
  modes:
    oanda: martingale
`)
	_, err := Parse(raw)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, `broker "kraken" is not enabled`)
	assert.Contains(t, msg, "token and account_id are required")
	assert.Contains(t, msg, "min_lot <= max_lot")
	assert.Contains(t, msg, "low liquidity hours")
	assert.Contains(t, msg, `unknown mode "martingale"`)
}

func TestParse_DryRunNeedsNoCredentials(t *testing.T) {
	cfg, err := Parse([]byte(`
brokers:
  alpaca:
    enabled: true
targets:
  - broker: alpaca
    instrument: aapl
`))
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "AAPL", cfg.Targets[0].Instrument)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SIGNAL_TRADER_TEST_VAR=from-file\n"), 0o600))
	t.Setenv("SIGNAL_TRADER_TEST_VAR", "")
	os.Unsetenv("SIGNAL_TRADER_TEST_VAR")

	require.NoError(t, LoadEnv(filepath.Join(dir, "missing.env"), envFile))
	assert.Equal(t, "from-file", os.Getenv("SIGNAL_TRADER_TEST_VAR"))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
