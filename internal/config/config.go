// Package config loads the bot configuration from YAML, with secrets pulled
// from the environment (and an optional .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/usecase"
	"gopkg.in/yaml.v3"
)

type OANDA struct {
	Enabled   bool    `yaml:"enabled"`
	Token     string  `yaml:"token"`
	AccountID string  `yaml:"account_id"`
	BaseURL   string  `yaml:"base_url"`
	RPS       float64 `yaml:"rps"`
}

type Kraken struct {
	Enabled   bool    `yaml:"enabled"`
	APIKey    string  `yaml:"api_key"`
	APISecret string  `yaml:"api_secret"`
	BaseURL   string  `yaml:"base_url"`
	WSURL     string  `yaml:"ws_url"`
	RPS       float64 `yaml:"rps"`
}

type Alpaca struct {
	Enabled    bool    `yaml:"enabled"`
	KeyID      string  `yaml:"key_id"`
	SecretKey  string  `yaml:"secret_key"`
	TradingURL string  `yaml:"trading_url"`
	DataURL    string  `yaml:"data_url"`
	RPS        float64 `yaml:"rps"`
}

type Brokers struct {
	OANDA  OANDA  `yaml:"oanda"`
	Kraken Kraken `yaml:"kraken"`
	Alpaca Alpaca `yaml:"alpaca"`
}

// Enabled lists the names of the configured brokers.
func (b Brokers) Enabled() []string {
	var names []string
	if b.OANDA.Enabled {
		names = append(names, "oanda")
	}
	if b.Kraken.Enabled {
		names = append(names, "kraken")
	}
	if b.Alpaca.Enabled {
		names = append(names, "alpaca")
	}
	return names
}

type Target struct {
	Broker     string `yaml:"broker"`
	Fallback   string `yaml:"fallback"`
	Instrument string `yaml:"instrument"`
}

type Sizing struct {
	domain.SizingConfig `yaml:",inline"`
	// Modes maps a broker name to tiered or multiplier.
	Modes map[string]domain.SizingMode `yaml:"modes"`
}

type Dispatcher struct {
	OrderTimeoutSec  int    `yaml:"order_timeout_sec"`
	FailureThreshold uint32 `yaml:"failure_threshold"`
	OpenTimeoutSec   int    `yaml:"open_timeout_sec"`
}

type Runner struct {
	IntervalSec int    `yaml:"interval_sec"`
	Timeframe   string `yaml:"timeframe"`
	CandleCount int    `yaml:"candle_count"`
	// BalanceBroker is asked for the account balance each cycle.
	BalanceBroker string `yaml:"balance_broker"`
}

type KillSwitch struct {
	FilePath        string `yaml:"file_path"`
	RedisURL        string `yaml:"redis_url"`
	RedisKey        string `yaml:"redis_key"`
	PollIntervalSec int    `yaml:"poll_interval_sec"`
}

type Heartbeat struct {
	IntervalSec int `yaml:"interval_sec"`
	MaxFailures int `yaml:"max_failures"`
}

type Storage struct {
	Path string `yaml:"path"`
}

type Logging struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Config struct {
	DryRun     bool                   `yaml:"dry_run"`
	Brokers    Brokers                `yaml:"brokers"`
	Targets    []Target               `yaml:"targets"`
	Risk       domain.RiskConfig      `yaml:"risk"`
	Threshold  domain.ThresholdConfig `yaml:"threshold"`
	Sizing     Sizing                 `yaml:"sizing"`
	Dispatcher Dispatcher             `yaml:"dispatcher"`
	Runner     Runner                 `yaml:"runner"`
	KillSwitch KillSwitch             `yaml:"kill_switch"`
	Heartbeat  Heartbeat              `yaml:"heartbeat"`
	Storage    Storage                `yaml:"storage"`
	Logging    Logging                `yaml:"logging"`
	Server     Server                 `yaml:"server"`
}

// Default returns a config that runs in dry-run mode with the stock risk limits.
func Default() Config {
	return Config{
		DryRun:    true,
		Risk:      domain.DefaultRiskConfig(),
		Threshold: domain.DefaultThresholdConfig(),
		Sizing:    Sizing{SizingConfig: domain.DefaultSizingConfig()},
		Dispatcher: Dispatcher{
			OrderTimeoutSec:  15,
			FailureThreshold: 3,
			OpenTimeoutSec:   60,
		},
		Runner: Runner{
			IntervalSec: 60,
			Timeframe:   "M5",
			CandleCount: 100,
		},
		KillSwitch: KillSwitch{
			FilePath:        "kill.flag",
			PollIntervalSec: 5,
		},
		Heartbeat: Heartbeat{IntervalSec: 60, MaxFailures: 3},
		Storage:   Storage{Path: "signal_trader.db"},
		Logging:   Logging{Level: "info"},
		Server:    Server{Port: 8080},
	}
}

// LoadEnv reads .env style files into the process environment. Missing files
// are skipped; variables already set win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load env %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path, expands ${VAR} references, and decodes it over Default().
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	for i := range c.Targets {
		c.Targets[i].Broker = strings.ToLower(strings.TrimSpace(c.Targets[i].Broker))
		c.Targets[i].Fallback = strings.ToLower(strings.TrimSpace(c.Targets[i].Fallback))
		c.Targets[i].Instrument = strings.ToUpper(strings.TrimSpace(c.Targets[i].Instrument))
	}
	if c.Runner.BalanceBroker == "" && len(c.Targets) > 0 {
		c.Runner.BalanceBroker = c.Targets[0].Broker
	}
	modes := make(map[string]domain.SizingMode, len(c.Sizing.Modes))
	for name, mode := range c.Sizing.Modes {
		modes[strings.ToLower(name)] = domain.SizingMode(strings.ToLower(string(mode)))
	}
	c.Sizing.Modes = modes
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	enabled := make(map[string]bool)
	for _, name := range c.Brokers.Enabled() {
		enabled[name] = true
	}

	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("targets: at least one target is required"))
	}
	for i, t := range c.Targets {
		if t.Instrument == "" {
			errs = append(errs, fmt.Errorf("targets[%d]: instrument is required", i))
		}
		if !enabled[t.Broker] {
			errs = append(errs, fmt.Errorf("targets[%d]: broker %q is not enabled", i, t.Broker))
		}
		if t.Fallback != "" && !enabled[t.Fallback] {
			errs = append(errs, fmt.Errorf("targets[%d]: fallback %q is not enabled", i, t.Fallback))
		}
	}

	if c.Brokers.OANDA.Enabled && (c.Brokers.OANDA.Token == "" || c.Brokers.OANDA.AccountID == "") && !c.DryRun {
		errs = append(errs, errors.New("brokers.oanda: token and account_id are required for live trading"))
	}
	if c.Brokers.Kraken.Enabled && (c.Brokers.Kraken.APIKey == "" || c.Brokers.Kraken.APISecret == "") && !c.DryRun {
		errs = append(errs, errors.New("brokers.kraken: api_key and api_secret are required for live trading"))
	}
	if c.Brokers.Alpaca.Enabled && (c.Brokers.Alpaca.KeyID == "" || c.Brokers.Alpaca.SecretKey == "") && !c.DryRun {
		errs = append(errs, errors.New("brokers.alpaca: key_id and secret_key are required for live trading"))
	}

	r := c.Risk
	if r.MinLot <= 0 || r.MaxLot < r.MinLot {
		errs = append(errs, fmt.Errorf("risk: need 0 < min_lot <= max_lot, got %v..%v", r.MinLot, r.MaxLot))
	}
	if r.RiskFraction <= 0 || r.RiskFraction > 1 {
		errs = append(errs, fmt.Errorf("risk.risk_fraction must be in (0,1], got %v", r.RiskFraction))
	}
	if r.Leverage <= 0 {
		errs = append(errs, fmt.Errorf("risk.leverage must be positive, got %v", r.Leverage))
	}
	if r.MaxDailyDrawdown <= 0 || r.MaxDailyDrawdown >= 1 {
		errs = append(errs, fmt.Errorf("risk.max_daily_drawdown must be in (0,1), got %v", r.MaxDailyDrawdown))
	}
	if r.CooldownSeconds < 0 || r.MaxTradesPerHour < 0 || r.MaxConsecutiveLosses < 0 {
		errs = append(errs, errors.New("risk: cooldown_seconds, max_trades_per_hour and max_consecutive_losses must not be negative"))
	}
	if r.StartingBalance <= 0 {
		errs = append(errs, fmt.Errorf("risk.starting_balance must be positive, got %v", r.StartingBalance))
	}

	th := c.Threshold
	if th.Min > th.Max {
		errs = append(errs, fmt.Errorf("threshold: min %v above max %v", th.Min, th.Max))
	}
	if !validHour(th.LowLiquidityStartHour) || !validHour(th.LowLiquidityEndHour) {
		errs = append(errs, errors.New("threshold: low liquidity hours must be within 0..23"))
	}

	for name, mode := range c.Sizing.Modes {
		if mode != domain.SizingTiered && mode != domain.SizingMultiplier {
			errs = append(errs, fmt.Errorf("sizing.modes.%s: unknown mode %q", name, mode))
		}
	}

	if c.Runner.CandleCount < usecase.MinCandles {
		errs = append(errs, fmt.Errorf("runner.candle_count must be at least %d", usecase.MinCandles))
	}
	if c.Runner.IntervalSec <= 0 {
		errs = append(errs, errors.New("runner.interval_sec must be positive"))
	}
	if c.KillSwitch.FilePath == "" && c.KillSwitch.RedisURL == "" {
		errs = append(errs, errors.New("kill_switch: file_path or redis_url is required"))
	}

	return errors.Join(errs...)
}

func validHour(h int) bool { return h >= 0 && h <= 23 }

// DomainTargets converts the configured targets.
func (c *Config) DomainTargets() []domain.Target {
	out := make([]domain.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		out = append(out, domain.Target{Broker: t.Broker, Fallback: t.Fallback, Instrument: t.Instrument})
	}
	return out
}

func (c *Config) PipelineConfig() usecase.PipelineConfig {
	return usecase.PipelineConfig{
		Timeframe:   c.Runner.Timeframe,
		CandleCount: c.Runner.CandleCount,
		Risk:        c.Risk,
		Threshold:   c.Threshold,
		Sizing:      c.Sizing.SizingConfig,
		SizingModes: c.Sizing.Modes,
	}
}

func (c *Config) DispatcherConfig() usecase.DispatcherConfig {
	return usecase.DispatcherConfig{
		OrderTimeout:     seconds(c.Dispatcher.OrderTimeoutSec),
		FailureThreshold: c.Dispatcher.FailureThreshold,
		OpenTimeout:      seconds(c.Dispatcher.OpenTimeoutSec),
	}
}

func (c *Config) RunInterval() time.Duration       { return seconds(c.Runner.IntervalSec) }
func (c *Config) KillPollInterval() time.Duration  { return seconds(c.KillSwitch.PollIntervalSec) }
func (c *Config) HeartbeatInterval() time.Duration { return seconds(c.Heartbeat.IntervalSec) }

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
