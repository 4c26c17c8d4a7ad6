package main

import (
	"fmt"

	"github.com/vitos/signal_trader/internal/config"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/infrastructure/exchange"
	"github.com/vitos/signal_trader/internal/infrastructure/killswitch"
	"github.com/vitos/signal_trader/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// killSwitch is a source the bot can both poll and flip.
type killSwitch interface {
	domain.KillSwitchSource
	domain.KillSwitchWriter
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}
	return config.Load(configPath)
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging.File != "" {
		return logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	}
	return logger.NewLogger(cfg.Logging.Level)
}

// openKillSwitch prefers Redis when a URL is configured. The returned func
// releases the client.
func openKillSwitch(cfg *config.Config) (killSwitch, func() error, error) {
	if cfg.KillSwitch.RedisURL != "" {
		client, err := killswitch.DialRedis(cfg.KillSwitch.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return killswitch.NewRedisSource(client, cfg.KillSwitch.RedisKey), client.Close, nil
	}
	return killswitch.NewFileSource(cfg.KillSwitch.FilePath), func() error { return nil }, nil
}

// describeKillSwitch names where the switch lives, for logs and status output.
func describeKillSwitch(k killSwitch) string {
	switch src := k.(type) {
	case *killswitch.FileSource:
		return "file:" + src.Path()
	case *killswitch.RedisSource:
		return "redis:" + src.Key()
	default:
		return fmt.Sprintf("%T", k)
	}
}

// buildBrokers creates an adapter for every enabled broker.
func buildBrokers(cfg *config.Config) map[string]domain.Broker {
	out := make(map[string]domain.Broker)
	b := cfg.Brokers
	if b.OANDA.Enabled {
		out["oanda"] = exchange.NewOANDAAdapter(b.OANDA.Token, b.OANDA.AccountID, b.OANDA.BaseURL, b.OANDA.RPS)
	}
	if b.Kraken.Enabled {
		out["kraken"] = exchange.NewKrakenAdapter(b.Kraken.APIKey, b.Kraken.APISecret, b.Kraken.BaseURL, b.Kraken.WSURL, b.Kraken.RPS)
	}
	if b.Alpaca.Enabled {
		out["alpaca"] = exchange.NewAlpacaAdapter(b.Alpaca.KeyID, b.Alpaca.SecretKey, b.Alpaca.TradingURL, b.Alpaca.DataURL, b.Alpaca.RPS)
	}
	return out
}

// paperFeed picks the broker whose candles and class back the paper broker.
func paperFeed(cfg *config.Config, brokers map[string]domain.Broker) (domain.Broker, error) {
	if b, ok := brokers[cfg.Runner.BalanceBroker]; ok {
		return b, nil
	}
	for _, name := range cfg.Brokers.Enabled() {
		if b, ok := brokers[name]; ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no broker enabled")
}
