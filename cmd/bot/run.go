package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitos/signal_trader/internal/config"
	"github.com/vitos/signal_trader/internal/infrastructure/exchange"
	"github.com/vitos/signal_trader/internal/infrastructure/metrics"
	"github.com/vitos/signal_trader/internal/infrastructure/storage"
	"github.com/vitos/signal_trader/internal/usecase"
	"github.com/vitos/signal_trader/internal/web"
	"go.uber.org/zap"
)

var (
	runDryRun bool
	runLive   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the trading loop",
	RunE:  runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "force dry-run regardless of config")
	runCmd.Flags().BoolVar(&runLive, "live", false, "force live trading regardless of config")
	runCmd.MarkFlagsMutuallyExclusive("dry-run", "live")
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	switch {
	case runDryRun:
		cfg.DryRun = true
	case runLive:
		cfg.DryRun = false
	}

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, log)
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	kill, closeKill, err := openKillSwitch(cfg)
	if err != nil {
		return fmt.Errorf("open kill switch: %w", err)
	}
	defer closeKill()

	rec := metrics.NewRecorder()

	gate := usecase.NewGatekeeper(cfg.Risk, store, log.Named("gate"), rec)
	if err := gate.Restore(ctx); err != nil {
		log.Warn("Risk state restored with errors", zap.Error(err))
	}
	gate.OnTrip = func(reason string) {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := kill.Set(tctx, reason); err != nil {
			log.Error("Failed to write kill switch after trip", zap.String("reason", reason), zap.Error(err))
		}
	}

	brokers := buildBrokers(cfg)
	dispatcher := usecase.NewDispatcher(cfg.DispatcherConfig(), log.Named("dispatch"), rec)
	for _, b := range brokers {
		dispatcher.Register(b)
	}
	feed, err := paperFeed(cfg, brokers)
	if err != nil {
		return err
	}
	dispatcher.SetPaper(exchange.NewPaperBroker(feed, cfg.Risk.StartingBalance))
	dispatcher.SetDryRun(cfg.DryRun)

	pipeline := usecase.NewPipeline(cfg.PipelineConfig(), gate, dispatcher, log.Named("pipeline"), rec)
	runner := usecase.NewRunner(pipeline, gate, dispatcher, cfg.DomainTargets(), cfg.Runner.BalanceBroker, cfg.RunInterval(), log.Named("runner"))
	watcher := usecase.NewKillWatcher(kill, gate, cfg.KillPollInterval(), log.Named("kill"))
	heartbeat := usecase.NewHeartbeat(dispatcher, cfg.Runner.BalanceBroker, cfg.Heartbeat.MaxFailures, cfg.HeartbeatInterval(), log.Named("heartbeat"))
	server := web.NewServer(cfg.Server.Port, gate, dispatcher, store, kill, rec.Handler(), log.Named("web"))

	log.Info("Starting bot",
		zap.Strings("brokers", cfg.Brokers.Enabled()),
		zap.Int("targets", len(cfg.Targets)),
		zap.Bool("dry_run", cfg.DryRun),
		zap.String("kill_switch", describeKillSwitch(kill)),
		zap.Int("port", cfg.Server.Port))

	// the first poll happens before the first cycle
	watcher.Poll(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		watcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		heartbeat.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- runner.Run(ctx)
	}()

	var result error
	select {
	case err := <-runErr:
		if !errors.Is(err, context.Canceled) {
			result = err
		}
	case err := <-serverErr:
		if err != nil {
			log.Error("Web server failed", zap.Error(err))
			result = err
		}
	}
	cancel()

	log.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Web server shutdown", zap.Error(err))
	}
	wg.Wait()
	return result
}
