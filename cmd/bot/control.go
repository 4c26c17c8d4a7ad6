package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/infrastructure/killswitch"
	"github.com/vitos/signal_trader/internal/infrastructure/storage"
	"github.com/vitos/signal_trader/internal/usecase"
)

var statusDay string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the persisted risk state and the ledger of a day",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := storage.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		kill, closeKill, err := openKillSwitch(cfg)
		if err != nil {
			return err
		}
		defer closeKill()

		day := statusDay
		if day == "" {
			day = usecase.DayKey(time.Now())
		}
		report, err := buildStatus(cmd.Context(), store, kill, day)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var killCmd = &cobra.Command{
	Use:   "kill [reason...]",
	Short: "Engage the kill switch; a running bot halts on its next poll",
	RunE: func(cmd *cobra.Command, args []string) error {
		reason := strings.Join(args, " ")
		if reason == "" {
			reason = usecase.HaltManual
		}
		return withKillSwitch(func(k killSwitch) error {
			if err := k.Set(cmd.Context(), reason); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kill switch engaged: %s\n", reason)
			return nil
		})
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Clear the kill switch; a running bot also clears a tripped breaker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withKillSwitch(func(k killSwitch) error {
			if err := k.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "kill switch cleared")
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusDay, "day", "", "UTC day as yyyy-mm-dd (default today)")
	rootCmd.AddCommand(statusCmd, killCmd, resumeCmd)
}

func withKillSwitch(fn func(killSwitch) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	k, closeKill, err := openKillSwitch(cfg)
	if err != nil {
		return err
	}
	defer closeKill()
	return fn(k)
}

type statusReport struct {
	KillSwitch string               `json:"kill_switch"`
	Killed     bool                 `json:"killed"`
	KillReason string               `json:"kill_reason,omitempty"`
	Risk       *domain.RiskSnapshot `json:"risk,omitempty"`
	Day        string               `json:"day"`
	PnL        float64              `json:"pnl"`
	Trades     []domain.TradeResult `json:"trades"`
}

type statusStore interface {
	domain.RiskStateRepository
	domain.LedgerRepository
	DailyPnL(ctx context.Context, day string) (float64, error)
}

func buildStatus(ctx context.Context, store statusStore, kill killSwitch, day string) (statusReport, error) {
	report := statusReport{Day: day, KillSwitch: describeKillSwitch(kill)}

	killed, err := kill.Read(ctx)
	if err != nil {
		return report, fmt.Errorf("read kill switch: %w", err)
	}
	report.Killed = killed
	if f, ok := kill.(*killswitch.FileSource); ok && killed {
		report.KillReason = strings.TrimSpace(f.Reason())
	}

	if report.Risk, err = store.LoadRiskState(ctx); err != nil {
		return report, fmt.Errorf("load risk state: %w", err)
	}
	if report.Trades, err = store.ListTradeResults(ctx, day); err != nil {
		return report, fmt.Errorf("list trades: %w", err)
	}
	if report.PnL, err = store.DailyPnL(ctx, day); err != nil {
		return report, fmt.Errorf("daily pnl: %w", err)
	}
	return report, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
