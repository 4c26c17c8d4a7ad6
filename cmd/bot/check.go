package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitos/signal_trader/internal/domain"
	"github.com/vitos/signal_trader/internal/usecase"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Ping every enabled broker and print its balance",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !checkBrokers(cmd.Context(), cmd.OutOrStdout(), buildBrokers(cfg)) {
			return fmt.Errorf("at least one broker is unreachable")
		}
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <broker> <instrument>",
	Short: "Fetch candles and print indicators, score and threshold without trading",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		target := domain.Target{Broker: args[0], Instrument: args[1]}
		key := target.Key()
		broker, ok := buildBrokers(cfg)[key.Broker]
		if !ok {
			return fmt.Errorf("broker %q is not enabled", key.Broker)
		}
		target.Broker, target.Instrument = key.Broker, key.Instrument

		pc := cfg.PipelineConfig()
		candles, err := broker.FetchCandles(cmd.Context(), target.Instrument, pc.Timeframe, pc.CandleCount)
		if err != nil {
			return err
		}
		report, err := analyze(target, broker.Class(), candles, pc, time.Now().UTC())
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd, analyzeCmd)
}

func checkBrokers(ctx context.Context, w io.Writer, brokers map[string]domain.Broker) bool {
	names := make([]string, 0, len(brokers))
	for name := range brokers {
		names = append(names, name)
	}
	sort.Strings(names)

	allOK := true
	for _, name := range names {
		b := brokers[name]
		pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		alive := b.Ping(pctx)
		balance, err := b.GetBalance(pctx)
		cancel()

		switch {
		case !alive:
			allOK = false
			fmt.Fprintf(w, "%-8s unreachable\n", name)
		case err != nil:
			fmt.Fprintf(w, "%-8s up, balance error: %v\n", name, err)
		default:
			fmt.Fprintf(w, "%-8s up, balance %.2f\n", name, balance)
		}
	}
	return allOK
}

type analysis struct {
	Target     domain.Target           `json:"target"`
	Candles    int                     `json:"candles"`
	Signal     domain.ScoredSignal     `json:"signal"`
	Components usecase.ScoreComponents `json:"components"`
	Threshold  float64                 `json:"threshold"`
	Qualifies  bool                    `json:"qualifies"`
	Size       float64                 `json:"size"`
}

// analyze runs the decision stages up to sizing, leaving the gatekeeper out.
func analyze(target domain.Target, class domain.InstrumentClass, candles []domain.Candle, pc usecase.PipelineConfig, now time.Time) (analysis, error) {
	sig, err := usecase.BuildSignal(target, candles, pc.Risk, now)
	if err != nil {
		return analysis{}, err
	}
	scored := usecase.Score(sig)
	_, components := usecase.Confidence(sig.Indicators, sig.Trend)
	threshold := usecase.AdaptiveThreshold(sig.Indicators.VolatilitySpike, now.Hour(), pc.Threshold)

	out := analysis{
		Target:     target,
		Candles:    len(candles),
		Signal:     scored,
		Components: components,
		Threshold:  threshold,
		Qualifies:  usecase.Qualifies(scored.Confidence, threshold),
	}
	if out.Qualifies {
		sizer := usecase.NewPositionSizer(pc.Risk, pc.Sizing)
		out.Size = sizer.Size(pc.SizingModes[target.Broker], class, scored.Confidence, sig.ReferencePrice, pc.Risk.StartingBalance)
	}
	return out, nil
}
