package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "bot",
	Short: "Signal driven trading loop with account wide risk limits",
	Long: `bot pulls candles for every configured instrument, scores a signal from
RSI, MACD, EMA slope and volatility, and trades the ones that clear the
adaptive threshold, within the cooldown, rate and drawdown limits.

Commands:
  run      start the trading loop and the status server
  status   print the persisted risk state and today's ledger
  kill     engage the kill switch
  resume   clear the kill switch
  check    ping every broker and print its balance
  analyze  score one instrument without trading`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "path to the YAML config")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "optional .env file with broker secrets")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
