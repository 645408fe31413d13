package cmd

import (
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "marginsim",
	Short: "A leveraged crypto backtesting and paper-trading engine",
	Long: `Marginsim simulates leveraged margin trading over historical candle data.

It provides tools for:
  - Backtesting strategies with isolated-margin accounting and liquidations
  - Rolling-window sweeps across many overlapping history windows
  - Paper trading against replayed or streamed bars
  - Journaling trades and equity curves to CSV or SQLite

Complete documentation is available at https://github.com/rustyeddy/marginsim`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (YAML or JSON)")
}
