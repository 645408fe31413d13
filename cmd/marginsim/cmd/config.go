package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/marginsim/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage simulator configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "marginsim.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.Default().SaveToFile(path); err != nil {
			return err
		}
		fmt.Printf("default config written to %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Printf("symbol:    %s (%s)\n", cfg.Data.Symbol, cfg.Data.Timeframe)
		fmt.Printf("data:      %s\n", cfg.Data.Path)
		fmt.Printf("strategy:  %s @ %gx\n", cfg.Strategy.Name, cfg.Strategy.Leverage)
		for k, v := range cfg.Strategy.Params {
			fmt.Printf("  %-12s %g\n", k, v)
		}
		fmt.Printf("balance:   %.2f\n", cfg.Account.InitialBalance)
		fmt.Printf("maint:     %.4f\n", cfg.Margin.MaintenanceRatio)
		fmt.Printf("journal:   %s\n", cfg.Journal.Type)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}
