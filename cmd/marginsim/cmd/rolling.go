package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/marginsim/backtest"
)

var rollingCmd = &cobra.Command{
	Use:   "rolling",
	Short: "Run a rolling-window backtest sweep",
	Long: `Rolling enumerates every window of the configured lengths contained in the
data span, backtests each one independently on a worker pool, and aggregates
the per-run metrics into cross-window statistics.

Example:
  marginsim rolling -c sim.yaml --org sweep.org`,
	RunE: runRolling,
}

var rollOrg string

func init() {
	rootCmd.AddCommand(rollingCmd)
	rollingCmd.Flags().StringVar(&rollOrg, "org", "", "write an org-mode report to this path")
}

func runRolling(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	set, err := loadBars(cfg)
	if err != nil {
		return err
	}
	params, err := buildParams(cfg)
	if err != nil {
		return err
	}
	windows, err := cfg.Backtest.Windows()
	if err != nil {
		return err
	}
	step, err := cfg.Backtest.StepDuration()
	if err != nil {
		return err
	}
	jnl, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer jnl.Close()

	report, err := backtest.RunRolling(cmd.Context(), backtest.SweepConfig{
		Set:              set,
		WindowLengths:    windows,
		Step:             step,
		StrategyName:     cfg.Strategy.Name,
		Params:           params,
		InitialBalance:   cfg.Account.InitialBalance,
		Leverage:         cfg.Strategy.Leverage,
		MaintenanceRatio: cfg.Margin.MaintenanceRatio,
		SkipGaps:         cfg.Backtest.SkipGaps,
		CloseEnd:         cfg.Backtest.CloseEnd,
		Workers:          cfg.Backtest.Workers,
	})
	if err != nil {
		return err
	}

	for _, run := range report.Runs {
		recordRun(jnl, cfg.Data.Timeframe, run)
	}

	fmt.Printf("%s %s: %d windows completed, %d failed\n",
		report.Strategy, report.Symbol, len(report.Runs), len(report.Failed))
	fmt.Printf("  total_return_pct: min %.2f / median %.2f / max %.2f\n",
		report.Aggregate.TotalReturnPct.Min,
		report.Aggregate.TotalReturnPct.Median,
		report.Aggregate.TotalReturnPct.Max)
	fmt.Printf("  mdd_pct:          min %.2f / median %.2f / max %.2f\n",
		report.Aggregate.MDDPct.Min,
		report.Aggregate.MDDPct.Median,
		report.Aggregate.MDDPct.Max)
	for _, f := range report.Failed {
		fmt.Printf("  failed %s .. %s: %v\n",
			f.Window.Start.Format("2006-01-02"), f.Window.End.Format("2006-01-02"), f.Err)
	}

	if rollOrg != "" {
		if err := report.WriteOrgFile(rollOrg); err != nil {
			return fmt.Errorf("write org report: %w", err)
		}
		fmt.Printf("report written to %s\n", rollOrg)
	}
	return nil
}
