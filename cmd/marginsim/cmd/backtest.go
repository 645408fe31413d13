package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/marginsim/backtest"
	"github.com/rustyeddy/marginsim/journal"
	"github.com/rustyeddy/marginsim/strategies"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Run a single backtest over a data window",
	Long: `Backtest replays one window of historical bars against a strategy with
isolated-margin accounting: positions are marked to market every bar and
force-closed when equity falls to the maintenance level.

Registered strategies: ` + strings.Join(strategies.Names(), ", ") + `

Example:
  marginsim backtest -c sim.yaml --start 2024-01-01 --end 2024-06-01 --org report.org`,
	RunE: runBacktest,
}

var (
	btStart string
	btEnd   string
	btOrg   string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVar(&btStart, "start", "", "window start (YYYY-MM-DD, default: data start)")
	backtestCmd.Flags().StringVar(&btEnd, "end", "", "window end (YYYY-MM-DD, default: data end)")
	backtestCmd.Flags().StringVar(&btOrg, "org", "", "write an org-mode report to this path")
}

func runBacktest(cmd *cobra.Command, args []string) error {
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
	jnl, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer jnl.Close()

	start, end := set.Bounds()
	if btStart != "" {
		if start, err = time.Parse("2006-01-02", btStart); err != nil {
			return fmt.Errorf("bad --start: %w", err)
		}
	}
	if btEnd != "" {
		if end, err = time.Parse("2006-01-02", btEnd); err != nil {
			return fmt.Errorf("bad --end: %w", err)
		}
	}

	run, err := backtest.RunSingle(cmd.Context(), backtest.SweepConfig{
		Set:              set,
		StrategyName:     cfg.Strategy.Name,
		Params:           params,
		InitialBalance:   cfg.Account.InitialBalance,
		Leverage:         cfg.Strategy.Leverage,
		MaintenanceRatio: cfg.Margin.MaintenanceRatio,
		SkipGaps:         cfg.Backtest.SkipGaps,
		CloseEnd:         cfg.Backtest.CloseEnd,
		Journal:          jnl,
	}, start, end)
	if err != nil {
		return err
	}

	recordRun(jnl, cfg.Data.Timeframe, run)
	printMetrics(run)

	if btOrg != "" {
		if err := run.WriteOrgFile(btOrg); err != nil {
			return fmt.Errorf("write org report: %w", err)
		}
		fmt.Printf("report written to %s\n", btOrg)
	}
	return nil
}

// recordRun persists the run summary when the journal supports it.
func recordRun(jnl journal.Journal, timeframe string, run backtest.Run) {
	rec, ok := jnl.(interface{ RecordRun(journal.RunRecord) error })
	if !ok {
		return
	}
	rec.RecordRun(journal.RunRecord{
		RunID:             run.RunID,
		Created:           time.Now().UTC(),
		Symbol:            run.Symbol,
		Strategy:          run.Strategy,
		Timeframe:         timeframe,
		WindowStart:       run.WindowStart,
		WindowEnd:         run.WindowEnd,
		Leverage:          run.Leverage,
		StartBalance:      run.InitialBalance,
		FinalBalance:      run.Metrics.FinalBalance,
		TotalReturnPct:    run.Metrics.TotalReturnPct,
		MDDPct:            run.Metrics.MDDPct,
		WinRatePct:        run.Metrics.WinRatePct,
		TotalTrades:       run.Metrics.TotalTrades,
		TotalLiquidations: run.Metrics.TotalLiquidations,
		Status:            "completed",
	})
}

func printMetrics(run backtest.Run) {
	fmt.Printf("%s %s  %s .. %s\n", run.Strategy, run.Symbol,
		run.WindowStart.Format("2006-01-02"), run.WindowEnd.Format("2006-01-02"))
	fmt.Printf("  final_balance:      %.2f\n", run.Metrics.FinalBalance)
	fmt.Printf("  total_return_pct:   %.2f\n", run.Metrics.TotalReturnPct)
	fmt.Printf("  mdd_pct:            %.2f\n", run.Metrics.MDDPct)
	fmt.Printf("  win_rate_pct:       %.2f\n", run.Metrics.WinRatePct)
	fmt.Printf("  total_trades:       %d\n", run.Metrics.TotalTrades)
	fmt.Printf("  total_liquidations: %d\n", run.Metrics.TotalLiquidations)
	fmt.Printf("  market_return_pct:  %.2f\n", run.Metrics.MarketReturnPct)
}
