package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/marginsim/bot"
	"github.com/rustyeddy/marginsim/strategies"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Paper-trade a strategy against replayed bars",
	Long: `Bot runs the live trading state machine in paper mode, replaying the
configured data file as if it were a live stream. State is snapshot to disk on
exit so a later run can resume where this one stopped.

Example:
  marginsim bot -c sim.yaml --snapshot bot-state.json`,
	RunE: runBot,
}

var botSnapshot string

func init() {
	rootCmd.AddCommand(botCmd)
	botCmd.Flags().StringVar(&botSnapshot, "snapshot", "", "snapshot file to restore from and save to")
}

func runBot(cmd *cobra.Command, args []string) error {
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
	strat, err := strategies.New(cfg.Strategy.Name, params)
	if err != nil {
		return err
	}

	b, err := bot.New(bot.Config{
		Symbol:           cfg.Data.Symbol,
		Strategy:         strat,
		InitialBalance:   cfg.Account.InitialBalance,
		MaintenanceRatio: cfg.Margin.MaintenanceRatio,
	})
	if err != nil {
		return err
	}

	if botSnapshot != "" {
		if _, statErr := os.Stat(botSnapshot); statErr == nil {
			snap, err := bot.LoadSnapshot(botSnapshot)
			if err != nil {
				return err
			}
			if err := b.Restore(snap); err != nil {
				return err
			}
			fmt.Printf("restored state through %s\n", snap.LastBar.Format("2006-01-02 15:04"))
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		for ev := range b.Events() {
			switch ev.Kind {
			case bot.EventTrade:
				fmt.Printf("%s trade %s pl=%.2f\n",
					ev.Time.Format("2006-01-02 15:04"), ev.Trade.Side, ev.Trade.RealizedPL)
			case bot.EventLiquidation:
				fmt.Printf("%s LIQUIDATED pl=%.2f\n", ev.Time.Format("2006-01-02 15:04"), ev.Trade.RealizedPL)
			case bot.EventHalt:
				fmt.Printf("halted: %v\n", ev.Err)
			}
		}
	}()

	runErr := b.Run(ctx, bot.NewReplayStream(set.Full()))

	if botSnapshot != "" {
		if err := b.SaveSnapshot(botSnapshot); err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		fmt.Printf("state saved to %s\n", botSnapshot)
	}

	acct := b.Account()
	fmt.Printf("final balance %.2f (equity %.2f), state %s\n", acct.Balance, acct.Equity, b.State())
	return runErr
}
