package cmd

import (
	"fmt"
	"time"

	"github.com/rustyeddy/marginsim/config"
	"github.com/rustyeddy/marginsim/journal"
	"github.com/rustyeddy/marginsim/market"
	"github.com/rustyeddy/marginsim/strategies"
)

// loadConfig reads --config when given, otherwise starts from defaults.
func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		return config.Default(), nil
	}
	return config.LoadFromFile(cfgPath)
}

// loadBars loads the primary bar set named by the config.
func loadBars(cfg *config.Config) (*market.BarSet, error) {
	tf, err := cfg.Data.TimeframeDuration()
	if err != nil {
		return nil, err
	}
	set, err := market.LoadCSV(cfg.Data.Path, cfg.Data.Symbol, int32(tf/time.Second))
	if err != nil {
		return nil, err
	}
	if len(set.Gaps) > 0 {
		fmt.Printf("loaded %d/%d bars for %s (%d gaps, %d duplicates dropped)\n",
			set.Count(), set.Len(), set.Symbol, len(set.Gaps), set.Duplicates())
	}
	return set, nil
}

// buildParams assembles strategy parameters from config, loading the
// reference series when a dual-feed strategy needs one.
func buildParams(cfg *config.Config) (strategies.Params, error) {
	values := map[string]float64{"leverage": cfg.Strategy.Leverage}
	for k, v := range cfg.Strategy.Params {
		values[k] = v
	}

	p := strategies.Params{Values: values}
	if cfg.Data.RefPath != "" {
		tf, err := cfg.Data.TimeframeDuration()
		if err != nil {
			return p, err
		}
		ref, err := market.LoadCSV(cfg.Data.RefPath, cfg.Data.RefSymbol, int32(tf/time.Second))
		if err != nil {
			return p, fmt.Errorf("load reference series: %w", err)
		}
		p.Reference = ref
	}
	return p, nil
}

// openJournal builds the configured journal. The caller owns Close.
func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "", "none":
		return journal.Nop{}, nil
	case "csv":
		return journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	}
	return nil, fmt.Errorf("unknown journal type %q", cfg.Journal.Type)
}
