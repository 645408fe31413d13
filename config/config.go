// Package config loads and validates the simulator configuration from YAML
// or JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete simulator configuration.
type Config struct {
	Account  AccountConfig  `json:"account" yaml:"account"`
	Margin   MarginConfig   `json:"margin" yaml:"margin"`
	Data     DataConfig     `json:"data" yaml:"data"`
	Strategy StrategyConfig `json:"strategy" yaml:"strategy"`
	Backtest BacktestConfig `json:"backtest" yaml:"backtest"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
}

// AccountConfig contains account initialization parameters.
type AccountConfig struct {
	InitialBalance float64 `json:"initial_balance" yaml:"initial_balance"`
}

// MarginConfig contains the margin engine knobs.
type MarginConfig struct {
	MaintenanceRatio float64 `json:"maintenance_ratio" yaml:"maintenance_ratio"`
	MaxLeverage      float64 `json:"max_leverage" yaml:"max_leverage"`
}

// DataConfig points at the bar data to load.
type DataConfig struct {
	Symbol    string `json:"symbol" yaml:"symbol"`
	Path      string `json:"path" yaml:"path"`
	Timeframe string `json:"timeframe" yaml:"timeframe"` // e.g. "1h", "15m"

	// RefSymbol and RefPath feed the dual-feed strategies.
	RefSymbol string `json:"ref_symbol,omitempty" yaml:"ref_symbol,omitempty"`
	RefPath   string `json:"ref_path,omitempty" yaml:"ref_path,omitempty"`
}

// TimeframeDuration parses the timeframe string.
func (d DataConfig) TimeframeDuration() (time.Duration, error) {
	if d.Timeframe == "" {
		return time.Hour, nil
	}
	return time.ParseDuration(d.Timeframe)
}

// StrategyConfig selects and parameterizes a strategy.
type StrategyConfig struct {
	Name     string             `json:"name" yaml:"name"`
	Leverage float64            `json:"leverage" yaml:"leverage"`
	Params   map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`
}

// BacktestConfig contains the sweep parameters.
type BacktestConfig struct {
	SkipGaps      bool     `json:"skip_gaps" yaml:"skip_gaps"`
	CloseEnd      bool     `json:"close_end" yaml:"close_end"`
	Workers       int      `json:"workers" yaml:"workers"`
	WindowLengths []string `json:"window_lengths,omitempty" yaml:"window_lengths,omitempty"` // e.g. ["720h", "2160h"]
	Step          string   `json:"step,omitempty" yaml:"step,omitempty"`
}

// Windows parses the window lengths.
func (b BacktestConfig) Windows() ([]time.Duration, error) {
	out := make([]time.Duration, 0, len(b.WindowLengths))
	for _, s := range b.WindowLengths {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("bad window length %q: %w", s, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// StepDuration parses the sweep step.
func (b BacktestConfig) StepDuration() (time.Duration, error) {
	if b.Step == "" {
		return 24 * time.Hour, nil
	}
	return time.ParseDuration(b.Step)
}

// JournalConfig contains journaling parameters.
type JournalConfig struct {
	Type       string `json:"type" yaml:"type"` // "none", "csv" or "sqlite"
	TradesFile string `json:"trades_file,omitempty" yaml:"trades_file,omitempty"`
	EquityFile string `json:"equity_file,omitempty" yaml:"equity_file,omitempty"`
	DBPath     string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// LoadFromFile loads configuration from a file, trying YAML first and falling
// back to JSON.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves the configuration, picking the format by extension.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Account.InitialBalance <= 0 {
		return fmt.Errorf("account.initial_balance must be positive")
	}
	if c.Margin.MaintenanceRatio < 0 || c.Margin.MaintenanceRatio >= 1 {
		return fmt.Errorf("margin.maintenance_ratio must be in [0, 1)")
	}
	if c.Margin.MaxLeverage < 1 || c.Margin.MaxLeverage > 125 {
		return fmt.Errorf("margin.max_leverage must be in [1, 125]")
	}
	if c.Data.Symbol == "" {
		return fmt.Errorf("data.symbol is required")
	}
	if c.Data.Path == "" {
		return fmt.Errorf("data.path is required")
	}
	if _, err := c.Data.TimeframeDuration(); err != nil {
		return fmt.Errorf("data.timeframe: %w", err)
	}
	if c.Strategy.Name == "" {
		return fmt.Errorf("strategy.name is required")
	}
	if c.Strategy.Leverage < 1 || c.Strategy.Leverage > c.Margin.MaxLeverage {
		return fmt.Errorf("strategy.leverage must be in [1, %g]", c.Margin.MaxLeverage)
	}
	if _, err := c.Backtest.Windows(); err != nil {
		return err
	}
	if _, err := c.Backtest.StepDuration(); err != nil {
		return fmt.Errorf("backtest.step: %w", err)
	}
	switch c.Journal.Type {
	case "", "none":
	case "csv":
		if c.Journal.TradesFile == "" || c.Journal.EquityFile == "" {
			return fmt.Errorf("journal trades_file and equity_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	default:
		return fmt.Errorf("journal.type must be 'none', 'csv' or 'sqlite'")
	}
	return nil
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			InitialBalance: 10000,
		},
		Margin: MarginConfig{
			MaintenanceRatio: 0.005,
			MaxLeverage:      125,
		},
		Data: DataConfig{
			Symbol:    "BTCUSDT",
			Path:      "./data/BTCUSDT-1h.csv",
			Timeframe: "1h",
		},
		Strategy: StrategyConfig{
			Name:     "ma-cross",
			Leverage: 3,
			Params: map[string]float64{
				"fast": 10,
				"slow": 30,
			},
		},
		Backtest: BacktestConfig{
			SkipGaps:      true,
			CloseEnd:      true,
			Workers:       4,
			WindowLengths: []string{"4320h"}, // ~6 months
			Step:          "720h",            // ~1 month
		},
		Journal: JournalConfig{
			Type: "none",
		},
	}
}
