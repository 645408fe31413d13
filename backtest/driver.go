// Package backtest drives strategies over historical bars: single runs,
// rolling-window sweeps across many overlapping windows, and the per-run and
// cross-run metrics downstream consumers read.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/marginsim/internal/id"
	"github.com/rustyeddy/marginsim/journal"
	"github.com/rustyeddy/marginsim/margin"
	"github.com/rustyeddy/marginsim/market"
	"github.com/rustyeddy/marginsim/sim"
	"github.com/rustyeddy/marginsim/strategies"
)

// ErrDataGap reports a missing bar in the driver's window when the gap policy
// forbids skipping.
var ErrDataGap = errors.New("missing bar in series")

// State tracks a driver through its lifecycle.
type State int8

const (
	Idle State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	}
	return fmt.Sprintf("State(%d)", int8(s))
}

// Run is one finished backtest: the window it covered, everything the ledger
// recorded, and the metrics computed from it. Immutable once returned.
type Run struct {
	RunID          string
	Symbol         string
	Strategy       string
	WindowStart    time.Time
	WindowEnd      time.Time
	InitialBalance float64
	Leverage       float64

	Trades       []sim.Trade
	Curve        []sim.EquityPoint
	Liquidations int
	// InvalidSignals counts strategy signals discarded by validation.
	InvalidSignals int
	Metrics        Metrics
}

// DriverConfig assembles one driver. Journal is optional.
type DriverConfig struct {
	Window         market.View
	Strategy       strategies.Strategy
	InitialBalance float64
	// Leverage is report metadata echoed into Run and the run journal: the
	// configured leverage handed to the strategy via its params. Each
	// signal's own leverage governs the fills. Zero means unreported.
	Leverage float64

	MaintenanceRatio float64
	SkipGaps         bool
	// CloseEnd closes any position still open at the last bar of the
	// window, so every run's balance is fully realized.
	CloseEnd bool
	Journal  journal.Journal
}

// Driver replays one window bar by bar against one strategy and one ledger.
// A driver is single-use: construct, Run, read the result.
type Driver struct {
	cfg     DriverConfig
	ledger  *sim.Ledger
	state   State
	runID   string
	invalid int

	first, last market.Bar
	seen        bool
}

func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("backtest: strategy is required")
	}
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("backtest: initial balance must be positive, got %.2f", cfg.InitialBalance)
	}
	if cfg.Leverage != 0 {
		if err := margin.CheckLeverage(cfg.Leverage); err != nil {
			return nil, fmt.Errorf("backtest: %w", err)
		}
	}
	set := cfg.Window.Set()
	if set == nil {
		return nil, fmt.Errorf("backtest: window is required")
	}

	d := &Driver{
		cfg:    cfg,
		ledger: sim.NewLedger(set.Symbol, cfg.InitialBalance, cfg.MaintenanceRatio),
		state:  Idle,
		runID:  id.New(),
	}
	if cfg.Journal != nil {
		d.ledger.SetJournal(cfg.Journal, d.runID)
	}
	return d, nil
}

func (d *Driver) State() State { return d.state }
func (d *Driver) RunID() string { return d.runID }

// Run executes the per-bar loop over the window. Each bar, in order:
// mark-to-market and the margin check; then the strategy's signal, discarded
// on the bar a liquidation just fired so a run never reopens into the move
// that wiped it. Cancellation is polled between bars.
func (d *Driver) Run(ctx context.Context) (Run, error) {
	if d.state != Idle {
		return Run{}, fmt.Errorf("backtest: driver already ran (state %s)", d.state)
	}
	d.state = Running
	d.cfg.Strategy.Reset()

	set := d.cfg.Window.Set()
	lo, hi := d.cfg.Window.Slots()

	for idx := lo; idx < hi; idx++ {
		if err := ctx.Err(); err != nil {
			return d.fail(err)
		}

		bar, ok := set.At(idx)
		if !ok {
			if d.cfg.SkipGaps {
				continue
			}
			return d.fail(fmt.Errorf("%w: %s at %s",
				ErrDataGap, set.Symbol, set.Time(idx).Format(time.RFC3339)))
		}

		if err := d.step(bar); err != nil {
			return d.fail(err)
		}
		if !d.seen {
			d.first, d.seen = bar, true
		}
		d.last = bar
	}

	if d.cfg.CloseEnd && d.seen {
		if _, open := d.ledger.Position(); open {
			if _, err := d.ledger.Close(d.last.Close, d.last.Time); err != nil {
				return d.fail(err)
			}
		}
	}

	d.state = Completed
	return d.result(), nil
}

// step runs the four per-bar stages for a single bar.
func (d *Driver) step(bar market.Bar) error {
	d.ledger.MarkToMarket(bar.Close, bar.Time)
	liquidated, err := d.ledger.EnforceMargin(bar.Time)
	if err != nil {
		return err
	}

	// The strategy always sees the bar so its indicators stay in step,
	// but its signal is void on a liquidation bar.
	sig := d.cfg.Strategy.OnBar(bar)
	if liquidated {
		return nil
	}
	if err := sig.Validate(); err != nil {
		// A malformed signal costs the strategy this bar, not the run.
		d.invalid++
		return nil
	}

	switch sig.Action {
	case strategies.Open:
		if _, open := d.ledger.Position(); open {
			break
		}
		err := d.ledger.Open(sig.Side, sig.SizeFraction, sig.Leverage, bar.Close, bar.Time)
		if err != nil && !errors.Is(err, sim.ErrInsufficientFunds) {
			return err
		}
	case strategies.Close:
		if _, open := d.ledger.Position(); !open {
			break
		}
		if _, err := d.ledger.Close(bar.Close, bar.Time); err != nil {
			return err
		}
	}

	d.ledger.MarkToMarket(bar.Close, bar.Time)
	return nil
}

func (d *Driver) fail(err error) (Run, error) {
	d.state = Failed
	return Run{}, fmt.Errorf("backtest run %s: %w", d.runID, err)
}

func (d *Driver) result() Run {
	start, end := d.cfg.Window.Bounds()
	metrics := ComputeMetrics(d.cfg.InitialBalance, d.ledger.Trades(), d.ledger.Curve())
	if d.seen && d.first.Open > 0 {
		metrics.MarketReturnPct = (d.last.Close/d.first.Open - 1) * 100
	}
	return Run{
		RunID:          d.runID,
		Symbol:         d.cfg.Window.Set().Symbol,
		Strategy:       d.cfg.Strategy.Name(),
		WindowStart:    start,
		WindowEnd:      end,
		InitialBalance: d.cfg.InitialBalance,
		Leverage:       d.cfg.Leverage,
		Trades:         d.ledger.Trades(),
		Curve:          d.ledger.Curve(),
		Liquidations:   d.ledger.Liquidations(),
		InvalidSignals: d.invalid,
		Metrics:        metrics,
	}
}
