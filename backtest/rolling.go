package backtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/marginsim/journal"
	"github.com/rustyeddy/marginsim/market"
	"github.com/rustyeddy/marginsim/strategies"
)

// FailedRun records one window whose run did not complete, with the reason.
type FailedRun struct {
	Window WindowSpec
	Err    error
}

// RollingReport is the outcome of a sweep: every completed run, every failed
// window, and the cross-run aggregate. Immutable once returned.
type RollingReport struct {
	Symbol    string
	Strategy  string
	Runs      []Run
	Failed    []FailedRun
	Aggregate Aggregate
}

// SweepConfig configures a rolling sweep. StrategyFactory is called once per
// run so every worker gets private rolling state. Workers defaults to 4.
type SweepConfig struct {
	Set            *market.BarSet
	WindowLengths  []time.Duration
	Step           time.Duration
	StrategyName   string
	Params         strategies.Params
	InitialBalance float64
	// Leverage is report metadata, normally the same "leverage" value
	// injected into Params; the signals' own leverage governs fills.
	Leverage float64

	MaintenanceRatio float64
	SkipGaps         bool
	CloseEnd         bool
	Workers          int
	Journal          journal.Journal
}

// RunRolling enumerates the windows and fans them out over a fixed worker
// pool. Each worker owns its strategy instance and ledger; the shared bar data
// is read-only, and a shared journal is serialized behind a lock. A failed run
// becomes a Failed entry; it never cancels siblings. ctx cancellation stops
// the whole sweep promptly.
func RunRolling(ctx context.Context, cfg SweepConfig) (*RollingReport, error) {
	specs, err := EnumerateWindows(cfg.Set, cfg.WindowLengths, cfg.Step)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(specs) {
		workers = len(specs)
	}

	// Every worker's ledger writes to the same journal; journals are
	// single-writer, so serialize them behind one lock for the sweep.
	if cfg.Journal != nil {
		cfg.Journal = journal.Locked(cfg.Journal)
	}

	type outcome struct {
		spec WindowSpec
		run  Run
		err  error
	}

	work := make(chan WindowSpec)
	results := make(chan outcome, len(specs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for spec := range work {
				run, err := runWindow(ctx, cfg, spec)
				results <- outcome{spec: spec, run: run, err: err}
			}
		}()
	}

feed:
	for _, spec := range specs {
		select {
		case work <- spec:
		case <-ctx.Done():
			break feed
		}
	}
	close(work)
	wg.Wait()
	close(results)

	report := &RollingReport{
		Symbol:   cfg.Set.Symbol,
		Strategy: cfg.StrategyName,
	}
	for out := range results {
		if out.err != nil {
			report.Failed = append(report.Failed, FailedRun{Window: out.spec, Err: out.err})
			continue
		}
		report.Runs = append(report.Runs, out.run)
	}

	// Workers finish out of order; put the report back in window order.
	sort.Slice(report.Runs, func(i, j int) bool {
		a, b := report.Runs[i], report.Runs[j]
		if !a.WindowStart.Equal(b.WindowStart) {
			return a.WindowStart.Before(b.WindowStart)
		}
		return a.WindowEnd.Before(b.WindowEnd)
	})
	sort.Slice(report.Failed, func(i, j int) bool {
		a, b := report.Failed[i].Window, report.Failed[j].Window
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.End.Before(b.End)
	})

	ms := make([]Metrics, len(report.Runs))
	for i, run := range report.Runs {
		ms[i] = run.Metrics
	}
	report.Aggregate = AggregateMetrics(ms)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// RunSingle backtests one explicit window using the sweep configuration.
func RunSingle(ctx context.Context, cfg SweepConfig, start, end time.Time) (Run, error) {
	return runWindow(ctx, cfg, WindowSpec{Start: start, End: end, Length: end.Sub(start)})
}

func runWindow(ctx context.Context, cfg SweepConfig, spec WindowSpec) (Run, error) {
	view, err := cfg.Set.Window(spec.Start, spec.End)
	if err != nil {
		return Run{}, err
	}
	strat, err := strategies.New(cfg.StrategyName, cfg.Params)
	if err != nil {
		return Run{}, err
	}
	driver, err := NewDriver(DriverConfig{
		Window:           view,
		Strategy:         strat,
		InitialBalance:   cfg.InitialBalance,
		Leverage:         cfg.Leverage,
		MaintenanceRatio: cfg.MaintenanceRatio,
		SkipGaps:         cfg.SkipGaps,
		CloseEnd:         cfg.CloseEnd,
		Journal:          cfg.Journal,
	})
	if err != nil {
		return Run{}, err
	}
	return driver.Run(ctx)
}
