package backtest

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/marginsim/journal"
	"github.com/rustyeddy/marginsim/market"
	"github.com/rustyeddy/marginsim/strategies"
)

func TestEnumerateWindowsCountLaw(t *testing.T) {
	// 100 hourly bars give a span of 100h.
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100
	}
	set := hourlySet(t, closes)

	tests := []struct {
		name   string
		window time.Duration
		step   time.Duration
		want   int
	}{
		{"exact fit", 100 * time.Hour, 10 * time.Hour, 1},
		{"ten windows", 10 * time.Hour, 10 * time.Hour, 10},
		{"overlapping", 24 * time.Hour, 12 * time.Hour, 7},
		{"single step", 99 * time.Hour, time.Hour, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			specs, err := EnumerateWindows(set, []time.Duration{tt.window}, tt.step)
			require.NoError(t, err)
			// floor((S-W)/T)+1
			assert.Len(t, specs, tt.want)
		})
	}
}

func TestEnumerateWindowsInsufficientHistory(t *testing.T) {
	set := hourlySet(t, []float64{100, 101, 102}) // 3h span

	_, err := EnumerateWindows(set, []time.Duration{24 * time.Hour}, time.Hour)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestEnumerateWindowsMultipleLengths(t *testing.T) {
	closes := make([]float64, 48)
	for i := range closes {
		closes[i] = 100
	}
	set := hourlySet(t, closes)

	specs, err := EnumerateWindows(set, []time.Duration{12 * time.Hour, 24 * time.Hour}, 12*time.Hour)
	require.NoError(t, err)
	// floor((48-12)/12)+1 = 4 plus floor((48-24)/12)+1 = 3
	assert.Len(t, specs, 7)
}

func TestRunRollingIndependentRuns(t *testing.T) {
	closes := make([]float64, 0, 120)
	price := 100.0
	for i := 0; i < 120; i++ {
		if i%20 < 10 {
			price *= 1.01
		} else {
			price *= 0.99
		}
		closes = append(closes, price)
	}
	set := hourlySet(t, closes)

	cfg := SweepConfig{
		Set:            set,
		WindowLengths:  []time.Duration{24 * time.Hour},
		Step:           12 * time.Hour,
		StrategyName:   "ma-cross",
		Params:         strategies.Params{Values: map[string]float64{"fast": 2, "slow": 4, "leverage": 3}},
		InitialBalance: 10000,
		Leverage:       3,
		CloseEnd:       true,
		Workers:        3,
	}

	report, err := RunRolling(context.Background(), cfg)
	require.NoError(t, err)

	// span 120h, window 24h, step 12h -> floor(96/12)+1 = 9
	assert.Len(t, report.Runs, 9)
	assert.Empty(t, report.Failed)

	for i := 1; i < len(report.Runs); i++ {
		assert.True(t, report.Runs[i].WindowStart.After(report.Runs[i-1].WindowStart),
			"runs must be sorted by window start")
	}

	// The same sweep again must aggregate identically regardless of worker
	// interleaving.
	again, err := RunRolling(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, report.Aggregate, again.Aggregate)
	for i := range report.Runs {
		assert.Equal(t, report.Runs[i].Trades, again.Runs[i].Trades)
	}
}

func TestRunRollingIsolatesFailures(t *testing.T) {
	// Knock a bar out of the middle so the window spanning it fails under
	// the strict gap policy while its siblings complete.
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	var bars []market.Bar
	for i := 0; i < 48; i++ {
		if i == 24 {
			continue
		}
		c := 100 + float64(i)
		bars = append(bars, market.Bar{
			Time: base.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c,
		})
	}
	gapped, err := market.New("BTCUSDT", 3600, bars)
	require.NoError(t, err)

	report, err := RunRolling(context.Background(), SweepConfig{
		Set:            gapped,
		WindowLengths:  []time.Duration{12 * time.Hour},
		Step:           12 * time.Hour,
		StrategyName:   "ma-cross",
		Params:         strategies.Params{Values: map[string]float64{"fast": 2, "slow": 3}},
		InitialBalance: 10000,
		SkipGaps:       false,
		Workers:        2,
	})
	require.NoError(t, err)

	require.Len(t, report.Failed, 1, "only the window spanning the gap may fail")
	assert.Len(t, report.Runs, 3, "the sibling windows must still complete")
	assert.ErrorIs(t, report.Failed[0].Err, ErrDataGap)
}

func TestRunRollingSharedJournal(t *testing.T) {
	// All workers write trades and equity through the one configured
	// journal; the sweep must serialize them so nothing is lost or torn.
	closes := make([]float64, 0, 96)
	price := 100.0
	for i := 0; i < 96; i++ {
		if i%10 < 5 {
			price *= 1.02
		} else {
			price *= 0.98
		}
		closes = append(closes, price)
	}
	set := hourlySet(t, closes)

	dir := t.TempDir()
	jnl, err := journal.NewCSV(filepath.Join(dir, "trades.csv"), filepath.Join(dir, "equity.csv"))
	require.NoError(t, err)

	report, err := RunRolling(context.Background(), SweepConfig{
		Set:            set,
		WindowLengths:  []time.Duration{12 * time.Hour},
		Step:           12 * time.Hour,
		StrategyName:   "ma-cross",
		Params:         strategies.Params{Values: map[string]float64{"fast": 2, "slow": 4, "leverage": 3}},
		InitialBalance: 10000,
		CloseEnd:       true,
		Workers:        8,
		Journal:        jnl,
	})
	require.NoError(t, err)
	require.NoError(t, jnl.Close())
	assert.Empty(t, report.Failed)

	total := 0
	for _, run := range report.Runs {
		total += len(run.Trades)
	}
	require.Greater(t, total, 0)

	f, err := os.Open(filepath.Join(dir, "trades.csv"))
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, total+1, "header plus one intact row per trade")
}

func TestRunRollingCancellation(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 100
	}
	set := hourlySet(t, closes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunRolling(ctx, SweepConfig{
		Set:            set,
		WindowLengths:  []time.Duration{24 * time.Hour},
		Step:           time.Hour,
		StrategyName:   "ma-cross",
		Params:         strategies.Params{Values: map[string]float64{"fast": 2, "slow": 3}},
		InitialBalance: 10000,
		Workers:        4,
	})
	assert.ErrorIs(t, err, context.Canceled)
}
