package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/marginsim/margin"
	"github.com/rustyeddy/marginsim/market"
	"github.com/rustyeddy/marginsim/strategies"
)

func hourlySet(t *testing.T, closes []float64) *market.BarSet {
	t.Helper()
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Time:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour),
			Open:  c,
			High:  c,
			Low:   c,
			Close: c,
		}
	}
	set, err := market.New("BTCUSDT", 3600, bars)
	require.NoError(t, err)
	return set
}

// holdStrategy opens once on the first bar and never exits.
type holdStrategy struct {
	side     margin.Side
	leverage float64
	opened   bool
}

func (s *holdStrategy) Name() string { return "hold" }
func (s *holdStrategy) Warmup() int  { return 1 }
func (s *holdStrategy) Reset()       { s.opened = false }

func (s *holdStrategy) OnBar(bar market.Bar) strategies.Signal {
	if s.opened {
		return strategies.HoldSignal
	}
	s.opened = true
	return strategies.Signal{
		Action:       strategies.Open,
		Side:         s.side,
		SizeFraction: 1.0,
		Leverage:     s.leverage,
	}
}

// badSignalStrategy always emits an invalid open.
type badSignalStrategy struct{}

func (badSignalStrategy) Name() string { return "bad" }
func (badSignalStrategy) Warmup() int  { return 1 }
func (badSignalStrategy) Reset()       {}
func (badSignalStrategy) OnBar(market.Bar) strategies.Signal {
	return strategies.Signal{Action: strategies.Open, Side: margin.Long, SizeFraction: 2, Leverage: 1}
}

func runDriver(t *testing.T, set *market.BarSet, strat strategies.Strategy, skipGaps bool) (Run, error) {
	t.Helper()
	driver, err := NewDriver(DriverConfig{
		Window:           set.Full(),
		Strategy:         strat,
		InitialBalance:   10000,
		MaintenanceRatio: 0.005,
		SkipGaps:         skipGaps,
		CloseEnd:         true,
	})
	require.NoError(t, err)
	return driver.Run(context.Background())
}

func TestBuyAndHoldUnleveraged(t *testing.T) {
	closes := []float64{100, 102, 104, 106, 108, 110}
	set := hourlySet(t, closes)

	run, err := runDriver(t, set, &holdStrategy{side: margin.Long, leverage: 1}, false)
	require.NoError(t, err)

	assert.InDelta(t, 11000.0, run.Metrics.FinalBalance, 1e-9)
	assert.InDelta(t, 10.0, run.Metrics.TotalReturnPct, 1e-9)
	assert.InDelta(t, 10.0, run.Metrics.MarketReturnPct, 1e-9)
	assert.Zero(t, run.Metrics.TotalLiquidations)
	assert.Zero(t, run.Metrics.MDDPct)
}

func TestLeveragedLongLiquidates(t *testing.T) {
	closes := []float64{100, 98, 96, 94, 92, 90, 90, 90}
	set := hourlySet(t, closes)

	run, err := runDriver(t, set, &holdStrategy{side: margin.Long, leverage: 10}, false)
	require.NoError(t, err)

	assert.Equal(t, 1, run.Metrics.TotalLiquidations)
	require.Len(t, run.Trades, 1)
	trade := run.Trades[0]
	assert.True(t, trade.Forced)
	assert.InDelta(t, -10000.0, trade.RealizedPL, 1e-9)
	assert.InDelta(t, 0.0, run.Metrics.FinalBalance, 1e-9)
}

func TestNoReopenOnLiquidationBar(t *testing.T) {
	// The strategy wants to be long on every bar; when the liquidation
	// fires its signal for that bar must be void, so the re-entry can only
	// happen from the next bar on.
	closes := []float64{100, 80, 85, 85}
	set := hourlySet(t, closes)

	strat := &reopenStrategy{sizeFraction: 0.5, leverage: 10}
	run, err := runDriver(t, set, strat, false)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(run.Trades), 2)
	assert.True(t, run.Trades[0].Forced)
	liqTime := run.Trades[0].ExitTime
	for _, tr := range run.Trades[1:] {
		assert.True(t, tr.EntryTime.After(liqTime),
			"no position may open on the liquidation bar")
	}
}

// reopenStrategy opens whenever the driver lets it.
type reopenStrategy struct {
	sizeFraction float64
	leverage     float64
}

func (s *reopenStrategy) Name() string { return "reopen" }
func (s *reopenStrategy) Warmup() int  { return 1 }
func (s *reopenStrategy) Reset()       {}

func (s *reopenStrategy) OnBar(bar market.Bar) strategies.Signal {
	return strategies.Signal{
		Action:       strategies.Open,
		Side:         margin.Long,
		SizeFraction: s.sizeFraction,
		Leverage:     s.leverage,
	}
}

func TestMalformedSignalIsHold(t *testing.T) {
	closes := []float64{100, 101, 102, 103}
	set := hourlySet(t, closes)

	run, err := runDriver(t, set, badSignalStrategy{}, false)
	require.NoError(t, err)
	assert.Empty(t, run.Trades, "invalid signals must be discarded, not applied")
	assert.Equal(t, 4, run.InvalidSignals)
	assert.InDelta(t, 10000.0, run.Metrics.FinalBalance, 1e-9)
}

func TestGapPolicy(t *testing.T) {
	bars := []market.Bar{}
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for _, h := range []int{0, 1, 3, 4} { // hour 2 missing
		c := 100.0 + float64(h)
		bars = append(bars, market.Bar{Time: base.Add(time.Duration(h) * time.Hour), Open: c, High: c, Low: c, Close: c})
	}
	set, err := market.New("BTCUSDT", 3600, bars)
	require.NoError(t, err)

	t.Run("strict fails with DataGapError", func(t *testing.T) {
		_, err := runDriver(t, set, &holdStrategy{side: margin.Long, leverage: 1}, false)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDataGap)
	})

	t.Run("skip_gaps completes", func(t *testing.T) {
		run, err := runDriver(t, set, &holdStrategy{side: margin.Long, leverage: 1}, true)
		require.NoError(t, err)
		assert.Len(t, run.Curve, 4)
	})
}

func TestDriverRejectsBadReportLeverage(t *testing.T) {
	set := hourlySet(t, []float64{100, 101})

	_, err := NewDriver(DriverConfig{
		Window:         set.Full(),
		Strategy:       &holdStrategy{side: margin.Long, leverage: 1},
		InitialBalance: 10000,
		Leverage:       200,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, margin.ErrInvalidLeverage)
}

func TestDriverSingleUse(t *testing.T) {
	set := hourlySet(t, []float64{100, 101})
	driver, err := NewDriver(DriverConfig{
		Window:         set.Full(),
		Strategy:       &holdStrategy{side: margin.Long, leverage: 1},
		InitialBalance: 10000,
	})
	require.NoError(t, err)

	_, err = driver.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, driver.State())

	_, err = driver.Run(context.Background())
	assert.Error(t, err)
}

func TestDriverCancellation(t *testing.T) {
	set := hourlySet(t, []float64{100, 101, 102})
	driver, err := NewDriver(DriverConfig{
		Window:         set.Full(),
		Strategy:       &holdStrategy{side: margin.Long, leverage: 1},
		InitialBalance: 10000,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = driver.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, driver.State())
}

func TestDeterminism(t *testing.T) {
	closes := []float64{100, 98, 96, 94, 110, 120, 130, 90, 70, 50, 40, 60, 80, 100}
	set := hourlySet(t, closes)

	runOnce := func() Run {
		strat, err := strategies.New("ma-cross", strategies.Params{
			Values: map[string]float64{"fast": 2, "slow": 3, "leverage": 5},
		})
		require.NoError(t, err)
		run, err := runDriver(t, set, strat, false)
		require.NoError(t, err)
		return run
	}

	a, b := runOnce(), runOnce()
	assert.Equal(t, a.Trades, b.Trades)
	assert.Equal(t, a.Curve, b.Curve)
	assert.Equal(t, a.Metrics, b.Metrics)
}
