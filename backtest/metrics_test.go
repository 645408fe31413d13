package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rustyeddy/marginsim/sim"
)

func curveOf(equities ...float64) []sim.EquityPoint {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]sim.EquityPoint, len(equities))
	for i, e := range equities {
		pts[i] = sim.EquityPoint{Time: base.Add(time.Duration(i) * time.Hour), Equity: e}
	}
	return pts
}

func TestMaxDrawdownPct(t *testing.T) {
	tests := []struct {
		name  string
		curve []sim.EquityPoint
		want  float64
	}{
		{"monotonic rise", curveOf(100, 110, 120), 0},
		{"single dip", curveOf(100, 120, 90, 130), 25},
		{"full wipeout", curveOf(100, 0), 100},
		{"empty curve", nil, 0},
		{"recovers then deeper", curveOf(100, 80, 120, 60), 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaxDrawdownPct(tt.curve)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
		})
	}
}

func TestComputeMetricsWinRate(t *testing.T) {
	trades := []sim.Trade{
		{RealizedPL: 500},
		{RealizedPL: -200},
		{RealizedPL: 300},
		{RealizedPL: -1000, Forced: true}, // liquidation never counts as a win
	}
	m := ComputeMetrics(10000, trades, curveOf(10000, 9600))

	assert.Equal(t, 4, m.TotalTrades)
	assert.Equal(t, 1, m.TotalLiquidations)
	assert.InDelta(t, 50.0, m.WinRatePct, 1e-9) // 2 wins of 4 closed
	assert.InDelta(t, 9600.0, m.FinalBalance, 1e-9)
	assert.InDelta(t, -4.0, m.TotalReturnPct, 1e-9)
}

func TestComputeMetricsNoTrades(t *testing.T) {
	m := ComputeMetrics(10000, nil, nil)
	assert.Zero(t, m.TotalTrades)
	assert.Zero(t, m.WinRatePct)
	assert.InDelta(t, 10000.0, m.FinalBalance, 1e-9)
	assert.Zero(t, m.TotalReturnPct)
}

func TestAggregateMetrics(t *testing.T) {
	ms := []Metrics{
		{TotalReturnPct: -10},
		{TotalReturnPct: 0},
		{TotalReturnPct: 10},
		{TotalReturnPct: 20},
		{TotalReturnPct: 40},
	}
	agg := AggregateMetrics(ms)

	assert.InDelta(t, -10.0, agg.TotalReturnPct.Min, 1e-9)
	assert.InDelta(t, 10.0, agg.TotalReturnPct.Median, 1e-9)
	assert.InDelta(t, 40.0, agg.TotalReturnPct.Max, 1e-9)
	assert.InDelta(t, 0.0, agg.TotalReturnPct.P25, 1e-9)
	assert.InDelta(t, 20.0, agg.TotalReturnPct.P75, 1e-9)
}

func TestAggregateMetricsEmpty(t *testing.T) {
	agg := AggregateMetrics(nil)
	assert.Zero(t, agg.TotalReturnPct.Median)
}

func TestStatSingleRun(t *testing.T) {
	agg := AggregateMetrics([]Metrics{{FinalBalance: 12345}})
	assert.InDelta(t, 12345.0, agg.FinalBalance.Min, 1e-9)
	assert.InDelta(t, 12345.0, agg.FinalBalance.Median, 1e-9)
	assert.InDelta(t, 12345.0, agg.FinalBalance.Max, 1e-9)
}
