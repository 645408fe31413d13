package backtest

import (
	"sort"

	"github.com/rustyeddy/marginsim/sim"
)

// Metrics is the per-run report card. Field names are stable for downstream
// consumers; do not rename.
type Metrics struct {
	FinalBalance      float64 `json:"final_balance"`
	TotalReturnPct    float64 `json:"total_return_pct"`
	MDDPct            float64 `json:"mdd_pct"`
	WinRatePct        float64 `json:"win_rate_pct"`
	TotalTrades       int     `json:"total_trades"`
	TotalLiquidations int     `json:"total_liquidations"`

	// MarketReturnPct is the buy-and-hold benchmark over the same window:
	// last close over first open, minus one.
	MarketReturnPct float64 `json:"market_return_pct"`
}

// ComputeMetrics derives a run's metrics from its trades and equity curve.
// The win rate counts non-forced trades with positive realized profit against
// all closed trades; a run with no trades reports zero.
func ComputeMetrics(initialBalance float64, trades []sim.Trade, curve []sim.EquityPoint) Metrics {
	m := Metrics{
		FinalBalance: initialBalance,
		TotalTrades:  len(trades),
	}

	if n := len(curve); n > 0 {
		m.FinalBalance = curve[n-1].Equity
	}
	if initialBalance > 0 {
		m.TotalReturnPct = (m.FinalBalance/initialBalance - 1) * 100
	}
	m.MDDPct = MaxDrawdownPct(curve)

	wins := 0
	for _, t := range trades {
		if t.Forced {
			m.TotalLiquidations++
			continue
		}
		if t.RealizedPL > 0 {
			wins++
		}
	}
	if len(trades) > 0 {
		m.WinRatePct = float64(wins) / float64(len(trades)) * 100
	}
	return m
}

// MaxDrawdownPct is the largest percentage decline from any prior equity
// peak, in [0, 100].
func MaxDrawdownPct(curve []sim.EquityPoint) float64 {
	var peak, mdd float64
	for _, p := range curve {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - p.Equity) / peak * 100; dd > mdd {
			mdd = dd
		}
	}
	if mdd > 100 {
		mdd = 100
	}
	return mdd
}

// Stat summarizes one metric across a sweep's completed runs.
type Stat struct {
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
	Max    float64 `json:"max"`
}

// Aggregate is the cross-run statistics block of a rolling report, keyed by
// the same stable metric names.
type Aggregate struct {
	FinalBalance      Stat `json:"final_balance"`
	TotalReturnPct    Stat `json:"total_return_pct"`
	MDDPct            Stat `json:"mdd_pct"`
	WinRatePct        Stat `json:"win_rate_pct"`
	TotalTrades       Stat `json:"total_trades"`
	TotalLiquidations Stat `json:"total_liquidations"`
	MarketReturnPct   Stat `json:"market_return_pct"`
}

// AggregateMetrics condenses many per-run metrics into per-metric
// distribution statistics.
func AggregateMetrics(ms []Metrics) Aggregate {
	pick := func(f func(Metrics) float64) Stat {
		xs := make([]float64, len(ms))
		for i, m := range ms {
			xs[i] = f(m)
		}
		return statOf(xs)
	}
	return Aggregate{
		FinalBalance:      pick(func(m Metrics) float64 { return m.FinalBalance }),
		TotalReturnPct:    pick(func(m Metrics) float64 { return m.TotalReturnPct }),
		MDDPct:            pick(func(m Metrics) float64 { return m.MDDPct }),
		WinRatePct:        pick(func(m Metrics) float64 { return m.WinRatePct }),
		TotalTrades:       pick(func(m Metrics) float64 { return float64(m.TotalTrades) }),
		TotalLiquidations: pick(func(m Metrics) float64 { return float64(m.TotalLiquidations) }),
		MarketReturnPct:   pick(func(m Metrics) float64 { return m.MarketReturnPct }),
	}
}

func statOf(xs []float64) Stat {
	if len(xs) == 0 {
		return Stat{}
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	return Stat{
		Min:    sorted[0],
		P25:    percentile(sorted, 0.25),
		Median: percentile(sorted, 0.50),
		P75:    percentile(sorted, 0.75),
		Max:    sorted[len(sorted)-1],
	}
}

// percentile interpolates linearly between the two nearest ranks of an
// already sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
