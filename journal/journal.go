// Package journal persists trades, equity curves, and backtest runs.
package journal

import (
	"sync"
	"time"
)

// TradeRecord is one closed (or liquidated) trade.
type TradeRecord struct {
	TradeID    string
	RunID      string
	Symbol     string
	Side       string // "long" or "short"
	Quantity   float64
	Leverage   float64
	EntryPrice float64
	ExitPrice  float64
	OpenTime   time.Time
	CloseTime  time.Time
	RealizedPL float64
	Forced     bool // true when the close was a liquidation
	Reason     string
}

// EquitySnapshot is one point on an account's equity curve.
type EquitySnapshot struct {
	RunID        string
	Time         time.Time
	Balance      float64
	Equity       float64
	UnrealizedPL float64
}

// RunRecord summarizes one backtest run for later querying.
type RunRecord struct {
	RunID       string
	Created     time.Time
	Symbol      string
	Strategy    string
	Timeframe   string
	WindowStart time.Time
	WindowEnd   time.Time
	Leverage    float64

	StartBalance      float64
	FinalBalance      float64
	TotalReturnPct    float64
	MDDPct            float64
	WinRatePct        float64
	TotalTrades       int
	TotalLiquidations int

	Status string // "completed" or "failed"
	Error  string
}

// Journal records trading activity. Implementations must be safe for use by a
// single writer; each backtest run owns its own journal or a run-scoped view.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Nop discards everything. Handy default when callers do not care about
// persistence (e.g. rolling sweeps that keep results in memory).
type Nop struct{}

func (Nop) RecordTrade(TradeRecord) error     { return nil }
func (Nop) RecordEquity(EquitySnapshot) error { return nil }
func (Nop) Close() error                      { return nil }

// Locked wraps a journal with a mutex so concurrent writers can share it.
// Close is the owner's job and stays on the wrapped journal.
func Locked(j Journal) Journal {
	return &locked{j: j}
}

type locked struct {
	mu sync.Mutex
	j  Journal
}

func (l *locked) RecordTrade(t TradeRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.j.RecordTrade(t)
}

func (l *locked) RecordEquity(e EquitySnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.j.RecordEquity(e)
}

func (l *locked) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.j.Close()
}
