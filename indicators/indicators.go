// Package indicators provides streaming technical indicators for strategies.
package indicators

import "github.com/rustyeddy/marginsim/market"

// Indicator computes a single streaming value from bars.
// It is deterministic and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* bar and updates internal state.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current indicator value. Callers should always check
	// Ready() first; before warmup the value is 0.
	Value() float64
}

// State carries an indicator's rolling accumulators so a live bot can survive
// a process restart without replaying history.
type State struct {
	Count  int       `json:"count"`
	Values []float64 `json:"values"`
}

// Stateful indicators can export and restore their rolling state.
type Stateful interface {
	State() State
	SetState(State)
}
