package indicators

import (
	"fmt"

	"github.com/rustyeddy/marginsim/market"
)

// MACD is a streaming Moving Average Convergence Divergence indicator.
// Value() returns the histogram (MACD line minus signal line), which crosses
// zero exactly when the MACD line crosses its signal.
type MACD struct {
	fast   *ExponentialMA
	slow   *ExponentialMA
	signal *ExponentialMA
}

// NewMACD creates a MACD with the given fast/slow/signal periods
// (12/26/9 are the conventional defaults).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fast:   NewEMA(fast),
		slow:   NewEMA(slow),
		signal: NewEMA(signal),
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD(%d,%d,%d)", m.fast.period, m.slow.period, m.signal.period)
}

func (m *MACD) Warmup() int {
	return m.slow.period + m.signal.period
}

func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.signal.Reset()
}

func (m *MACD) Update(b market.Bar) {
	m.fast.Update(b)
	m.slow.Update(b)
	if m.fast.Ready() && m.slow.Ready() {
		m.signal.update(m.fast.Value() - m.slow.Value())
	}
}

func (m *MACD) Ready() bool {
	return m.signal.Ready()
}

// Value returns the histogram: MACD line minus signal line.
func (m *MACD) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.Line() - m.signal.Value()
}

// Line returns the MACD line (fast EMA minus slow EMA).
func (m *MACD) Line() float64 {
	return m.fast.Value() - m.slow.Value()
}

func (m *MACD) State() State {
	fs, ss, gs := m.fast.State(), m.slow.State(), m.signal.State()
	vals := append([]float64(nil), fs.Values...)
	vals = append(vals, ss.Values...)
	vals = append(vals, gs.Values...)
	vals = append(vals, float64(fs.Count), float64(ss.Count), float64(gs.Count))
	return State{Count: gs.Count, Values: vals}
}

func (m *MACD) SetState(s State) {
	if len(s.Values) != 9 {
		return
	}
	m.fast.SetState(State{Count: int(s.Values[6]), Values: s.Values[0:2]})
	m.slow.SetState(State{Count: int(s.Values[7]), Values: s.Values[2:4]})
	m.signal.SetState(State{Count: int(s.Values[8]), Values: s.Values[4:6]})
}
