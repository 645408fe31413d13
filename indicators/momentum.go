package indicators

import (
	"fmt"

	"github.com/rustyeddy/marginsim/market"
)

// Momentum is a streaming rate-of-change indicator: the percent change of the
// close over the last 'period' bars. Used by short-lookback scalping setups.
type Momentum struct {
	period int
	closes []float64
}

func NewMomentum(period int) *Momentum {
	return &Momentum{
		period: period,
		closes: make([]float64, 0, period+1),
	}
}

func (m *Momentum) Name() string {
	return fmt.Sprintf("MOM(%d)", m.period)
}

func (m *Momentum) Warmup() int {
	return m.period + 1
}

func (m *Momentum) Reset() {
	m.closes = m.closes[:0]
}

func (m *Momentum) Update(b market.Bar) {
	m.closes = append(m.closes, b.Close)
	if len(m.closes) > m.period+1 {
		m.closes = m.closes[1:]
	}
}

func (m *Momentum) Ready() bool {
	return len(m.closes) > m.period
}

func (m *Momentum) Value() float64 {
	if !m.Ready() {
		return 0
	}
	oldest := m.closes[0]
	if oldest == 0 {
		return 0
	}
	return (m.closes[len(m.closes)-1]/oldest - 1) * 100
}

func (m *Momentum) State() State {
	return State{Count: len(m.closes), Values: append([]float64(nil), m.closes...)}
}

func (m *Momentum) SetState(s State) {
	m.closes = append(m.closes[:0], s.Values...)
}
