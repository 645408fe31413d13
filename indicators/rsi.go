package indicators

import (
	"fmt"

	"github.com/rustyeddy/marginsim/market"
)

// RSI is a streaming Relative Strength Index using Wilder smoothing.
type RSI struct {
	period    int
	count     int
	prevClose float64
	avgGain   float64
	avgLoss   float64
}

func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI(%d)", r.period)
}

func (r *RSI) Warmup() int {
	// One extra bar to seed prevClose.
	return r.period + 1
}

func (r *RSI) Reset() {
	r.count = 0
	r.prevClose = 0
	r.avgGain = 0
	r.avgLoss = 0
}

func (r *RSI) Update(b market.Bar) {
	if r.count == 0 {
		r.prevClose = b.Close
		r.count++
		return
	}

	delta := b.Close - r.prevClose
	r.prevClose = b.Close

	gain, loss := 0.0, 0.0
	if delta > 0 {
		gain = delta
	} else {
		loss = -delta
	}

	if r.count <= r.period {
		// Seed the averages with a plain mean over the first period deltas.
		r.avgGain += gain / float64(r.period)
		r.avgLoss += loss / float64(r.period)
	} else {
		alpha := 1.0 / float64(r.period)
		r.avgGain = r.avgGain*(1-alpha) + gain*alpha
		r.avgLoss = r.avgLoss*(1-alpha) + loss*alpha
	}
	r.count++
}

func (r *RSI) Ready() bool {
	return r.count > r.period
}

func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	if r.avgLoss == 0 {
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}

func (r *RSI) State() State {
	return State{Count: r.count, Values: []float64{r.prevClose, r.avgGain, r.avgLoss}}
}

func (r *RSI) SetState(s State) {
	r.count = s.Count
	if len(s.Values) == 3 {
		r.prevClose = s.Values[0]
		r.avgGain = s.Values[1]
		r.avgLoss = s.Values[2]
	}
}
