package strategies

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/rustyeddy/marginsim/margin"
	"github.com/rustyeddy/marginsim/market"
)

func init() {
	Register("arb", NewSpreadArb)
}

// SpreadArb is the dual-feed variant: it compares the traded symbol's close
// against a reference symbol's close at the same timestamp and trades the
// spread against its rolling mean. A wide positive spread shorts the traded
// leg, a wide negative one goes long, and the position closes when the spread
// reverts inside the exit band. Bars with no reference close are skipped.
type SpreadArb struct {
	ref *market.BarSet

	window int
	enter  float64 // entry threshold in spread units
	exit   float64

	sizeFraction float64
	leverage     float64

	spreads []float64
	side    margin.Side
	inTrade bool
}

func NewSpreadArb(p Params) (Strategy, error) {
	if p.Reference == nil {
		return nil, fmt.Errorf("arb strategy requires a reference symbol feed")
	}
	window, err := p.PosInt("window", 20)
	if err != nil {
		return nil, err
	}
	enter := p.Num("enter", 2.0)
	exit := p.Num("exit", 0.5)
	if enter <= 0 || exit < 0 || exit >= enter {
		return nil, fmt.Errorf("arb thresholds out of order: enter %v, exit %v", enter, exit)
	}
	sf, lev := p.sizing()
	return &SpreadArb{
		ref:          p.Reference,
		window:       window,
		enter:        enter,
		exit:         exit,
		sizeFraction: sf,
		leverage:     lev,
	}, nil
}

func (s *SpreadArb) Name() string { return "arb" }

func (s *SpreadArb) Warmup() int { return s.window + 1 }

func (s *SpreadArb) Reset() {
	s.spreads = nil
	s.inTrade = false
}

func (s *SpreadArb) OnBar(bar market.Bar) Signal {
	refClose, ok := s.ref.CloseAt(bar.Time)
	if !ok || refClose == 0 {
		return HoldSignal
	}

	spread := bar.Close/refClose - 1
	s.spreads = append(s.spreads, spread)
	if len(s.spreads) > s.window+1 {
		s.spreads = s.spreads[1:]
	}
	if len(s.spreads) <= s.window {
		return HoldSignal
	}

	mean, std := meanStd(s.spreads[:s.window])
	if std == 0 {
		return HoldSignal
	}
	z := (spread - mean) / std

	if s.inTrade {
		reverted := (s.side == margin.Short && z < s.exit) ||
			(s.side == margin.Long && z > -s.exit)
		if reverted {
			s.inTrade = false
			return Signal{Action: Close}
		}
		return HoldSignal
	}

	switch {
	case z >= s.enter:
		return s.open(margin.Short)
	case z <= -s.enter:
		return s.open(margin.Long)
	}
	return HoldSignal
}

func (s *SpreadArb) open(side margin.Side) Signal {
	s.inTrade = true
	s.side = side
	return Signal{
		Action:       Open,
		Side:         side,
		SizeFraction: s.sizeFraction,
		Leverage:     s.leverage,
	}
}

func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	for _, x := range xs {
		d := x - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(xs)))
	return mean, std
}

type arbState struct {
	Spreads []float64 `json:"spreads"`
	Side    int8      `json:"side"`
	InTrade bool      `json:"in_trade"`
}

func (s *SpreadArb) Snapshot() (json.RawMessage, error) {
	return json.Marshal(arbState{
		Spreads: s.spreads,
		Side:    int8(s.side),
		InTrade: s.inTrade,
	})
}

func (s *SpreadArb) Restore(state json.RawMessage) error {
	var st arbState
	if err := json.Unmarshal(state, &st); err != nil {
		return err
	}
	s.spreads = st.Spreads
	s.side = margin.Side(st.Side)
	s.inTrade = st.InTrade
	return nil
}
