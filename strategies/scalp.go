package strategies

import (
	"encoding/json"
	"fmt"

	"github.com/rustyeddy/marginsim/indicators"
	"github.com/rustyeddy/marginsim/margin"
	"github.com/rustyeddy/marginsim/market"
)

func init() {
	Register("scalp", NewScalp)
}

// Scalp rides short momentum bursts with a tight exit: open in the direction
// of a rate-of-change beyond the entry threshold, close as soon as momentum
// fades below the exit threshold or the hold limit is hit.
type Scalp struct {
	mom *indicators.Momentum

	enter        float64 // entry threshold, percent
	exit         float64 // exit threshold, percent
	maxHold      int
	sizeFraction float64
	leverage     float64

	held    int
	side    margin.Side
	inTrade bool
}

func NewScalp(p Params) (Strategy, error) {
	period, err := p.PosInt("period", 3)
	if err != nil {
		return nil, err
	}
	maxHold, err := p.PosInt("max_hold", 5)
	if err != nil {
		return nil, err
	}
	enter := p.Num("enter", 0.5)
	exit := p.Num("exit", 0.1)
	if enter <= 0 || exit < 0 || exit >= enter {
		return nil, fmt.Errorf("scalp thresholds out of order: enter %v, exit %v", enter, exit)
	}
	sf, lev := p.sizing()
	return &Scalp{
		mom:          indicators.NewMomentum(period),
		enter:        enter,
		exit:         exit,
		maxHold:      maxHold,
		sizeFraction: sf,
		leverage:     lev,
	}, nil
}

func (s *Scalp) Name() string { return "scalp" }

func (s *Scalp) Warmup() int { return s.mom.Warmup() }

func (s *Scalp) Reset() {
	s.mom.Reset()
	s.held = 0
	s.inTrade = false
}

func (s *Scalp) OnBar(bar market.Bar) Signal {
	s.mom.Update(bar)
	if !s.mom.Ready() {
		return HoldSignal
	}

	roc := s.mom.Value()

	if s.inTrade {
		s.held++
		faded := (s.side == margin.Long && roc < s.exit) ||
			(s.side == margin.Short && roc > -s.exit)
		if faded || s.held >= s.maxHold {
			s.inTrade = false
			s.held = 0
			return Signal{Action: Close}
		}
		return HoldSignal
	}

	switch {
	case roc >= s.enter:
		return s.open(margin.Long)
	case roc <= -s.enter:
		return s.open(margin.Short)
	}
	return HoldSignal
}

func (s *Scalp) open(side margin.Side) Signal {
	s.inTrade = true
	s.side = side
	s.held = 0
	return Signal{
		Action:       Open,
		Side:         side,
		SizeFraction: s.sizeFraction,
		Leverage:     s.leverage,
	}
}

type scalpState struct {
	Mom     indicators.State `json:"mom"`
	Held    int              `json:"held"`
	Side    int8             `json:"side"`
	InTrade bool             `json:"in_trade"`
}

func (s *Scalp) Snapshot() (json.RawMessage, error) {
	return json.Marshal(scalpState{
		Mom:     s.mom.State(),
		Held:    s.held,
		Side:    int8(s.side),
		InTrade: s.inTrade,
	})
}

func (s *Scalp) Restore(state json.RawMessage) error {
	var st scalpState
	if err := json.Unmarshal(state, &st); err != nil {
		return err
	}
	s.mom.SetState(st.Mom)
	s.held = st.Held
	s.side = margin.Side(st.Side)
	s.inTrade = st.InTrade
	return nil
}
