package strategies

import (
	"encoding/json"

	"github.com/rustyeddy/marginsim/indicators"
	"github.com/rustyeddy/marginsim/margin"
	"github.com/rustyeddy/marginsim/market"
)

func init() {
	Register("ma-cross", NewMACross)
}

// MACross trades a fast/slow EMA crossover. It enters long on a bull cross
// and short on a bear cross. An opposite cross closes the open position and
// queues the reversal, which opens on the following bar since only one action
// applies per bar.
type MACross struct {
	fast *indicators.ExponentialMA
	slow *indicators.ExponentialMA

	sizeFraction float64
	leverage     float64

	lastDiff     float64
	haveLastDiff bool
	inPosition   bool
	posSide      margin.Side
	pendingSide  margin.Side
	pendingOpen  bool
}

func NewMACross(p Params) (Strategy, error) {
	fast, err := p.PosInt("fast", 10)
	if err != nil {
		return nil, err
	}
	slow, err := p.PosInt("slow", 30)
	if err != nil {
		return nil, err
	}
	sf, lev := p.sizing()
	return &MACross{
		fast:         indicators.NewEMA(fast),
		slow:         indicators.NewEMA(slow),
		sizeFraction: sf,
		leverage:     lev,
	}, nil
}

func (s *MACross) Name() string { return "ma-cross" }

func (s *MACross) Warmup() int {
	if w := s.slow.Warmup(); w > s.fast.Warmup() {
		return w + 1
	}
	return s.fast.Warmup() + 1
}

func (s *MACross) Reset() {
	s.fast.Reset()
	s.slow.Reset()
	s.lastDiff = 0
	s.haveLastDiff = false
	s.inPosition = false
	s.pendingOpen = false
}

func (s *MACross) OnBar(bar market.Bar) Signal {
	s.fast.Update(bar)
	s.slow.Update(bar)
	if !s.fast.Ready() || !s.slow.Ready() {
		return HoldSignal
	}

	diff := s.fast.Value() - s.slow.Value()
	if !s.haveLastDiff {
		s.lastDiff = diff
		s.haveLastDiff = true
		return HoldSignal
	}

	bullCross := diff > 0 && s.lastDiff <= 0
	bearCross := diff < 0 && s.lastDiff >= 0
	s.lastDiff = diff

	switch {
	case bullCross:
		return s.signalFor(margin.Long)
	case bearCross:
		return s.signalFor(margin.Short)
	}

	if s.pendingOpen {
		s.pendingOpen = false
		return s.open(s.pendingSide)
	}
	return HoldSignal
}

// signalFor turns a cross into Close (queueing the reversal) or Open.
func (s *MACross) signalFor(side margin.Side) Signal {
	if s.inPosition {
		if s.posSide == side {
			return HoldSignal
		}
		s.inPosition = false
		s.pendingSide = side
		s.pendingOpen = true
		return Signal{Action: Close}
	}
	s.pendingOpen = false
	return s.open(side)
}

func (s *MACross) open(side margin.Side) Signal {
	s.inPosition = true
	s.posSide = side
	return Signal{
		Action:       Open,
		Side:         side,
		SizeFraction: s.sizeFraction,
		Leverage:     s.leverage,
	}
}

type maCrossState struct {
	Fast         indicators.State `json:"fast"`
	Slow         indicators.State `json:"slow"`
	LastDiff     float64          `json:"last_diff"`
	HaveLastDiff bool             `json:"have_last_diff"`
	InPosition   bool             `json:"in_position"`
	PosSide      int8             `json:"pos_side"`
	PendingSide  int8             `json:"pending_side"`
	PendingOpen  bool             `json:"pending_open"`
}

func (s *MACross) Snapshot() (json.RawMessage, error) {
	return json.Marshal(maCrossState{
		Fast:         s.fast.State(),
		Slow:         s.slow.State(),
		LastDiff:     s.lastDiff,
		HaveLastDiff: s.haveLastDiff,
		InPosition:   s.inPosition,
		PosSide:      int8(s.posSide),
		PendingSide:  int8(s.pendingSide),
		PendingOpen:  s.pendingOpen,
	})
}

func (s *MACross) Restore(state json.RawMessage) error {
	var st maCrossState
	if err := json.Unmarshal(state, &st); err != nil {
		return err
	}
	s.fast.SetState(st.Fast)
	s.slow.SetState(st.Slow)
	s.lastDiff = st.LastDiff
	s.haveLastDiff = st.HaveLastDiff
	s.inPosition = st.InPosition
	s.posSide = margin.Side(st.PosSide)
	s.pendingSide = margin.Side(st.PendingSide)
	s.pendingOpen = st.PendingOpen
	return nil
}
