package strategies

import (
	"encoding/json"
	"fmt"

	"github.com/rustyeddy/marginsim/indicators"
	"github.com/rustyeddy/marginsim/margin"
	"github.com/rustyeddy/marginsim/market"
)

func init() {
	Register("rsi", NewRSIRevert)
}

// RSIRevert is a mean-reversion strategy: open long when RSI drops below the
// oversold line, close when it recovers above the exit line.
type RSIRevert struct {
	rsi *indicators.RSI

	oversold float64
	exit     float64

	sizeFraction float64
	leverage     float64

	long bool
}

func NewRSIRevert(p Params) (Strategy, error) {
	period, err := p.PosInt("period", 14)
	if err != nil {
		return nil, err
	}
	oversold := p.Num("oversold", 30)
	exit := p.Num("exit", 55)
	if oversold <= 0 || oversold >= 100 || exit <= oversold || exit > 100 {
		return nil, fmt.Errorf("rsi thresholds out of order: oversold %v, exit %v", oversold, exit)
	}
	sf, lev := p.sizing()
	return &RSIRevert{
		rsi:          indicators.NewRSI(period),
		oversold:     oversold,
		exit:         exit,
		sizeFraction: sf,
		leverage:     lev,
	}, nil
}

func (s *RSIRevert) Name() string { return "rsi" }

func (s *RSIRevert) Warmup() int { return s.rsi.Warmup() }

func (s *RSIRevert) Reset() {
	s.rsi.Reset()
	s.long = false
}

func (s *RSIRevert) OnBar(bar market.Bar) Signal {
	s.rsi.Update(bar)
	if !s.rsi.Ready() {
		return HoldSignal
	}

	v := s.rsi.Value()
	switch {
	case !s.long && v < s.oversold:
		s.long = true
		return Signal{
			Action:       Open,
			Side:         margin.Long,
			SizeFraction: s.sizeFraction,
			Leverage:     s.leverage,
		}
	case s.long && v > s.exit:
		s.long = false
		return Signal{Action: Close}
	}
	return HoldSignal
}

type rsiState struct {
	RSI  indicators.State `json:"rsi"`
	Long bool             `json:"long"`
}

func (s *RSIRevert) Snapshot() (json.RawMessage, error) {
	return json.Marshal(rsiState{RSI: s.rsi.State(), Long: s.long})
}

func (s *RSIRevert) Restore(state json.RawMessage) error {
	var st rsiState
	if err := json.Unmarshal(state, &st); err != nil {
		return err
	}
	s.rsi.SetState(st.RSI)
	s.long = st.Long
	return nil
}
