package strategies

import (
	"encoding/json"

	"github.com/rustyeddy/marginsim/indicators"
	"github.com/rustyeddy/marginsim/margin"
	"github.com/rustyeddy/marginsim/market"
)

func init() {
	Register("macd", NewMACDCross)
}

// MACDCross trades the MACD histogram crossing zero: long when the histogram
// turns positive, close when it turns negative. Long only.
type MACDCross struct {
	macd *indicators.MACD

	sizeFraction float64
	leverage     float64

	lastHist float64
	haveLast bool
	long     bool
}

func NewMACDCross(p Params) (Strategy, error) {
	fast, err := p.PosInt("fast", 12)
	if err != nil {
		return nil, err
	}
	slow, err := p.PosInt("slow", 26)
	if err != nil {
		return nil, err
	}
	signal, err := p.PosInt("signal", 9)
	if err != nil {
		return nil, err
	}
	sf, lev := p.sizing()
	return &MACDCross{
		macd:         indicators.NewMACD(fast, slow, signal),
		sizeFraction: sf,
		leverage:     lev,
	}, nil
}

func (s *MACDCross) Name() string { return "macd" }

func (s *MACDCross) Warmup() int { return s.macd.Warmup() + 1 }

func (s *MACDCross) Reset() {
	s.macd.Reset()
	s.lastHist = 0
	s.haveLast = false
	s.long = false
}

func (s *MACDCross) OnBar(bar market.Bar) Signal {
	s.macd.Update(bar)
	if !s.macd.Ready() {
		return HoldSignal
	}

	hist := s.macd.Value()
	if !s.haveLast {
		s.lastHist = hist
		s.haveLast = true
		return HoldSignal
	}

	up := hist > 0 && s.lastHist <= 0
	down := hist < 0 && s.lastHist >= 0
	s.lastHist = hist

	switch {
	case up && !s.long:
		s.long = true
		return Signal{
			Action:       Open,
			Side:         margin.Long,
			SizeFraction: s.sizeFraction,
			Leverage:     s.leverage,
		}
	case down && s.long:
		s.long = false
		return Signal{Action: Close}
	}
	return HoldSignal
}

type macdState struct {
	MACD     indicators.State `json:"macd"`
	LastHist float64          `json:"last_hist"`
	HaveLast bool             `json:"have_last"`
	Long     bool             `json:"long"`
}

func (s *MACDCross) Snapshot() (json.RawMessage, error) {
	return json.Marshal(macdState{
		MACD:     s.macd.State(),
		LastHist: s.lastHist,
		HaveLast: s.haveLast,
		Long:     s.long,
	})
}

func (s *MACDCross) Restore(state json.RawMessage) error {
	var st macdState
	if err := json.Unmarshal(state, &st); err != nil {
		return err
	}
	s.macd.SetState(st.MACD)
	s.lastHist = st.LastHist
	s.haveLast = st.HaveLast
	s.long = st.Long
	return nil
}
