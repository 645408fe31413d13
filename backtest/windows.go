package backtest

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/marginsim/market"
)

// ErrInsufficientHistory reports a window length exceeding the available
// span. Raised at enumeration time so no run is ever started for it.
var ErrInsufficientHistory = errors.New("insufficient history for window")

// WindowSpec describes one window to backtest, before any execution.
type WindowSpec struct {
	Start  time.Time
	End    time.Time
	Length time.Duration
}

// EnumerateWindows lists every [start, start+length) window fully contained
// in the set's span, for each requested length, stepping by step. A span of
// S with window W and step T yields floor((S-W)/T)+1 windows per length.
func EnumerateWindows(set *market.BarSet, lengths []time.Duration, step time.Duration) ([]WindowSpec, error) {
	if step <= 0 {
		return nil, fmt.Errorf("backtest: step must be positive, got %s", step)
	}
	if len(lengths) == 0 {
		return nil, fmt.Errorf("backtest: no window lengths given")
	}

	start, end := set.Bounds()
	span := end.Sub(start)

	var specs []WindowSpec
	for _, length := range lengths {
		if length <= 0 {
			return nil, fmt.Errorf("backtest: window length must be positive, got %s", length)
		}
		if length > span {
			return nil, fmt.Errorf("%w: need %s of %s, have %s",
				ErrInsufficientHistory, length, set.Symbol, span)
		}
		for from := start; !from.Add(length).After(end); from = from.Add(step) {
			specs = append(specs, WindowSpec{
				Start:  from,
				End:    from.Add(length),
				Length: length,
			})
		}
	}
	return specs, nil
}
