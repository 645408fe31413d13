// Package strategies contains the signal generators. Every strategy is a
// streaming consumer of bars: the driver feeds it one closing bar at a time
// and it answers with a Signal. Strategies keep rolling indicator state but
// never see bars past the one they are handed.
package strategies

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rustyeddy/marginsim/margin"
	"github.com/rustyeddy/marginsim/market"
)

// ErrSignalValidation marks a malformed signal. The driver recovers by
// treating the bar as Hold instead of aborting the run.
var ErrSignalValidation = errors.New("signal validation failed")

// Action is what a signal asks the driver to do.
type Action int8

const (
	Hold Action = iota
	Open
	Close
)

func (a Action) String() string {
	switch a {
	case Hold:
		return "Hold"
	case Open:
		return "Open"
	case Close:
		return "Close"
	}
	return fmt.Sprintf("Action(%d)", int8(a))
}

// Signal is one per-bar decision. Side, SizeFraction and Leverage only matter
// when Action is Open.
type Signal struct {
	Action       Action
	Side         margin.Side
	SizeFraction float64
	Leverage     float64
}

// HoldSignal is the no-op answer.
var HoldSignal = Signal{Action: Hold}

// Validate checks an Open signal's sizing fields.
func (s Signal) Validate() error {
	if s.Action != Open {
		return nil
	}
	if s.Side != margin.Long && s.Side != margin.Short {
		return fmt.Errorf("%w: side %d", ErrSignalValidation, s.Side)
	}
	if s.SizeFraction <= 0 || s.SizeFraction > 1 {
		return fmt.Errorf("%w: size fraction %.4f not in (0, 1]", ErrSignalValidation, s.SizeFraction)
	}
	if err := margin.CheckLeverage(s.Leverage); err != nil {
		return fmt.Errorf("%w: %v", ErrSignalValidation, err)
	}
	return nil
}

// Strategy is the interface every signal generator implements. OnBar is
// called once per bar in strict time order.
type Strategy interface {
	Name() string
	Warmup() int
	Reset()
	OnBar(bar market.Bar) Signal
}

// Snapshotter is implemented by strategies whose rolling state survives a
// process restart. The bot persists these blobs alongside its ledger state.
type Snapshotter interface {
	Snapshot() (json.RawMessage, error)
	Restore(state json.RawMessage) error
}

// Params configures a strategy instance. Values carries the numeric knobs;
// Reference is the second symbol's bars for dual-feed strategies and nil for
// everything else.
type Params struct {
	Values    map[string]float64
	Reference *market.BarSet
}

// Num returns the named parameter or def when absent.
func (p Params) Num(key string, def float64) float64 {
	if v, ok := p.Values[key]; ok {
		return v
	}
	return def
}

// PosInt is Num for whole-number knobs like indicator periods.
func (p Params) PosInt(key string, def int) (int, error) {
	v := p.Num(key, float64(def))
	n := int(v)
	if float64(n) != v || n <= 0 {
		return 0, fmt.Errorf("parameter %q must be a positive integer, got %v", key, v)
	}
	return n, nil
}

// sizing pulls the shared size_fraction and leverage knobs every strategy
// carries.
func (p Params) sizing() (sizeFraction, leverage float64) {
	return p.Num("size_fraction", 1.0), p.Num("leverage", 1.0)
}

// Factory builds a configured strategy instance.
type Factory func(p Params) (Strategy, error)

var (
	regMu    sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a strategy factory under name. Called from package init;
// registering a duplicate name panics.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("strategies: duplicate registration of %q", name))
	}
	registry[name] = f
}

// New instantiates the named strategy with p.
func New(name string, p Params) (Strategy, error) {
	regMu.RLock()
	f, ok := registry[name]
	regMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (have: %v)", name, Names())
	}
	return f(p)
}

// Names lists the registered strategies, sorted.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
