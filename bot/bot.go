// Package bot runs the live analog of a backtest: the same strategy, ledger
// and margin enforcement, fed by a streaming bar source instead of a
// historical window. In live mode order intents go to an external gateway; in
// paper mode the internal ledger fills them at the bar close.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rustyeddy/marginsim/margin"
	"github.com/rustyeddy/marginsim/market"
	"github.com/rustyeddy/marginsim/sim"
	"github.com/rustyeddy/marginsim/strategies"
)

// State is the bot lifecycle. Halted means an error stopped processing and an
// operator must Resume explicitly.
type State int8

const (
	Stopped State = iota
	Running
	Halted
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Halted:
		return "Halted"
	}
	return fmt.Sprintf("State(%d)", int8(s))
}

// BarStream delivers closing bars in strict arrival order. Next blocks until
// a bar arrives, the stream ends (io.EOF), or ctx is done.
type BarStream interface {
	Next(ctx context.Context) (market.Bar, error)
}

// OrderResult is the gateway's answer to a submitted order.
type OrderResult struct {
	FilledPrice float64
	Status      string
}

// ExecutionGateway routes live order intents to an exchange. Paper mode never
// touches it.
type ExecutionGateway interface {
	SubmitOrder(ctx context.Context, side margin.Side, quantity, leverage float64) (OrderResult, error)
}

// EventKind tags the entries on the bot's event channel.
type EventKind string

const (
	EventTrade       EventKind = "trade"
	EventLiquidation EventKind = "liquidation"
	EventHalt        EventKind = "halt"
	EventStop        EventKind = "stop"
)

// Event is one observable bot occurrence for subscribers such as a UI.
type Event struct {
	Kind  EventKind
	Time  time.Time
	Trade *sim.Trade
	Err   error
}

// Config assembles a bot. Gateway enables live mode; leave it nil for paper
// trading against the internal ledger only.
type Config struct {
	Symbol           string
	Strategy         strategies.Strategy
	InitialBalance   float64
	MaintenanceRatio float64
	Gateway          ExecutionGateway

	// EventBuffer sizes the event channel; events beyond a full buffer
	// are dropped rather than blocking the bar loop.
	EventBuffer int
}

// Bot is a single sequential consumer of its bar stream. All exported methods
// are safe to call from other goroutines while Run is active.
type Bot struct {
	mu     sync.Mutex
	state  State
	strat  strategies.Strategy
	ledger *sim.Ledger
	gw     ExecutionGateway
	events chan Event

	lastBar time.Time
	haveBar bool
	haltErr error
	symbol  string
	initBal float64
	maint   float64
}

func New(cfg Config) (*Bot, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("bot: strategy is required")
	}
	if cfg.InitialBalance <= 0 {
		return nil, fmt.Errorf("bot: initial balance must be positive, got %.2f", cfg.InitialBalance)
	}
	buf := cfg.EventBuffer
	if buf <= 0 {
		buf = 64
	}
	return &Bot{
		state:   Stopped,
		strat:   cfg.Strategy,
		ledger:  sim.NewLedger(cfg.Symbol, cfg.InitialBalance, cfg.MaintenanceRatio),
		gw:      cfg.Gateway,
		events:  make(chan Event, buf),
		symbol:  cfg.Symbol,
		initBal: cfg.InitialBalance,
		maint:   cfg.MaintenanceRatio,
	}, nil
}

func (b *Bot) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the error that halted the bot, if any.
func (b *Bot) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.haltErr
}

// Events exposes the bot's event channel. Slow consumers lose events rather
// than stalling the bar loop.
func (b *Bot) Events() <-chan Event { return b.events }

// Account returns the current ledger account.
func (b *Bot) Account() sim.Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ledger.Account()
}

// Position returns the open position, if any.
func (b *Bot) Position() (sim.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ledger.Position()
}

// Run consumes the stream until it ends, ctx is done, or an error halts the
// bot. A Halted bot keeps its state; Resume clears the fault so Run can be
// called again on a fresh stream.
func (b *Bot) Run(ctx context.Context, stream BarStream) error {
	b.mu.Lock()
	if b.state == Halted {
		b.mu.Unlock()
		return fmt.Errorf("bot: halted (%v), resume first", b.haltErr)
	}
	if b.state == Running {
		b.mu.Unlock()
		return fmt.Errorf("bot: already running")
	}
	b.state = Running
	b.mu.Unlock()

	for {
		bar, err := stream.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				b.stop()
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				b.stop()
				return err
			}
			return b.halt(err)
		}
		if err := b.Step(ctx, bar); err != nil {
			return b.halt(err)
		}
	}
}

// Step applies one bar. Bars at or before the last processed timestamp are
// dropped, so replays of the same bar never double-apply a signal.
func (b *Bot) Step(ctx context.Context, bar market.Bar) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.haveBar && !bar.Time.After(b.lastBar) {
		return nil
	}
	b.lastBar = bar.Time
	b.haveBar = true

	b.ledger.MarkToMarket(bar.Close, bar.Time)
	liquidated, err := b.ledger.EnforceMargin(bar.Time)
	if err != nil {
		return err
	}
	if liquidated {
		trades := b.ledger.Trades()
		last := trades[len(trades)-1]
		b.emit(Event{Kind: EventLiquidation, Time: bar.Time, Trade: &last})
	}

	sig := b.strat.OnBar(bar)
	if liquidated {
		return nil
	}
	if err := sig.Validate(); err != nil {
		return nil
	}

	switch sig.Action {
	case strategies.Open:
		if _, open := b.ledger.Position(); open {
			return nil
		}
		return b.openAt(ctx, sig, bar)
	case strategies.Close:
		if _, open := b.ledger.Position(); !open {
			return nil
		}
		return b.closeAt(ctx, bar)
	}
	return nil
}

// openAt fills an open intent. Live mode submits first and books the fill the
// gateway reports; paper mode fills at the bar close.
func (b *Bot) openAt(ctx context.Context, sig strategies.Signal, bar market.Bar) error {
	price := bar.Close
	if b.gw != nil {
		quantity := margin.Notional(b.ledger.Account().Balance, sig.SizeFraction, sig.Leverage) / price
		res, err := b.gw.SubmitOrder(ctx, sig.Side, quantity, sig.Leverage)
		if err != nil {
			return fmt.Errorf("submit open order: %w", err)
		}
		price = res.FilledPrice
	}
	err := b.ledger.Open(sig.Side, sig.SizeFraction, sig.Leverage, price, bar.Time)
	if errors.Is(err, sim.ErrInsufficientFunds) {
		return nil
	}
	return err
}

func (b *Bot) closeAt(ctx context.Context, bar market.Bar) error {
	price := bar.Close
	if b.gw != nil {
		pos, _ := b.ledger.Position()
		res, err := b.gw.SubmitOrder(ctx, -pos.Side, pos.Quantity, pos.Leverage)
		if err != nil {
			return fmt.Errorf("submit close order: %w", err)
		}
		price = res.FilledPrice
	}
	trade, err := b.ledger.Close(price, bar.Time)
	if err != nil {
		return err
	}
	b.emit(Event{Kind: EventTrade, Time: bar.Time, Trade: &trade})
	return nil
}

// Stop moves a running bot to Stopped at the next safe point.
func (b *Bot) Stop() {
	b.stop()
}

func (b *Bot) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Running {
		b.state = Stopped
		b.emit(Event{Kind: EventStop, Time: b.lastBar})
	}
}

func (b *Bot) halt(err error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Halted
	b.haltErr = err
	b.emit(Event{Kind: EventHalt, Time: b.lastBar, Err: err})
	return err
}

// Resume clears a halt so the operator can start a new Run. It never retries
// anything on its own.
func (b *Bot) Resume() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Halted {
		return fmt.Errorf("bot: resume from %s", b.state)
	}
	b.state = Stopped
	b.haltErr = nil
	return nil
}

func (b *Bot) emit(ev Event) {
	select {
	case b.events <- ev:
	default:
	}
}
