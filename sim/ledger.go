// Package sim implements the margined account simulation shared by backtests
// and the paper-trading bot: position bookkeeping, mark-to-market, and forced
// liquidation.
package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/marginsim/internal/id"
	"github.com/rustyeddy/marginsim/journal"
	"github.com/rustyeddy/marginsim/margin"
)

var (
	ErrPositionAlreadyOpen = errors.New("position already open")
	ErrNoOpenPosition      = errors.New("no open position")
	ErrInsufficientFunds   = errors.New("insufficient funds")
)

// Account tracks simulated funds. Balance only ever changes when a trade
// closes or a position is liquidated; mark-to-market touches UnrealizedPL and
// Equity alone.
type Account struct {
	Balance      float64
	UnrealizedPL float64
	Equity       float64 // always Balance + UnrealizedPL
}

// Position is a single open leveraged position. LiquidationPrice is fixed at
// open time; changing leverage mid-position is not supported.
type Position struct {
	Side             margin.Side
	EntryPrice       float64
	Quantity         float64
	Leverage         float64
	InitialMargin    float64
	LiquidationPrice float64
	OpenTime         time.Time
}

// Trade is a realized round trip. Forced marks a liquidation-driven close.
// Trades are append-only and never mutated once recorded.
type Trade struct {
	EntryTime  time.Time
	ExitTime   time.Time
	EntryPrice float64
	ExitPrice  float64
	Side       margin.Side
	Quantity   float64
	Leverage   float64
	RealizedPL float64
	Forced     bool
}

// EquityPoint is one sample of the equity curve.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

// Ledger owns one account and at most one open position. A ledger belongs to
// exactly one backtest run (or one bot); it is deliberately not safe for
// concurrent use — the scheduler gives every worker its own.
type Ledger struct {
	symbol           string
	maintenanceRatio float64

	acct Account
	pos  *Position

	trades       []Trade
	curve        []EquityPoint
	liquidations int

	jnl   journal.Journal
	runID string
}

// NewLedger creates a ledger with the given starting balance. maintenanceRatio
// is the fraction of initial margin below which equity triggers liquidation;
// pass 0 for margin.DefaultMaintenanceRatio.
func NewLedger(symbol string, initialBalance, maintenanceRatio float64) *Ledger {
	if maintenanceRatio <= 0 {
		maintenanceRatio = margin.DefaultMaintenanceRatio
	}
	return &Ledger{
		symbol:           symbol,
		maintenanceRatio: maintenanceRatio,
		acct: Account{
			Balance: initialBalance,
			Equity:  initialBalance,
		},
		jnl: journal.Nop{},
	}
}

// SetJournal routes trade and equity records to j tagged with runID.
func (l *Ledger) SetJournal(j journal.Journal, runID string) {
	if j == nil {
		j = journal.Nop{}
	}
	l.jnl = j
	l.runID = runID
}

// Open opens a position at price. The notional is
// balance*sizeFraction*leverage and the backing margin notional/leverage.
func (l *Ledger) Open(side margin.Side, sizeFraction, leverage, price float64, t time.Time) error {
	if l.pos != nil {
		return fmt.Errorf("%w: %s since %s", ErrPositionAlreadyOpen,
			l.pos.Side, l.pos.OpenTime.Format(time.RFC3339))
	}
	if err := margin.CheckLeverage(leverage); err != nil {
		return err
	}
	if sizeFraction <= 0 || sizeFraction > 1 {
		return fmt.Errorf("size fraction %.4f not in (0, 1]", sizeFraction)
	}
	if price <= 0 {
		return fmt.Errorf("non-positive price %.8f", price)
	}

	notional := margin.Notional(l.acct.Balance, sizeFraction, leverage)
	if notional <= 0 {
		return fmt.Errorf("%w: balance %.2f", ErrInsufficientFunds, l.acct.Balance)
	}

	l.pos = &Position{
		Side:             side,
		EntryPrice:       price,
		Quantity:         notional / price,
		Leverage:         leverage,
		InitialMargin:    margin.Initial(notional, leverage),
		LiquidationPrice: margin.LiquidationPrice(side, price, leverage, l.maintenanceRatio),
		OpenTime:         t,
	}
	l.sample(t)
	return nil
}

// MarkToMarket revalues the open position (if any) at price. It never touches
// Balance.
func (l *Ledger) MarkToMarket(price float64, t time.Time) {
	if l.pos == nil {
		l.acct.UnrealizedPL = 0
	} else {
		l.acct.UnrealizedPL = margin.UnrealizedPL(l.pos.Side, l.pos.EntryPrice, price, l.pos.Quantity)
	}
	l.acct.Equity = l.acct.Balance + l.acct.UnrealizedPL
	l.sample(t)
}

// Close realizes the open position at price.
func (l *Ledger) Close(price float64, t time.Time) (Trade, error) {
	if l.pos == nil {
		return Trade{}, ErrNoOpenPosition
	}

	pl := margin.UnrealizedPL(l.pos.Side, l.pos.EntryPrice, price, l.pos.Quantity)
	trade := Trade{
		EntryTime:  l.pos.OpenTime,
		ExitTime:   t,
		EntryPrice: l.pos.EntryPrice,
		ExitPrice:  price,
		Side:       l.pos.Side,
		Quantity:   l.pos.Quantity,
		Leverage:   l.pos.Leverage,
		RealizedPL: pl,
	}

	l.settle(trade, "Close")
	return trade, nil
}

// settle applies a realized trade to the account and clears the position.
func (l *Ledger) settle(trade Trade, reason string) {
	l.acct.Balance += trade.RealizedPL
	l.acct.UnrealizedPL = 0
	l.acct.Equity = l.acct.Balance
	l.pos = nil

	l.trades = append(l.trades, trade)
	l.sample(trade.ExitTime)

	l.jnl.RecordTrade(journal.TradeRecord{
		TradeID:    id.New(),
		RunID:      l.runID,
		Symbol:     l.symbol,
		Side:       trade.Side.String(),
		Quantity:   trade.Quantity,
		Leverage:   trade.Leverage,
		EntryPrice: trade.EntryPrice,
		ExitPrice:  trade.ExitPrice,
		OpenTime:   trade.EntryTime,
		CloseTime:  trade.ExitTime,
		RealizedPL: trade.RealizedPL,
		Forced:     trade.Forced,
		Reason:     reason,
	})
}

// sample records an equity point for t. Several ledger operations can fire on
// the same bar; the last one wins so the curve stays one point per timestamp.
func (l *Ledger) sample(t time.Time) {
	if n := len(l.curve); n > 0 && l.curve[n-1].Time.Equal(t) {
		l.curve[n-1].Equity = l.acct.Equity
	} else {
		l.curve = append(l.curve, EquityPoint{Time: t, Equity: l.acct.Equity})
	}

	l.jnl.RecordEquity(journal.EquitySnapshot{
		RunID:        l.runID,
		Time:         t,
		Balance:      l.acct.Balance,
		Equity:       l.acct.Equity,
		UnrealizedPL: l.acct.UnrealizedPL,
	})
}

func (l *Ledger) Symbol() string   { return l.symbol }
func (l *Ledger) Account() Account { return l.acct }

// Position returns a copy of the open position, if any.
func (l *Ledger) Position() (Position, bool) {
	if l.pos == nil {
		return Position{}, false
	}
	return *l.pos, true
}

func (l *Ledger) Trades() []Trade       { return l.trades }
func (l *Ledger) Curve() []EquityPoint  { return l.curve }
func (l *Ledger) Liquidations() int     { return l.liquidations }
func (l *Ledger) MaintenanceRatio() float64 { return l.maintenanceRatio }

// RestoreState reinstates an account and open position from a snapshot. Used
// by the live bot after a process restart.
func (l *Ledger) RestoreState(acct Account, pos *Position) {
	l.acct = acct
	if pos == nil {
		l.pos = nil
	} else {
		p := *pos
		l.pos = &p
	}
}
