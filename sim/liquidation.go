package sim

import (
	"errors"
	"fmt"

	"time"

	"github.com/rustyeddy/marginsim/margin"
)

// ErrLiquidationCascade reports a forced close that would over-draw the
// account, which per-bar checks and size fractions in (0,1] make impossible.
// Seeing it means the bookkeeping is broken, so the run aborts rather than
// continue on corrupt state.
var ErrLiquidationCascade = errors.New("liquidation would over-draw account")

// EnforceMargin performs the maintenance-margin check and, when equity has
// fallen to or below the maintenance level, force-closes the position at its
// stored liquidation price. The realized loss of a forced close is exactly
// the initial margin. Callers must MarkToMarket first; the check runs on the
// equity that call produced.
func (l *Ledger) EnforceMargin(t time.Time) (bool, error) {
	if l.pos == nil {
		return false, nil
	}

	maint := margin.Maintenance(l.pos.InitialMargin, l.maintenanceRatio)
	if l.acct.Equity > maint {
		return false, nil
	}

	if l.acct.Balance < l.pos.InitialMargin {
		return true, fmt.Errorf("%w: balance %.2f below margin %.2f at %s",
			ErrLiquidationCascade, l.acct.Balance, l.pos.InitialMargin, t.Format(time.RFC3339))
	}

	trade := Trade{
		EntryTime:  l.pos.OpenTime,
		ExitTime:   t,
		EntryPrice: l.pos.EntryPrice,
		ExitPrice:  l.pos.LiquidationPrice,
		Side:       l.pos.Side,
		Quantity:   l.pos.Quantity,
		Leverage:   l.pos.Leverage,
		RealizedPL: -l.pos.InitialMargin,
		Forced:     true,
	}

	l.liquidations++
	l.settle(trade, "Liquidation")
	return true, nil
}
