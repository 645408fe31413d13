// Package margin holds the leveraged-futures arithmetic shared by the
// backtest ledger and the live bot: notional sizing, initial and maintenance
// margin, and liquidation prices.
package margin

import (
	"errors"
	"fmt"
)

// Leverage bounds follow the common futures exchange limits.
const (
	MinLeverage = 1.0
	MaxLeverage = 125.0
)

// DefaultMaintenanceRatio is the fraction of initial margin below which a
// position is force-closed. Exchanges quote 0.4%-1.5% depending on symbol;
// 0.5% is a reasonable single default.
const DefaultMaintenanceRatio = 0.005

var ErrInvalidLeverage = errors.New("leverage out of range")

// Side of a position: +1 long, -1 short.
type Side int8

const (
	Long  Side = +1
	Short Side = -1
)

func (s Side) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return fmt.Sprintf("side(%d)", int8(s))
}

// CheckLeverage validates lev against [MinLeverage, MaxLeverage].
func CheckLeverage(lev float64) error {
	if lev < MinLeverage || lev > MaxLeverage {
		return fmt.Errorf("%w: %.2f not in [%.0f, %.0f]", ErrInvalidLeverage, lev, MinLeverage, MaxLeverage)
	}
	return nil
}

// Notional returns the position notional for a given balance, the fraction of
// it committed as margin, and the leverage multiplier.
func Notional(balance, sizeFraction, leverage float64) float64 {
	return balance * sizeFraction * leverage
}

// Initial returns the initial margin backing a notional at the given leverage.
func Initial(notional, leverage float64) float64 {
	return notional / leverage
}

// Maintenance returns the maintenance margin for an initial margin and ratio.
func Maintenance(initialMargin, ratio float64) float64 {
	return initialMargin * ratio
}

// LiquidationPrice returns the price at which a position opened at entry with
// the given leverage is force-closed:
//
//	long:  entry * (1 - 1/leverage + maintenanceRatio)
//	short: entry * (1 + 1/leverage - maintenanceRatio)
//
// The price is fixed at open time; leverage changes mid-position are not
// supported.
func LiquidationPrice(side Side, entry, leverage, maintenanceRatio float64) float64 {
	if side == Long {
		return entry * (1 - 1/leverage + maintenanceRatio)
	}
	return entry * (1 + 1/leverage - maintenanceRatio)
}

// UnrealizedPL returns the mark-to-market P/L of a position.
func UnrealizedPL(side Side, entry, mark, quantity float64) float64 {
	return (mark - entry) * quantity * float64(side)
}
