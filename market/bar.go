package market

import "time"

// Bar is one OHLCV sample for a fixed time interval.
//
// Bars are immutable once ingested: the engine only ever reads them, which is
// what lets a single BarSet be shared by many concurrent backtest runs without
// locking.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Mid returns the midpoint of the bar's range.
func (b Bar) Mid() float64 {
	return (b.High + b.Low) / 2
}
