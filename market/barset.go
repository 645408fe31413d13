package market

import (
	"fmt"
	"time"
)

// BarSet is a dense, read-only snapshot of one symbol's bars at a fixed
// timeframe. The grid covers [Start .. Start+N*Timeframe) and every slot that
// actually has data is marked in the Valid bitmap; missing slots stay invalid
// and show up in the gap report.
//
// A BarSet is never mutated after New returns, so any number of goroutines can
// iterate it concurrently.
type BarSet struct {
	Symbol    string
	Start     int64 // unix seconds of the first slot's open
	Timeframe int32 // seconds per bar
	Bars      []Bar
	Valid     []uint64
	Gaps      []Gap

	duplicates int
}

// Gap is a run of consecutive missing bars in the grid.
type Gap struct {
	StartIdx int
	Len      int
}

// New builds a dense BarSet from bars that may be unsorted or carry
// duplicates. Duplicate timestamps keep the first occurrence; later ones are
// counted and dropped.
func New(symbol string, timeframe int32, bars []Bar) (*BarSet, error) {
	if timeframe <= 0 {
		return nil, fmt.Errorf("barset: timeframe must be positive, got %d", timeframe)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("barset: no bars for %s", symbol)
	}

	tf := int64(timeframe)
	minTs, maxTs := bars[0].Time.Unix(), bars[0].Time.Unix()
	for _, b := range bars[1:] {
		ts := b.Time.Unix()
		if ts < minTs {
			minTs = ts
		}
		if ts > maxTs {
			maxTs = ts
		}
	}

	start := (minTs / tf) * tf
	end := (maxTs / tf) * tf
	n := int((end-start)/tf) + 1

	bs := &BarSet{
		Symbol:    symbol,
		Start:     start,
		Timeframe: timeframe,
		Bars:      make([]Bar, n),
		Valid:     make([]uint64, (n+63)/64),
	}

	for _, b := range bars {
		idx := int((b.Time.Unix() - start) / tf)
		if bitIsSet(bs.Valid, idx) {
			bs.duplicates++
			continue
		}
		bs.Bars[idx] = b
		setBit(bs.Valid, idx)
	}

	bs.buildGapReport()
	return bs, nil
}

// Len returns the grid length, including missing slots.
func (s *BarSet) Len() int { return len(s.Bars) }

// Count returns the number of bars actually present.
func (s *BarSet) Count() int { return len(s.Bars) - s.missing() }

// Duplicates reports how many duplicate timestamps were dropped during load.
func (s *BarSet) Duplicates() int { return s.duplicates }

// Time returns the open time of grid slot idx.
func (s *BarSet) Time(idx int) time.Time {
	return time.Unix(s.Start+int64(idx)*int64(s.Timeframe), 0).UTC()
}

// At returns the bar at grid slot idx and whether it is present.
func (s *BarSet) At(idx int) (Bar, bool) {
	if idx < 0 || idx >= len(s.Bars) || !bitIsSet(s.Valid, idx) {
		return Bar{}, false
	}
	return s.Bars[idx], true
}

// CloseAt returns the close of the latest bar at or before t, stepping over
// missing slots. Used by dual-feed strategies to look up a reference series.
func (s *BarSet) CloseAt(t time.Time) (float64, bool) {
	idx := int((t.Unix() - s.Start) / int64(s.Timeframe))
	if idx >= len(s.Bars) {
		idx = len(s.Bars) - 1
	}
	for ; idx >= 0; idx-- {
		if bitIsSet(s.Valid, idx) {
			return s.Bars[idx].Close, true
		}
	}
	return 0, false
}

// Bounds returns the open time of the first slot and the close time of the
// last slot (exclusive end of the available span).
func (s *BarSet) Bounds() (start, end time.Time) {
	start = s.Time(0)
	end = s.Time(len(s.Bars) - 1).Add(time.Duration(s.Timeframe) * time.Second)
	return start, end
}

// Window returns a view over the slots whose open time falls in [from, to).
func (s *BarSet) Window(from, to time.Time) (View, error) {
	start, end := s.Bounds()
	if from.Before(start) || to.After(end) {
		return View{}, fmt.Errorf("barset: window [%s, %s) outside available span [%s, %s)",
			from.Format(time.RFC3339), to.Format(time.RFC3339),
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	tf := int64(s.Timeframe)
	lo := int((from.Unix() - s.Start + tf - 1) / tf)
	hi := int((to.Unix() - s.Start + tf - 1) / tf)
	if hi > len(s.Bars) {
		hi = len(s.Bars)
	}
	return View{set: s, lo: lo, hi: hi}, nil
}

// Full returns a view over the whole grid.
func (s *BarSet) Full() View {
	return View{set: s, lo: 0, hi: len(s.Bars)}
}

func (s *BarSet) missing() int {
	n := 0
	for _, g := range s.Gaps {
		n += g.Len
	}
	return n
}

func (s *BarSet) buildGapReport() {
	s.Gaps = nil
	inGap := false
	gapStart := 0
	for i := range s.Bars {
		if bitIsSet(s.Valid, i) {
			if inGap {
				s.Gaps = append(s.Gaps, Gap{StartIdx: gapStart, Len: i - gapStart})
				inGap = false
			}
			continue
		}
		if !inGap {
			inGap = true
			gapStart = i
		}
	}
	if inGap {
		s.Gaps = append(s.Gaps, Gap{StartIdx: gapStart, Len: len(s.Bars) - gapStart})
	}
}

// View is a half-open slice [lo, hi) of a BarSet's grid. Views share the
// parent's storage; they are as read-only as the BarSet itself.
type View struct {
	set *BarSet
	lo  int
	hi  int
}

func (v View) Set() *BarSet { return v.set }

// Slots returns the half-open grid index range the view covers. Walking the
// range with Set().At() visits missing slots too, which the valid-only
// Iterator never does.
func (v View) Slots() (lo, hi int) { return v.lo, v.hi }

// Bounds returns the view's time span.
func (v View) Bounds() (start, end time.Time) {
	return v.set.Time(v.lo), v.set.Time(v.hi - 1).Add(time.Duration(v.set.Timeframe) * time.Second)
}

// Iterator walks the view's valid bars in time order.
func (v View) Iterator() *Iterator {
	return &Iterator{v: v, idx: v.lo - 1}
}

// Iterator yields valid bars in strict time order, skipping missing slots.
// Index() exposes the grid index so callers can detect gaps by comparing
// consecutive indices.
type Iterator struct {
	v   View
	idx int
}

func (it *Iterator) Next() bool {
	for it.idx++; it.idx < it.v.hi; it.idx++ {
		if bitIsSet(it.v.set.Valid, it.idx) {
			return true
		}
	}
	return false
}

func (it *Iterator) Index() int      { return it.idx }
func (it *Iterator) Time() time.Time { return it.v.set.Time(it.idx) }
func (it *Iterator) Bar() Bar        { return it.v.set.Bars[it.idx] }

func bitIsSet(bits []uint64, idx int) bool {
	return bits[idx/64]&(1<<(uint(idx)%64)) != 0
}

func setBit(bits []uint64, idx int) {
	bits[idx/64] |= 1 << (uint(idx) % 64)
}
