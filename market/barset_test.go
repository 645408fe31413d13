package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourlyBars(t *testing.T, start time.Time, closes ...float64) []Bar {
	t.Helper()
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
		}
	}
	return bars
}

func TestBarSetDenseGrid(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := hourlyBars(t, t0, 100, 101, 102, 103)

	bs, err := New("BTCUSDT", 3600, bars)
	require.NoError(t, err)

	assert.Equal(t, 4, bs.Len())
	assert.Equal(t, 4, bs.Count())
	assert.Empty(t, bs.Gaps)
	assert.Equal(t, t0, bs.Time(0))

	b, ok := bs.At(2)
	require.True(t, ok)
	assert.Equal(t, 102.0, b.Close)
}

func TestBarSetGapReport(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := hourlyBars(t, t0, 100, 101, 102, 103, 104)

	// Drop bars 1 and 2 to create a two-slot gap.
	bars = append(bars[:1], bars[3:]...)

	bs, err := New("BTCUSDT", 3600, bars)
	require.NoError(t, err)

	assert.Equal(t, 5, bs.Len())
	assert.Equal(t, 3, bs.Count())
	require.Len(t, bs.Gaps, 1)
	assert.Equal(t, Gap{StartIdx: 1, Len: 2}, bs.Gaps[0])

	_, ok := bs.At(1)
	assert.False(t, ok)
}

func TestBarSetDuplicatesKeepFirst(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := hourlyBars(t, t0, 100, 101)
	dup := bars[1]
	dup.Close = 999
	bars = append(bars, dup)

	bs, err := New("BTCUSDT", 3600, bars)
	require.NoError(t, err)

	assert.Equal(t, 1, bs.Duplicates())
	b, ok := bs.At(1)
	require.True(t, ok)
	assert.Equal(t, 101.0, b.Close)
}

func TestIteratorSkipsMissingSlots(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := hourlyBars(t, t0, 100, 101, 102, 103)
	bars = append(bars[:2], bars[3]) // drop index 2

	bs, err := New("BTCUSDT", 3600, bars)
	require.NoError(t, err)

	it := bs.Full().Iterator()
	var indices []int
	for it.Next() {
		indices = append(indices, it.Index())
	}
	assert.Equal(t, []int{0, 1, 3}, indices)
}

func TestWindowBounds(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := hourlyBars(t, t0, 100, 101, 102, 103, 104, 105)

	bs, err := New("BTCUSDT", 3600, bars)
	require.NoError(t, err)

	v, err := bs.Window(t0.Add(time.Hour), t0.Add(4*time.Hour))
	require.NoError(t, err)

	it := v.Iterator()
	var closes []float64
	for it.Next() {
		closes = append(closes, it.Bar().Close)
	}
	assert.Equal(t, []float64{101, 102, 103}, closes)

	_, err = bs.Window(t0.Add(-time.Hour), t0.Add(2*time.Hour))
	assert.Error(t, err)
}

func TestCloseAtStepsBack(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := hourlyBars(t, t0, 100, 101, 102, 103)
	bars = append(bars[:2], bars[3]) // drop index 2

	bs, err := New("BTCUSDT", 3600, bars)
	require.NoError(t, err)

	// Slot 2 is missing; the lookup falls back to slot 1.
	c, ok := bs.CloseAt(t0.Add(2 * time.Hour))
	require.True(t, ok)
	assert.Equal(t, 101.0, c)
}
