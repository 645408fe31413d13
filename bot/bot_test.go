package bot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/marginsim/margin"
	"github.com/rustyeddy/marginsim/market"
	"github.com/rustyeddy/marginsim/strategies"
)

func barAt(hour int, close float64) market.Bar {
	return market.Bar{
		Time:  time.Date(2024, 3, 1, hour, 0, 0, 0, time.UTC),
		Open:  close,
		High:  close,
		Low:   close,
		Close: close,
	}
}

// flipStrategy opens long on its first bar and closes on the next, forever.
type flipStrategy struct {
	leverage float64
	long     bool
}

func (s *flipStrategy) Name() string { return "flip" }
func (s *flipStrategy) Warmup() int  { return 1 }
func (s *flipStrategy) Reset()       { s.long = false }

func (s *flipStrategy) OnBar(bar market.Bar) strategies.Signal {
	if s.long {
		s.long = false
		return strategies.Signal{Action: strategies.Close}
	}
	s.long = true
	return strategies.Signal{
		Action:       strategies.Open,
		Side:         margin.Long,
		SizeFraction: 0.5,
		Leverage:     s.leverage,
	}
}

// fixedGateway fills every order at one price.
type fixedGateway struct {
	price  float64
	orders int
	fail   bool
}

func (g *fixedGateway) SubmitOrder(ctx context.Context, side margin.Side, quantity, leverage float64) (OrderResult, error) {
	if g.fail {
		return OrderResult{}, errors.New("exchange rejected order")
	}
	g.orders++
	return OrderResult{FilledPrice: g.price, Status: "FILLED"}, nil
}

func newPaperBot(t *testing.T, strat strategies.Strategy) *Bot {
	t.Helper()
	b, err := New(Config{
		Symbol:         "BTCUSDT",
		Strategy:       strat,
		InitialBalance: 10000,
	})
	require.NoError(t, err)
	return b
}

func TestPaperModeTradesInternally(t *testing.T) {
	b := newPaperBot(t, &flipStrategy{leverage: 2})

	stream := NewChannelStream(4)
	stream.C <- barAt(0, 100)
	stream.C <- barAt(1, 110)
	stream.Close()

	require.NoError(t, b.Run(context.Background(), stream))
	assert.Equal(t, Stopped, b.State())

	acct := b.Account()
	// 0.5 size, 2x: qty 100 at 100, closed at 110 -> +1000
	assert.InDelta(t, 11000.0, acct.Balance, 1e-9)
}

func TestIdempotentPerTimestamp(t *testing.T) {
	b := newPaperBot(t, &flipStrategy{leverage: 2})

	stream := NewChannelStream(4)
	stream.C <- barAt(0, 100)
	stream.C <- barAt(0, 100) // replay of the same bar
	stream.C <- barAt(1, 110)
	stream.Close()

	require.NoError(t, b.Run(context.Background(), stream))

	// The replayed bar must not advance the strategy: one open, one close.
	assert.InDelta(t, 11000.0, b.Account().Balance, 1e-9)
	_, open := b.Position()
	assert.False(t, open)
}

func TestLiveModeRoutesThroughGateway(t *testing.T) {
	gw := &fixedGateway{price: 100.5}
	strat := &flipStrategy{leverage: 2}
	b, err := New(Config{
		Symbol:         "BTCUSDT",
		Strategy:       strat,
		InitialBalance: 10000,
		Gateway:        gw,
	})
	require.NoError(t, err)

	stream := NewChannelStream(4)
	stream.C <- barAt(0, 100)
	stream.C <- barAt(1, 110)
	stream.Close()

	require.NoError(t, b.Run(context.Background(), stream))
	assert.Equal(t, 2, gw.orders, "open and close must both hit the gateway")

	_, open := b.Position()
	assert.False(t, open, "position should be closed")

	// Both fills booked at the gateway's 100.5, so the round trip is flat;
	// bar closes of 100 and 110 would have shown a profit.
	assert.InDelta(t, 10000.0, b.Account().Balance, 1e-9)
}

func TestGatewayErrorHalts(t *testing.T) {
	gw := &fixedGateway{price: 100, fail: true}
	b, err := New(Config{
		Symbol:         "BTCUSDT",
		Strategy:       &flipStrategy{leverage: 2},
		InitialBalance: 10000,
		Gateway:        gw,
	})
	require.NoError(t, err)

	stream := NewChannelStream(2)
	stream.C <- barAt(0, 100)
	stream.Close()

	err = b.Run(context.Background(), stream)
	require.Error(t, err)
	assert.Equal(t, Halted, b.State())
	assert.Error(t, b.Err())

	// Halted bots refuse to run until resumed.
	err = b.Run(context.Background(), NewReplayStream(market.View{}))
	assert.Error(t, err)

	require.NoError(t, b.Resume())
	assert.Equal(t, Stopped, b.State())
	assert.NoError(t, b.Err())
}

func TestHaltEmitsEvent(t *testing.T) {
	gw := &fixedGateway{fail: true}
	b, err := New(Config{
		Symbol:         "BTCUSDT",
		Strategy:       &flipStrategy{leverage: 2},
		InitialBalance: 10000,
		Gateway:        gw,
	})
	require.NoError(t, err)

	stream := NewChannelStream(2)
	stream.C <- barAt(0, 100)
	stream.Close()

	require.Error(t, b.Run(context.Background(), stream))

	var sawHalt bool
	for {
		select {
		case ev := <-b.Events():
			if ev.Kind == EventHalt {
				sawHalt = true
				assert.Error(t, ev.Err)
			}
			continue
		default:
		}
		break
	}
	assert.True(t, sawHalt)
}

func TestLiquidationEventAndVoidSignal(t *testing.T) {
	// All-in 10x long at 100; the drop to 90 liquidates. The strategy asks
	// to act on the same bar, but the signal must be void.
	strat := &alwaysOpen{leverage: 10}
	b := newPaperBot(t, strat)

	stream := NewChannelStream(4)
	stream.C <- barAt(0, 100)
	stream.C <- barAt(1, 90)
	stream.Close()

	require.NoError(t, b.Run(context.Background(), stream))

	_, open := b.Position()
	assert.False(t, open, "nothing may open on the liquidation bar")
	assert.InDelta(t, 0.0, b.Account().Balance, 1e-9)

	var sawLiq bool
	for {
		select {
		case ev := <-b.Events():
			if ev.Kind == EventLiquidation {
				sawLiq = true
				require.NotNil(t, ev.Trade)
				assert.True(t, ev.Trade.Forced)
			}
			continue
		default:
		}
		break
	}
	assert.True(t, sawLiq)
}

type alwaysOpen struct{ leverage float64 }

func (s *alwaysOpen) Name() string { return "always-open" }
func (s *alwaysOpen) Warmup() int  { return 1 }
func (s *alwaysOpen) Reset()       {}
func (s *alwaysOpen) OnBar(bar market.Bar) strategies.Signal {
	return strategies.Signal{
		Action:       strategies.Open,
		Side:         margin.Long,
		SizeFraction: 1.0,
		Leverage:     s.leverage,
	}
}

func TestSnapshotRestoreAcrossRestart(t *testing.T) {
	mk := func() (strategies.Strategy, *Bot) {
		strat, err := strategies.New("ma-cross", strategies.Params{
			Values: map[string]float64{"fast": 2, "slow": 3, "leverage": 2},
		})
		require.NoError(t, err)
		b, err := New(Config{Symbol: "BTCUSDT", Strategy: strat, InitialBalance: 10000})
		require.NoError(t, err)
		return strat, b
	}

	closes := []float64{100, 98, 96, 94, 110, 120, 130, 90, 70, 50, 40}
	split := 6

	// Reference: one bot sees the whole stream.
	_, ref := mk()
	for i, c := range closes {
		require.NoError(t, ref.Step(context.Background(), barAt(i, c)))
	}

	// First process handles the head, snapshots to disk, and dies.
	_, first := mk()
	for i, c := range closes[:split] {
		require.NoError(t, first.Step(context.Background(), barAt(i, c)))
	}
	path := filepath.Join(t.TempDir(), "bot.json")
	require.NoError(t, first.SaveSnapshot(path))

	// Second process restores and handles the tail.
	_, second := mk()
	snap, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.NoError(t, second.Restore(snap))
	for i, c := range closes[split:] {
		require.NoError(t, second.Step(context.Background(), barAt(split+i, c)))
	}

	assert.InDelta(t, ref.Account().Balance, second.Account().Balance, 1e-9)
	refPos, refOpen := ref.Position()
	gotPos, gotOpen := second.Position()
	assert.Equal(t, refOpen, gotOpen)
	if refOpen {
		assert.Equal(t, refPos.Side, gotPos.Side)
		assert.InDelta(t, refPos.EntryPrice, gotPos.EntryPrice, 1e-9)
		assert.InDelta(t, refPos.Quantity, gotPos.Quantity, 1e-9)
	}
}

func TestRestoreRejectsWrongStrategy(t *testing.T) {
	b := newPaperBot(t, &flipStrategy{leverage: 2})
	err := b.Restore(Snapshot{StrategyName: "other"})
	assert.Error(t, err)
}
