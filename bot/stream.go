package bot

import (
	"context"
	"io"

	"github.com/rustyeddy/marginsim/market"
)

// ChannelStream adapts a bar channel to BarStream. Closing the channel ends
// the stream cleanly.
type ChannelStream struct {
	C chan market.Bar
}

func NewChannelStream(buf int) *ChannelStream {
	return &ChannelStream{C: make(chan market.Bar, buf)}
}

func (s *ChannelStream) Next(ctx context.Context) (market.Bar, error) {
	select {
	case bar, ok := <-s.C:
		if !ok {
			return market.Bar{}, io.EOF
		}
		return bar, nil
	case <-ctx.Done():
		return market.Bar{}, ctx.Err()
	}
}

func (s *ChannelStream) Close() { close(s.C) }

// ReplayStream feeds a historical view as if it were live, one bar per Next.
// Used for paper-trading dry runs against recorded data.
type ReplayStream struct {
	it *market.Iterator
}

func NewReplayStream(view market.View) *ReplayStream {
	return &ReplayStream{it: view.Iterator()}
}

func (s *ReplayStream) Next(ctx context.Context) (market.Bar, error) {
	if err := ctx.Err(); err != nil {
		return market.Bar{}, err
	}
	if !s.it.Next() {
		return market.Bar{}, io.EOF
	}
	return s.it.Bar(), nil
}
