package bot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rustyeddy/marginsim/sim"
	"github.com/rustyeddy/marginsim/strategies"
)

// Snapshot is everything a bot needs to continue after a process restart:
// the account, any open position, the last processed bar, and the strategy's
// rolling indicator state.
type Snapshot struct {
	Symbol        string          `json:"symbol"`
	TakenAt       time.Time       `json:"taken_at"`
	LastBar       time.Time       `json:"last_bar"`
	HaveBar       bool            `json:"have_bar"`
	Account       sim.Account     `json:"account"`
	Position      *sim.Position   `json:"position,omitempty"`
	StrategyName  string          `json:"strategy"`
	StrategyState json.RawMessage `json:"strategy_state,omitempty"`
}

// Snapshot captures the bot's restorable state. Callable in any state; a
// running bot snapshots between bars.
func (b *Bot) Snapshot() (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Symbol:       b.symbol,
		TakenAt:      b.lastBar,
		LastBar:      b.lastBar,
		HaveBar:      b.haveBar,
		Account:      b.ledger.Account(),
		StrategyName: b.strat.Name(),
	}
	if pos, ok := b.ledger.Position(); ok {
		snap.Position = &pos
	}
	if s, ok := b.strat.(strategies.Snapshotter); ok {
		blob, err := s.Snapshot()
		if err != nil {
			return Snapshot{}, fmt.Errorf("snapshot strategy state: %w", err)
		}
		snap.StrategyState = blob
	}
	return snap, nil
}

// Restore reinstates a snapshot into a stopped bot. The snapshot's strategy
// must match the configured one.
func (b *Bot) Restore(snap Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Running {
		return fmt.Errorf("bot: cannot restore while running")
	}
	if snap.StrategyName != b.strat.Name() {
		return fmt.Errorf("bot: snapshot is for strategy %q, bot runs %q",
			snap.StrategyName, b.strat.Name())
	}

	if len(snap.StrategyState) > 0 {
		s, ok := b.strat.(strategies.Snapshotter)
		if !ok {
			return fmt.Errorf("bot: strategy %q cannot restore state", b.strat.Name())
		}
		if err := s.Restore(snap.StrategyState); err != nil {
			return fmt.Errorf("restore strategy state: %w", err)
		}
	}

	b.ledger.RestoreState(snap.Account, snap.Position)
	b.lastBar = snap.LastBar
	b.haveBar = snap.HaveBar
	return nil
}

// SaveSnapshot writes the snapshot to path as JSON.
func (b *Bot) SaveSnapshot(path string) error {
	snap, err := b.Snapshot()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadSnapshot reads a snapshot written by SaveSnapshot.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return snap, nil
}
