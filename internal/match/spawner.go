package match

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/ugaemi/netraiders-server/internal/game"
	"github.com/ugaemi/netraiders-server/internal/store"
)

// Spawner puts a batch of random pickups into the store every interval.
// Every session runs its own spawner, so the spawn rate grows with the
// number of players.
type Spawner struct {
	store    store.Store
	interval time.Duration
	batch    int
	rng      *rand.Rand
	log      *slog.Logger
}

// NewSpawner creates a spawner. rng must not be shared with other goroutines.
func NewSpawner(st store.Store, interval time.Duration, batch int, rng *rand.Rand, log *slog.Logger) *Spawner {
	return &Spawner{store: st, interval: interval, batch: batch, rng: rng, log: log}
}

// Run spawns a batch every interval until ctx is done.
func (s *Spawner) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SpawnBatch(ctx)
		}
	}
}

// SpawnBatch puts one batch and returns the pickups that were written.
// Write failures are logged and skipped.
func (s *Spawner) SpawnBatch(ctx context.Context) []game.Pickup {
	spawned := make([]game.Pickup, 0, s.batch)
	for range s.batch {
		p := game.RandomPickup(s.rng)
		data, err := json.Marshal(p)
		if err != nil {
			s.log.Error("failed to marshal pickup", "error", err)
			continue
		}
		if err := s.store.Put(ctx, PickupKey(p.ID), data); err != nil {
			if ctx.Err() == nil {
				s.log.Warn("failed to spawn pickup", "pickup", p.ID, "error", err)
			}
			continue
		}
		spawned = append(spawned, p)
	}
	return spawned
}
