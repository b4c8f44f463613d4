package match

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ugaemi/netraiders-server/internal/game"
	"github.com/ugaemi/netraiders-server/internal/store"
)

// Batch is the set of changes accumulated since the previous drain.
type Batch struct {
	Players        []game.Player
	SpawnPickups   []game.Pickup
	DespawnPlayers []int64
	DespawnPickups []int64
}

// Deltas accumulates replicated changes between outbound ticks. It is fed
// by store watch callbacks and drained by the connection loop.
type Deltas struct {
	active *ActiveSet

	mu             sync.Mutex
	players        []game.Player
	spawnPickups   []game.Pickup
	despawnPlayers []int64
	despawnPickups []int64

	// roster holds the latest known record of every player in the match.
	roster map[int64]game.Player
}

// NewDeltas creates empty buffers that also maintain active.
func NewDeltas(active *ActiveSet) *Deltas {
	return &Deltas{
		active: active,
		roster: make(map[int64]game.Player),
	}
}

// Seed queues the players already present when the session joined.
func (d *Deltas) Seed(players []game.Player) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range players {
		d.players = append(d.players, p)
		d.roster[p.UserID] = p
	}
}

// HandlePlayerEvent is the watch callback for the players prefix.
// Deletes are identified by the key's trailing id.
func (d *Deltas) HandlePlayerEvent(ev store.Event) error {
	switch ev.Type {
	case store.EventPut:
		var p game.Player
		if err := json.Unmarshal(ev.Value, &p); err != nil {
			return fmt.Errorf("decoding player %s: %w", ev.Key, err)
		}
		d.mu.Lock()
		d.players = append(d.players, p)
		d.roster[p.UserID] = p
		d.mu.Unlock()
	case store.EventDelete:
		id, err := TrailingID(ev.Key)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.despawnPlayers = append(d.despawnPlayers, id)
		delete(d.roster, id)
		d.mu.Unlock()
	}
	return nil
}

// HandlePickupEvent is the watch callback for the pickups prefix.
func (d *Deltas) HandlePickupEvent(ev store.Event) error {
	switch ev.Type {
	case store.EventPut:
		var p game.Pickup
		if err := json.Unmarshal(ev.Value, &p); err != nil {
			return fmt.Errorf("decoding pickup %s: %w", ev.Key, err)
		}
		d.mu.Lock()
		d.spawnPickups = append(d.spawnPickups, p)
		d.mu.Unlock()
		d.active.Add(p)
	case store.EventDelete:
		id, err := TrailingID(ev.Key)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.despawnPickups = append(d.despawnPickups, id)
		d.mu.Unlock()
		d.active.Remove(id)
	}
	return nil
}

// Drain returns everything accumulated so far and empties the buffers.
// Returned slices are never nil.
func (d *Deltas) Drain() Batch {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := Batch{
		Players:        append(make([]game.Player, 0, len(d.players)), d.players...),
		SpawnPickups:   append(make([]game.Pickup, 0, len(d.spawnPickups)), d.spawnPickups...),
		DespawnPlayers: append(make([]int64, 0, len(d.despawnPlayers)), d.despawnPlayers...),
		DespawnPickups: append(make([]int64, 0, len(d.despawnPickups)), d.despawnPickups...),
	}
	d.players = nil
	d.spawnPickups = nil
	d.despawnPlayers = nil
	d.despawnPickups = nil
	return b
}

// KnownPlayers returns the latest record of every known player, ordered by id.
func (d *Deltas) KnownPlayers() []game.Player {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]game.Player, 0, len(d.roster))
	for _, p := range d.roster {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
