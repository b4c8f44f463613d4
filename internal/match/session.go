package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ugaemi/netraiders-server/internal/game"
	"github.com/ugaemi/netraiders-server/internal/store"
)

// Settings tunes a session.
type Settings struct {
	TickRate    int
	PickupBatch int
	// AbsorptionEnabled turns on player-vs-player overlap detection.
	AbsorptionEnabled bool
	// OnAbsorb, if set, is called for each player the local player absorbs.
	// It runs while the session is locked and must not call back into it.
	OnAbsorb func(absorbed game.Player)

	// Now and Rand are overridable for tests.
	Now  func() time.Time
	Rand *rand.Rand
}

// DefaultSettings returns the standard match settings.
func DefaultSettings() Settings {
	return Settings{
		TickRate:    game.TickRate,
		PickupBatch: game.PickupBatch,
	}
}

// Session is the authoritative simulation for one connected player. It owns
// that player's record and observes the rest of the match through the store.
type Session struct {
	ID string

	st       store.Store
	settings Settings
	clock    *Clock
	active   *ActiveSet
	deltas   *Deltas
	log      *slog.Logger

	mu     sync.Mutex
	player game.Player

	cancel  context.CancelFunc
	group   *errgroup.Group
	watches []store.WatchID

	closeOnce sync.Once
	closeErr  error
}

// Start joins the match as player. The first player in an empty match
// records the start time; later players adopt it. Any store failure aborts
// the join.
func Start(ctx context.Context, st store.Store, player game.Player, settings Settings) (*Session, error) {
	if settings.TickRate <= 0 {
		settings.TickRate = game.TickRate
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	if settings.Rand == nil {
		settings.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Session{
		ID:       uuid.New().String(),
		st:       st,
		settings: settings,
		active:   &ActiveSet{},
		player:   player,
	}
	s.deltas = NewDeltas(s.active)
	s.log = slog.With("session", s.ID, "user_id", player.UserID)

	if err := s.join(ctx); err != nil {
		s.cancelWatches()
		return nil, err
	}

	sctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(sctx)
	s.cancel = cancel
	s.group = group

	spawner := NewSpawner(st, game.TickInterval(settings.TickRate), settings.PickupBatch, settings.Rand, s.log)
	group.Go(func() error { return s.clock.Run(gctx) })
	group.Go(func() error { return spawner.Run(gctx) })

	s.log.Info("session started", "username", player.Username, "tick", s.clock.Tick(), "start_time", s.clock.StartTime())
	return s, nil
}

func (s *Session) join(ctx context.Context) error {
	for _, w := range []struct {
		prefix string
		fn     store.WatchFunc
	}{
		{PlayersPrefix, s.deltas.HandlePlayerEvent},
		{PickupsPrefix, s.deltas.HandlePickupEvent},
	} {
		id, err := s.st.WatchPrefix(ctx, w.prefix, w.fn)
		if err != nil {
			return fmt.Errorf("watching %s: %w", w.prefix, err)
		}
		s.watches = append(s.watches, id)
	}

	existing, err := s.st.GetPrefix(ctx, PlayersPrefix)
	if err != nil {
		return fmt.Errorf("listing players: %w", err)
	}

	start, err := s.matchStart(ctx, len(existing) == 0)
	if err != nil {
		return err
	}
	s.clock = NewClock(start, s.settings.TickRate, s.settings.Now)

	if err := s.persist(ctx); err != nil {
		return err
	}

	all, err := s.st.GetPrefix(ctx, PlayersPrefix)
	if err != nil {
		if derr := s.st.Delete(context.WithoutCancel(ctx), PlayerKey(s.player.UserID)); derr != nil {
			s.log.Warn("failed to release player key", "error", derr)
		}
		return fmt.Errorf("listing players: %w", err)
	}
	s.deltas.Seed(decodePlayers(all, s.log))
	return nil
}

// matchStart returns the shared start time, writing it when this session opens the match.
func (s *Session) matchStart(ctx context.Context, first bool) (time.Time, error) {
	if !first {
		data, err := s.st.Get(ctx, StartTimeKey)
		switch {
		case err == nil:
			return DecodeStartTime(data)
		case errors.Is(err, store.ErrNotFound):
			s.log.Warn("players present but no start time recorded, starting a new clock")
		default:
			return time.Time{}, fmt.Errorf("reading start time: %w", err)
		}
	}

	now := s.settings.Now()
	data, err := EncodeStartTime(now)
	if err != nil {
		return time.Time{}, err
	}
	if err := s.st.Put(ctx, StartTimeKey, data); err != nil {
		return time.Time{}, fmt.Errorf("writing start time: %w", err)
	}
	return now, nil
}

// HandleInput reconciles one client input into the player's authoritative
// state and persists it. Store failures are logged here; a failed final write
// is also returned, as is a rejected input, and the session stays usable.
func (s *Session) HandleInput(ctx context.Context, in game.ClientInput) error {
	if err := in.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tickSeconds := game.TickSeconds(s.settings.TickRate)
	serverTick := s.clock.Tick()

	claimed := int64(math.Trunc(in.ExpectedTick))
	if claimed > serverTick {
		s.log.Debug("client ahead of server", "expected_tick", in.ExpectedTick, "server_tick", serverTick, "ticks_ahead", in.ExpectedTick-float64(serverTick))
	}
	if claimed > s.player.Tick {
		s.player.Tick = claimed
	}

	s.player.SetPosition(game.Step(s.player.Position(), in.Target(), tickSeconds))

	consumed := game.ConsumedPickups(s.player, s.active.Pickups())
	s.player.Untransmitted += float64(len(consumed))
	for _, p := range consumed {
		// Dropped locally right away so the next tick cannot credit it again
		// before the delete event arrives.
		s.active.Remove(p.ID)
		if err := s.st.Delete(ctx, PickupKey(p.ID)); err != nil {
			s.log.Warn("failed to delete consumed pickup", "pickup", p.ID, "error", err)
		}
	}

	if s.settings.AbsorptionEnabled {
		for _, other := range game.AbsorbedPlayers(s.player, s.deltas.KnownPlayers()) {
			s.log.Info("player absorbed", "absorbed_user_id", other.UserID)
			if s.settings.OnAbsorb != nil {
				s.settings.OnAbsorb(other)
			}
		}
	}

	game.Transmit(&s.player, game.WapAlpha(s.player.Position()), tickSeconds)
	s.player.Scale = game.ScaleFor(s.player.Untransmitted)

	return s.persist(ctx)
}

// persist writes the player record. Caller must hold s.mu or be the only user.
func (s *Session) persist(ctx context.Context) error {
	data, err := json.Marshal(s.player)
	if err != nil {
		return fmt.Errorf("encoding player: %w", err)
	}
	if err := s.st.Put(ctx, PlayerKey(s.player.UserID), data); err != nil {
		s.log.Warn("failed to persist player", "error", err)
		return fmt.Errorf("persisting player: %w", err)
	}
	return nil
}

// Snapshot drains the accumulated deltas into an outbound snapshot.
func (s *Session) Snapshot() game.Snapshot {
	batch := s.deltas.Drain()
	p := s.Player()
	return game.Snapshot{
		LocalPlayerID:  p.UserID,
		ServerTick:     s.clock.Tick(),
		TickRate:       s.settings.TickRate,
		PlayerDeltas:   batch.Players,
		SpawnPickups:   batch.SpawnPickups,
		DespawnPlayers: batch.DespawnPlayers,
		DespawnPickups: batch.DespawnPickups,
		AtWap:          game.WapAlpha(p.Position()) > 0,
	}
}

// Player returns a copy of the local player's state.
func (s *Session) Player() game.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player
}

// SetTickRTT records the latest round trip in ticks. It is persisted with the next input.
func (s *Session) SetTickRTT(rtt float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player.TickRTT = rtt
}

// TickRate returns the session's tick rate.
func (s *Session) TickRate() int {
	return s.settings.TickRate
}

// ServerTick returns the current authoritative tick.
func (s *Session) ServerTick() int64 {
	return s.clock.Tick()
}

// ActivePickups returns the locally known pickups.
func (s *Session) ActivePickups() []game.Pickup {
	return s.active.Pickups()
}

// Close stops the session's tasks and subscriptions and releases the player's
// key. The last player out also clears the pickups and the start time. Close
// is safe to call more than once and ignores cancellation of ctx.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.cancel()
		if err := s.group.Wait(); err != nil {
			s.log.Warn("session task failed", "error", err)
		}
		s.cancelWatches()
		s.closeErr = s.release(context.WithoutCancel(ctx))
		s.log.Info("session closed")
	})
	return s.closeErr
}

func (s *Session) cancelWatches() {
	for _, id := range s.watches {
		if err := s.st.CancelWatch(id); err != nil {
			s.log.Warn("failed to cancel watch", "error", err)
		}
	}
	s.watches = nil
}

func (s *Session) release(ctx context.Context) error {
	if err := s.st.Delete(ctx, PlayerKey(s.Player().UserID)); err != nil {
		return fmt.Errorf("deleting player: %w", err)
	}

	remaining, err := s.st.GetPrefix(ctx, PlayersPrefix)
	if err != nil {
		return fmt.Errorf("listing players: %w", err)
	}
	if len(remaining) > 0 {
		return nil
	}

	s.log.Info("last player left, clearing match state")
	return errors.Join(
		s.st.DeletePrefix(ctx, PickupsPrefix),
		s.st.Delete(ctx, StartTimeKey),
	)
}

func decodePlayers(kvs []store.KeyValue, log *slog.Logger) []game.Player {
	players := make([]game.Player, 0, len(kvs))
	for _, kv := range kvs {
		var p game.Player
		if err := json.Unmarshal(kv.Value, &p); err != nil {
			log.Warn("skipping undecodable player", "key", kv.Key, "error", err)
			continue
		}
		players = append(players, p)
	}
	return players
}
