package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventTimeout = 5 * time.Second

// recorder collects watch events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.snapshot()) >= n }, eventTimeout, 5*time.Millisecond)
	return r.snapshot()
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "/pickups/1", []byte(`{"id":1}`)))

		v, err := s.Get(ctx, "/pickups/1")
		require.NoError(t, err)
		assert.Equal(t, `{"id":1}`, string(v))
	})

	t.Run("get missing key", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "/startTime")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("put replaces", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "/startTime", []byte("1")))
		require.NoError(t, s.Put(ctx, "/startTime", []byte("2")))

		v, err := s.Get(ctx, "/startTime")
		require.NoError(t, err)
		assert.Equal(t, "2", string(v))
	})

	t.Run("get prefix", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "/connected_players/2", []byte("b")))
		require.NoError(t, s.Put(ctx, "/connected_players/1", []byte("a")))
		require.NoError(t, s.Put(ctx, "/pickups/9", []byte("p")))

		kvs, err := s.GetPrefix(ctx, "/connected_players")
		require.NoError(t, err)
		require.Len(t, kvs, 2)
		assert.Equal(t, KeyValue{Key: "/connected_players/1", Value: []byte("a")}, kvs[0])
		assert.Equal(t, KeyValue{Key: "/connected_players/2", Value: []byte("b")}, kvs[1])
	})

	t.Run("get prefix empty", func(t *testing.T) {
		s := newStore(t)
		kvs, err := s.GetPrefix(ctx, "/connected_players")
		require.NoError(t, err)
		assert.Empty(t, kvs)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Put(ctx, "/pickups/1", []byte("x")))
		require.NoError(t, s.Delete(ctx, "/pickups/1"))

		_, err := s.Get(ctx, "/pickups/1")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, s.Delete(ctx, "/pickups/1"))
	})

	t.Run("delete prefix", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			require.NoError(t, s.Put(ctx, fmt.Sprintf("/pickups/%d", i), []byte("x")))
		}
		require.NoError(t, s.Put(ctx, "/startTime", []byte("1")))
		require.NoError(t, s.DeletePrefix(ctx, "/pickups"))

		kvs, err := s.GetPrefix(ctx, "/pickups")
		require.NoError(t, err)
		assert.Empty(t, kvs)

		_, err = s.Get(ctx, "/startTime")
		assert.NoError(t, err)
	})

	t.Run("watch delivers puts and deletes under prefix", func(t *testing.T) {
		s := newStore(t)
		rec := &recorder{}
		_, err := s.WatchPrefix(ctx, "/pickups", rec.handle)
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, "/connected_players/1", []byte("ignored")))
		require.NoError(t, s.Put(ctx, "/pickups/7", []byte("p7")))
		require.NoError(t, s.Delete(ctx, "/pickups/7"))

		events := rec.waitFor(t, 2)
		require.Len(t, events, 2)
		assert.Equal(t, Event{Type: EventPut, Key: "/pickups/7", Value: []byte("p7")}, events[0])
		assert.Equal(t, EventDelete, events[1].Type)
		assert.Equal(t, "/pickups/7", events[1].Key)
	})

	t.Run("watch preserves per-key order", func(t *testing.T) {
		s := newStore(t)
		rec := &recorder{}
		_, err := s.WatchPrefix(ctx, "/connected_players", rec.handle)
		require.NoError(t, err)

		const writes = 50
		for i := 0; i < writes; i++ {
			require.NoError(t, s.Put(ctx, "/connected_players/1", []byte(fmt.Sprint(i))))
		}

		events := rec.waitFor(t, writes)
		for i, ev := range events {
			assert.Equal(t, fmt.Sprint(i), string(ev.Value))
		}
	})

	t.Run("cancelled watch stops receiving", func(t *testing.T) {
		s := newStore(t)
		rec := &recorder{}
		id, err := s.WatchPrefix(ctx, "/pickups", rec.handle)
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, "/pickups/1", []byte("a")))
		rec.waitFor(t, 1)

		require.NoError(t, s.CancelWatch(id))
		require.NoError(t, s.Put(ctx, "/pickups/2", []byte("b")))
		time.Sleep(50 * time.Millisecond)
		assert.Len(t, rec.snapshot(), 1)

		assert.ErrorIs(t, s.CancelWatch(id), ErrWatchNotFound)
	})

	t.Run("failing handler keeps subscription alive", func(t *testing.T) {
		s := newStore(t)
		rec := &recorder{}
		calls := 0
		_, err := s.WatchPrefix(ctx, "/pickups", func(ev Event) error {
			calls++
			if calls == 1 {
				panic("boom")
			}
			if calls == 2 {
				return fmt.Errorf("bad payload")
			}
			return rec.handle(ev)
		})
		require.NoError(t, err)

		require.NoError(t, s.Put(ctx, "/pickups/1", []byte("a")))
		require.NoError(t, s.Put(ctx, "/pickups/2", []byte("b")))
		require.NoError(t, s.Put(ctx, "/pickups/3", []byte("c")))

		events := rec.waitFor(t, 1)
		assert.Equal(t, "/pickups/3", events[0].Key)
	})
}
