package match

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ugaemi/netraiders-server/internal/store"
)

var errUnavailable = errors.New("store unavailable")

// faultyStore wraps a MemoryStore and fails selected operations on demand.
type faultyStore struct {
	*store.MemoryStore

	mu   sync.Mutex
	fail map[string]bool
	gate chan struct{}
}

func newFaultyStore() *faultyStore {
	return &faultyStore{MemoryStore: store.NewMemoryStore(), fail: make(map[string]bool)}
}

func (f *faultyStore) setFail(op string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = fail
}

func (f *faultyStore) failing(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op]
}

func (f *faultyStore) Put(ctx context.Context, key string, value []byte) error {
	if f.failing("put") {
		return errUnavailable
	}
	return f.MemoryStore.Put(ctx, key, value)
}

func (f *faultyStore) Get(ctx context.Context, key string) ([]byte, error) {
	if f.failing("get") {
		return nil, errUnavailable
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *faultyStore) GetPrefix(ctx context.Context, prefix string) ([]store.KeyValue, error) {
	if f.failing("getprefix") {
		return nil, errUnavailable
	}
	return f.MemoryStore.GetPrefix(ctx, prefix)
}

func (f *faultyStore) Delete(ctx context.Context, key string) error {
	if f.failing("delete") {
		return errUnavailable
	}
	return f.MemoryStore.Delete(ctx, key)
}

// WatchPrefix holds event delivery while the store is paused.
func (f *faultyStore) WatchPrefix(ctx context.Context, prefix string, fn store.WatchFunc) (store.WatchID, error) {
	if f.failing("watch") {
		return 0, errUnavailable
	}
	return f.MemoryStore.WatchPrefix(ctx, prefix, func(ev store.Event) error {
		f.mu.Lock()
		gate := f.gate
		f.mu.Unlock()
		if gate != nil {
			<-gate
		}
		return fn(ev)
	})
}

func (f *faultyStore) pauseEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

func (f *faultyStore) resumeEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// fakeClock is a settable wall clock.
type fakeClock struct {
	nanos atomic.Int64
}

func newFakeClock(t time.Time) *fakeClock {
	c := &fakeClock{}
	c.Set(t)
	return c
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, c.nanos.Load()) }
func (c *fakeClock) Set(t time.Time) { c.nanos.Store(t.UnixNano()) }
func (c *fakeClock) Add(d time.Duration) { c.nanos.Add(int64(d)) }

var matchEpoch = time.Unix(1_700_000_000, 0)

func testSettings(clock *fakeClock) Settings {
	s := DefaultSettings()
	s.PickupBatch = 0
	s.Now = clock.Now
	return s
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
