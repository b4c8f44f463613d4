package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsStore implements Store on a NATS JetStream key-value bucket, letting
// sessions in separate processes share a match.
//
// Store keys are slash paths ("/pickups/7"); they map to bucket keys by
// dropping the leading slash and turning slashes into dots ("pickups.7").
// Prefixes must end on a path segment so they can be expressed as subject
// wildcards ("pickups.>").
type NatsStore struct {
	nc *nats.Conn
	kv jetstream.KeyValue

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	nextID   WatchID
	watchers map[WatchID]*natsWatch
}

// bucketHistory is the JetStream maximum for key-value buckets.
const bucketHistory = 64

type natsWatch struct {
	w    jetstream.KeyWatcher
	stop context.CancelFunc
	done chan struct{}
}

// NewNatsStore connects to the server at url and opens (creating if needed)
// an in-memory bucket.
func NewNatsStore(ctx context.Context, url, bucket string, opts ...nats.Option) (*NatsStore, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}

	// Watchers read from the stream; retained history keeps a burst of writes
	// to one key from being discarded before delivery.
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: bucketHistory,
		Storage: jetstream.MemoryStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("opening bucket %s: %w", bucket, err)
	}

	sctx, cancel := context.WithCancel(context.Background())
	return &NatsStore{
		nc:       nc,
		kv:       kv,
		ctx:      sctx,
		cancel:   cancel,
		watchers: make(map[WatchID]*natsWatch),
	}, nil
}

// Put creates or replaces a key.
func (s *NatsStore) Put(ctx context.Context, key string, value []byte) error {
	k, err := toBucketKey(key)
	if err != nil {
		return err
	}
	_, err = s.kv.Put(ctx, k, value)
	return err
}

// Get returns the value for key.
func (s *NatsStore) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := toBucketKey(key)
	if err != nil {
		return nil, err
	}
	entry, err := s.kv.Get(ctx, k)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entry.Value(), nil
}

// GetPrefix returns every entry under prefix, sorted by key.
func (s *NatsStore) GetPrefix(ctx context.Context, prefix string) ([]KeyValue, error) {
	keys, err := s.keys(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]KeyValue, 0, len(keys))
	for _, k := range keys {
		entry, err := s.kv.Get(ctx, k)
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			continue // deleted since listing
		}
		if err != nil {
			return nil, err
		}
		out = append(out, KeyValue{Key: fromBucketKey(k), Value: entry.Value()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes a key.
func (s *NatsStore) Delete(ctx context.Context, key string) error {
	k, err := toBucketKey(key)
	if err != nil {
		return err
	}
	return s.kv.Delete(ctx, k)
}

// DeletePrefix removes every key under prefix.
func (s *NatsStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := s.keys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.kv.Delete(ctx, k); err != nil {
			return fmt.Errorf("deleting %s: %w", fromBucketKey(k), err)
		}
	}
	return nil
}

// WatchPrefix registers fn for future changes under prefix.
func (s *NatsStore) WatchPrefix(ctx context.Context, prefix string, fn WatchFunc) (WatchID, error) {
	// The watcher outlives the request context; it is stopped by CancelWatch or Close.
	wctx, stop := context.WithCancel(s.ctx)
	w, err := s.kv.Watch(wctx, prefixFilter(prefix), jetstream.UpdatesOnly())
	if err != nil {
		stop()
		return 0, err
	}

	nw := &natsWatch{w: w, stop: stop, done: make(chan struct{})}
	go func() {
		defer close(nw.done)
		for {
			var entry jetstream.KeyValueEntry
			select {
			case <-wctx.Done():
				return
			case e, ok := <-w.Updates():
				if !ok {
					return
				}
				entry = e
			}
			if entry == nil {
				continue
			}
			key := fromBucketKey(entry.Key())
			if !hasPrefix(key, prefix) {
				continue
			}
			switch entry.Operation() {
			case jetstream.KeyValuePut:
				dispatch(fn, Event{Type: EventPut, Key: key, Value: entry.Value()})
			case jetstream.KeyValueDelete, jetstream.KeyValuePurge:
				dispatch(fn, Event{Type: EventDelete, Key: key})
			}
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.watchers[s.nextID] = nw
	return s.nextID, nil
}

// CancelWatch stops a watch.
func (s *NatsStore) CancelWatch(id WatchID) error {
	s.mu.Lock()
	nw, ok := s.watchers[id]
	delete(s.watchers, id)
	s.mu.Unlock()
	if !ok {
		return ErrWatchNotFound
	}
	nw.close()
	return nil
}

// Close stops all watches and closes the connection.
func (s *NatsStore) Close() error {
	s.mu.Lock()
	watchers := s.watchers
	s.watchers = make(map[WatchID]*natsWatch)
	s.mu.Unlock()

	for _, nw := range watchers {
		nw.close()
	}
	s.cancel()
	s.nc.Close()
	return nil
}

// close cancels the watcher context first; Stop may then report an already
// closed subscription, which is ignored.
func (nw *natsWatch) close() {
	nw.stop()
	_ = nw.w.Stop()
	<-nw.done
}

func (s *NatsStore) keys(ctx context.Context, prefix string) ([]string, error) {
	lister, err := s.kv.ListKeysFiltered(ctx, prefixFilter(prefix))
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer lister.Stop()

	var keys []string
	for k := range lister.Keys() {
		if hasPrefix(fromBucketKey(k), prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func toBucketKey(key string) (string, error) {
	trimmed := strings.Trim(key, "/")
	if trimmed == "" || strings.ContainsAny(trimmed, ". *>") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return strings.ReplaceAll(trimmed, "/", "."), nil
}

func fromBucketKey(k string) string {
	return "/" + strings.ReplaceAll(k, ".", "/")
}

func prefixFilter(prefix string) string {
	trimmed := strings.Trim(prefix, "/")
	if trimmed == "" {
		return ">"
	}
	return strings.ReplaceAll(trimmed, "/", ".") + ".>"
}
