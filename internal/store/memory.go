package store

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var errClosed = errors.New("store closed")

// MemoryStore is an in-process Store for single-process matches and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool

	watches *fanout
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:    make(map[string][]byte),
		watches: newFanout(),
	}
}

// Put creates or replaces a key.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	v := append([]byte(nil), value...)
	s.data[key] = v
	// Publishing under the write lock keeps per-key event order equal to write order.
	s.watches.publish(Event{Type: EventPut, Key: key, Value: v})
	return nil
}

// Get returns the value for key.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	v, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// GetPrefix returns every entry under prefix, sorted by key.
func (s *MemoryStore) GetPrefix(_ context.Context, prefix string) ([]KeyValue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed
	}
	var out []KeyValue
	for k, v := range s.data {
		if hasPrefix(k, prefix) {
			out = append(out, KeyValue{Key: k, Value: append([]byte(nil), v...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	s.watches.publish(Event{Type: EventDelete, Key: key})
	return nil
}

// DeletePrefix removes every key under prefix.
func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	for k := range s.data {
		if hasPrefix(k, prefix) {
			delete(s.data, k)
			s.watches.publish(Event{Type: EventDelete, Key: k})
		}
	}
	return nil
}

// WatchPrefix registers fn for future changes under prefix.
func (s *MemoryStore) WatchPrefix(_ context.Context, prefix string, fn WatchFunc) (WatchID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	return s.watches.add(prefix, fn), nil
}

// CancelWatch stops a watch.
func (s *MemoryStore) CancelWatch(id WatchID) error {
	return s.watches.remove(id)
}

// Close cancels all watches. Further operations fail.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.watches.closeAll()
	return nil
}
