package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// ErrWatchNotFound is returned by CancelWatch for unknown or already cancelled watches.
var ErrWatchNotFound = errors.New("watch not found")

// EventType discriminates watch events.
type EventType int

const (
	EventPut EventType = iota
	EventDelete
)

func (t EventType) String() string {
	switch t {
	case EventPut:
		return "put"
	case EventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event is a single change delivered to a watch. Value is nil for deletes.
type Event struct {
	Type  EventType
	Key   string
	Value []byte
}

// KeyValue is one entry returned by GetPrefix.
type KeyValue struct {
	Key   string
	Value []byte
}

// WatchID identifies a registered watch.
type WatchID uint64

// WatchFunc handles one event. Returned errors are logged; the watch stays active.
type WatchFunc func(Event) error

// Store is a key-prefixed, watchable key-value store shared by every session
// of a match. Watches receive changes made after registration, asynchronously,
// in write order for any single key.
type Store interface {
	// Put creates or replaces a key.
	Put(ctx context.Context, key string, value []byte) error
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// GetPrefix returns every entry whose key starts with prefix, sorted by key.
	GetPrefix(ctx context.Context, prefix string) ([]KeyValue, error)
	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key that starts with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
	// WatchPrefix registers fn for changes to keys starting with prefix.
	WatchPrefix(ctx context.Context, prefix string, fn WatchFunc) (WatchID, error)
	// CancelWatch stops delivery to a watch.
	CancelWatch(id WatchID) error
	// Close releases backend resources and cancels all watches.
	Close() error
}

// dispatch runs fn for ev, logging errors and recovering panics so that a
// faulty handler never terminates its subscription.
func dispatch(fn WatchFunc, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("watch handler panicked", "key", ev.Key, "event", ev.Type.String(), "panic", fmt.Sprint(r))
		}
	}()
	if err := fn(ev); err != nil {
		slog.Warn("watch handler failed", "key", ev.Key, "event", ev.Type.String(), "error", err)
	}
}

func hasPrefix(key, prefix string) bool {
	return strings.HasPrefix(key, prefix)
}
