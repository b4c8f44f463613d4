package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_entries (
    key TEXT PRIMARY KEY,
    value BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const notifyChannel = "kv_events"

const listenRetryDelay = time.Second

// notification is the pg_notify payload. Value is base64 encoded by encoding/json.
type notification struct {
	Op    string `json:"op"`
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

// PostgresStore implements Store on a PostgreSQL table. Every mutation
// publishes a notification on kv_events within its transaction, so watchers
// observe changes in commit order.
type PostgresStore struct {
	pool    *pgxpool.Pool
	watches *fanout

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPostgresStore connects to PostgreSQL, initializes the schema and starts
// the notification listener.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}

	lctx, cancel := context.WithCancel(context.Background())
	s := &PostgresStore{
		pool:    pool,
		watches: newFanout(),
		cancel:  cancel,
	}

	ready := make(chan error, 1)
	s.wg.Add(1)
	go s.listen(lctx, ready)
	if err := <-ready; err != nil {
		cancel()
		s.wg.Wait()
		pool.Close()
		return nil, fmt.Errorf("listening on %s: %w", notifyChannel, err)
	}

	return s, nil
}

// Put creates or replaces a key.
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, NOW())
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
			key, value)
		if err != nil {
			return err
		}
		return notify(ctx, tx, notification{Op: EventPut.String(), Key: key, Value: value})
	})
}

// Get returns the value for key.
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_entries WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return value, err
}

// GetPrefix returns every entry under prefix, sorted by key.
func (s *PostgresStore) GetPrefix(ctx context.Context, prefix string) ([]KeyValue, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM kv_entries WHERE starts_with(key, $1) ORDER BY key`, prefix)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (KeyValue, error) {
		var kv KeyValue
		err := row.Scan(&kv.Key, &kv.Value)
		return kv, err
	})
}

// Delete removes a key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM kv_entries WHERE key = $1`, key)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return notify(ctx, tx, notification{Op: EventDelete.String(), Key: key})
	})
}

// DeletePrefix removes every key under prefix.
func (s *PostgresStore) DeletePrefix(ctx context.Context, prefix string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `DELETE FROM kv_entries WHERE starts_with(key, $1) RETURNING key`, prefix)
		if err != nil {
			return err
		}
		keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := notify(ctx, tx, notification{Op: EventDelete.String(), Key: k}); err != nil {
				return err
			}
		}
		return nil
	})
}

// WatchPrefix registers fn for future changes under prefix.
func (s *PostgresStore) WatchPrefix(_ context.Context, prefix string, fn WatchFunc) (WatchID, error) {
	return s.watches.add(prefix, fn), nil
}

// CancelWatch stops a watch.
func (s *PostgresStore) CancelWatch(id WatchID) error {
	return s.watches.remove(id)
}

// Close stops the listener and releases database resources.
func (s *PostgresStore) Close() error {
	s.cancel()
	s.wg.Wait()
	s.watches.closeAll()
	s.pool.Close()
	return nil
}

func notify(ctx context.Context, tx pgx.Tx, n notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload))
	return err
}

// listen holds a dedicated connection subscribed to kv_events and fans
// notifications out to watches. The first LISTEN result is reported on ready;
// later connection failures are retried until ctx is done.
func (s *PostgresStore) listen(ctx context.Context, ready chan<- error) {
	defer s.wg.Done()

	first := true
	for {
		err := s.listenOnce(ctx, func() {
			if first {
				first = false
				ready <- nil
			}
		})
		if first {
			ready <- err
			return
		}
		if ctx.Err() != nil {
			return
		}
		slog.Warn("postgres listener lost, reconnecting", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(listenRetryDelay):
		}
	}
}

func (s *PostgresStore) listenOnce(ctx context.Context, onListening func()) error {
	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	// The connection carries LISTEN state; never hand it back to the pool.
	conn := pooled.Hijack()
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}
	onListening()

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		var msg notification
		if err := json.Unmarshal([]byte(n.Payload), &msg); err != nil {
			slog.Warn("invalid kv notification", "payload", n.Payload, "error", err)
			continue
		}
		ev := Event{Key: msg.Key, Value: msg.Value}
		switch msg.Op {
		case EventPut.String():
			ev.Type = EventPut
		case EventDelete.String():
			ev.Type = EventDelete
			ev.Value = nil
		default:
			continue
		}
		s.watches.publish(ev)
	}
}
