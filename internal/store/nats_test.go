package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ugaemi/netraiders-server/internal/broker"
)

func startBroker(t *testing.T) *broker.Server {
	t.Helper()
	srv, err := broker.NewServer(broker.WithPort(-1), broker.WithStoreDir(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestNatsStore(t *testing.T) {
	srv := startBroker(t)
	n := 0
	runStoreContract(t, func(t *testing.T) Store {
		n++
		s, err := NewNatsStore(context.Background(), srv.ClientURL(), fmt.Sprintf("test_%d", n))
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestNatsStore_SharedBucketAcrossConnections(t *testing.T) {
	srv := startBroker(t)
	ctx := context.Background()

	a, err := NewNatsStore(ctx, srv.ClientURL(), "match")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewNatsStore(ctx, srv.ClientURL(), "match")
	require.NoError(t, err)
	defer b.Close()

	rec := &recorder{}
	_, err = b.WatchPrefix(ctx, "/connected_players", rec.handle)
	require.NoError(t, err)

	require.NoError(t, a.Put(ctx, "/connected_players/5", []byte("p5")))
	events := rec.waitFor(t, 1)
	assert.Equal(t, "/connected_players/5", events[0].Key)

	v, err := b.Get(ctx, "/connected_players/5")
	require.NoError(t, err)
	assert.Equal(t, "p5", string(v))
}

func TestBucketKeyMapping(t *testing.T) {
	tests := []struct {
		key      string
		expected string
	}{
		{"/startTime", "startTime"},
		{"/pickups/42", "pickups.42"},
		{"/connected_players/7", "connected_players.7"},
	}

	for _, tt := range tests {
		got, err := toBucketKey(tt.key)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
		assert.Equal(t, tt.key, fromBucketKey(got))
	}

	for _, bad := range []string{"", "/", "/a.b", "/a b", "/a*"} {
		_, err := toBucketKey(bad)
		assert.Error(t, err, "key %q", bad)
	}

	assert.Equal(t, "pickups.>", prefixFilter("/pickups"))
	assert.Equal(t, "pickups.>", prefixFilter("/pickups/"))
	assert.Equal(t, ">", prefixFilter("/"))
}
