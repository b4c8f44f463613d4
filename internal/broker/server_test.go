package broker

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_StartAndConnect(t *testing.T) {
	s, err := NewServer(WithPort(-1), WithStoreDir(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Shutdown)

	nc, err := nats.Connect(s.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	assert.True(t, nc.IsConnected())
}

func TestNewServer_Options(t *testing.T) {
	s, err := NewServer(
		WithHost("localhost"),
		WithPort(-1),
		WithStartTimeout(3*time.Second),
		WithStoreDir(t.TempDir()),
	)
	require.NoError(t, err)
	assert.Equal(t, "localhost", s.host)
	assert.Equal(t, 3*time.Second, s.startupTimeout)

	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(s.Shutdown)
	assert.True(t, strings.Contains(s.ClientURL(), "localhost"), s.ClientURL())
}

func TestServer_TwoInstancesOnFreePorts(t *testing.T) {
	var urls []string
	for range 2 {
		s, err := NewServer(WithPort(-1), WithStoreDir(t.TempDir()))
		require.NoError(t, err)
		require.NoError(t, s.Start(context.Background()))
		t.Cleanup(s.Shutdown)
		urls = append(urls, s.ClientURL())
	}
	assert.NotEqual(t, urls[0], urls[1])
}
