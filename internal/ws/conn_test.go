package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ugaemi/netraiders-server/internal/game"
)

// pair starts a server that hands its side of the socket to serve and
// returns the dialed client side.
func pair(t *testing.T, serve func(*Conn)) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewConn(raw)
		defer c.Close()
		serve(c)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestConn_ReadHello(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{name: "valid", payload: `{"username":"alice"}`, want: "alice"},
		{name: "empty", payload: `{"username":""}`, wantErr: true},
		{name: "missing", payload: `{}`, wantErr: true},
		{name: "not json", payload: `alice`, wantErr: true},
		{name: "too long", payload: `{"username":"` + strings.Repeat("a", 33) + `"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			type result struct {
				name string
				err  error
			}
			got := make(chan result, 1)
			client := pair(t, func(c *Conn) {
				name, err := c.ReadHello()
				got <- result{name, err}
			})
			require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(tt.payload)))

			select {
			case r := <-got:
				if tt.wantErr {
					assert.ErrorIs(t, r.err, ErrBadHello)
					return
				}
				require.NoError(t, r.err)
				assert.Equal(t, tt.want, r.name)
			case <-time.After(2 * time.Second):
				t.Fatal("hello not read")
			}
		})
	}
}

func TestConn_Probe(t *testing.T) {
	got := make(chan error, 1)
	client := pair(t, func(c *Conn) {
		rtt, err := c.Probe()
		if err == nil && rtt < 0 {
			t.Errorf("negative rtt %v", rtt)
		}
		got <- err
	})

	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(data))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("pong")))

	select {
	case err := <-got:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("probe did not finish")
	}
}

func TestConn_ReadInputSeparatesBadPayloads(t *testing.T) {
	type result struct {
		in  game.ClientInput
		err error
	}
	got := make(chan result, 2)
	client := pair(t, func(c *Conn) {
		for range 2 {
			in, err := c.ReadInput()
			got <- result{in, err}
		}
	})

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"x":1}`)))
	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"expected_tick":4,"x":1.5,"y":-2}`)))

	first := <-got
	assert.ErrorIs(t, first.err, game.ErrInvalidInput)

	second := <-got
	require.NoError(t, second.err)
	assert.Equal(t, game.ClientInput{ExpectedTick: 4, X: 1.5, Y: -2}, second.in)
}

func TestConn_ReadInputAfterDisconnect(t *testing.T) {
	got := make(chan error, 1)
	client := pair(t, func(c *Conn) {
		_, err := c.ReadInput()
		got <- err
	})
	client.Close()

	select {
	case err := <-got:
		require.Error(t, err)
		assert.NotErrorIs(t, err, game.ErrInvalidInput)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not fail")
	}
}

func TestConn_WriteSnapshot(t *testing.T) {
	snap := game.Snapshot{
		LocalPlayerID: 7,
		ServerTick:    12,
		TickRate:      20,
		PlayerDeltas:  []game.Player{game.NewPlayer(7, "alice")},
		SpawnPickups:  []game.Pickup{{ID: 3, X: 1, Y: 2}},
	}
	client := pair(t, func(c *Conn) {
		assert.NoError(t, c.WriteSnapshot(snap))
	})

	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.EqualValues(t, 7, got["local_player_id"])
	assert.EqualValues(t, 12, got["server_tick"])
	assert.EqualValues(t, 20, got["tick_rate"])
	assert.Len(t, got["player_deltas"], 1)
	assert.Len(t, got["spawn_pickups"], 1)
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	done := make(chan struct{})
	pair(t, func(c *Conn) {
		assert.NoError(t, c.Close())
		c.Close()
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close hung")
	}
}
