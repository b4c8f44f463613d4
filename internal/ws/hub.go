package ws

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Hub tracks live connections.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]*Conn)}
}

// Register adds a connection.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	n := len(h.conns)
	h.mu.Unlock()
	slog.Info("client connected", "conn", c.ID, "connections", n)
}

// Unregister removes a connection. Unknown connections are ignored.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	_, ok := h.conns[c.ID]
	delete(h.conns, c.ID)
	n := len(h.conns)
	h.mu.Unlock()
	if ok {
		slog.Info("client disconnected", "conn", c.ID, "connections", n)
	}
}

// CloseAll closes every registered connection.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.Close()
	}
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Drain waits until every connection has unregistered or ctx is done.
func (h *Hub) Drain(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for h.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
