package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ugaemi/netraiders-server/internal/match"
	"github.com/ugaemi/netraiders-server/internal/store"
	"github.com/ugaemi/netraiders-server/internal/ws"
)

// Handler serves the HTTP and WebSocket endpoints of one server process.
type Handler struct {
	st       store.Store
	hub      *ws.Hub
	settings match.Settings
	upgrader websocket.Upgrader
	started  time.Time
}

// New creates a handler that runs every connected player's session against st.
func New(st store.Store, hub *ws.Hub, settings match.Settings) *Handler {
	return &Handler{
		st:       st,
		hub:      hub,
		settings: settings,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Clients connect from any origin
			},
		},
		started: time.Now(),
	}
}

// Routes returns the server's request multiplexer.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /whoami", h.handleWhoAmI)
	mux.HandleFunc("GET /netraiderConnect", h.handleConnect)
	return mux
}

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Uptime      string `json:"uptime"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		Connections: h.hub.Count(),
		Uptime:      time.Since(h.started).Round(time.Second).String(),
	})
}

// handleWhoAmI stands in for the external identity service.
func (h *Handler) handleWhoAmI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"user": "BasicUser"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
