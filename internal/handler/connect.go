package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ugaemi/netraiders-server/internal/game"
	"github.com/ugaemi/netraiders-server/internal/match"
	"github.com/ugaemi/netraiders-server/internal/ws"
)

func (h *Handler) handleConnect(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := ws.NewConn(raw)
	h.hub.Register(conn)
	defer func() {
		h.hub.Unregister(conn)
		conn.Close()
	}()
	go conn.Keepalive()

	err = h.play(r.Context(), conn)
	switch {
	case err == nil, websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		slog.Debug("connection ended", "conn", conn.ID)
	default:
		slog.Info("connection ended", "conn", conn.ID, "error", err)
	}
}

// play runs one player's session over conn until the transport fails.
func (h *Handler) play(ctx context.Context, conn *ws.Conn) error {
	username, err := conn.ReadHello()
	if err != nil {
		return fmt.Errorf("reading hello: %w", err)
	}

	userID, err := match.AllocateUserID(ctx, h.st, nil)
	if err != nil {
		return fmt.Errorf("allocating user id: %w", err)
	}

	sess, err := match.Start(ctx, h.st, game.NewPlayer(userID, username), h.settings)
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer func() {
		if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("session release failed", "session", sess.ID, "error", err)
		}
	}()
	log := slog.With("conn", conn.ID, "session", sess.ID, "user_id", userID)

	rtt, err := conn.Probe()
	if err != nil {
		return err
	}
	rate := float64(sess.TickRate())
	sess.SetTickRTT(rtt.Seconds() * rate)

	lastSent := int64(-1)
	for {
		start := time.Now()

		if tick := sess.Player().Tick; tick > lastSent {
			if err := conn.WriteSnapshot(sess.Snapshot()); err != nil {
				return err
			}
			lastSent = tick
		}

		in, err := conn.ReadInput()
		if errors.Is(err, game.ErrInvalidInput) {
			log.Warn("skipping malformed input", "error", err)
			continue
		}
		if err != nil {
			return err
		}

		if err := sess.HandleInput(ctx, in); err != nil {
			log.Debug("input not fully applied", "error", err)
		}
		sess.SetTickRTT(time.Since(start).Seconds() * rate)
	}
}
