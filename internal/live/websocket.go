package live

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/ashureev/rizzcoach/internal/domain"
	"github.com/ashureev/rizzcoach/internal/identity"
	"github.com/ashureev/rizzcoach/internal/session"
)

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
)

// StoreProvider resolves a user's session store.
type StoreProvider interface {
	For(userID string) *session.Store
}

// Snapshot is the first frame sent on every connection.
type Snapshot struct {
	Type      string           `json:"type"`
	CurrentID string           `json:"currentId"`
	Sessions  []domain.Session `json:"sessions"`
}

// Handler upgrades requests and relays store events as JSON frames.
type Handler struct {
	stores        StoreProvider
	mgr           *ConnManager
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new live event handler.
func NewHandler(stores StoreProvider, mgr *ConnManager, allowedOrigin string, isDev bool) *Handler {
	return &Handler{stores: stores, mgr: mgr, allowedOrigin: allowedOrigin, isDev: isDev}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	connID := uuid.NewString()
	h.mgr.Register(userID, connID, ws)
	defer h.mgr.Unregister(userID, connID, ws)

	st := h.stores.For(userID)
	events, unsubscribe, view := st.SubscribeView(eventBuffer)
	defer unsubscribe()

	// Clients only listen; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := ws.CloseRead(r.Context())

	if err := h.write(ctx, ws, Snapshot{Type: "snapshot", CurrentID: view.CurrentID, Sessions: view.Sessions}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			slog.Debug("Live stream ended", "user_id", userID, "conn_id", connID)
			return
		case ev, ok := <-events:
			if !ok {
				slog.Info("Session store closed, ending live stream", "user_id", userID)
				return
			}
			if err := h.write(ctx, ws, ev); err != nil {
				return
			}
		}
	}
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, ws, v); err != nil {
		slog.Debug("WebSocket write error", "error", err)
		return err
	}
	return nil
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
