// Package live streams session store events to connected clients over WebSocket.
package live

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// ConnManager tracks active WebSocket connections per user. One user may
// hold several connections (browser tabs).
type ConnManager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewConnManager creates a new connection manager.
func NewConnManager() *ConnManager {
	return &ConnManager{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// GetActive returns the connection registered under userID and connID.
func (m *ConnManager) GetActive(userID, connID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if conns, ok := m.active[userID]; ok {
		return conns[connID]
	}
	return nil
}

// Count returns the number of live connections for a user.
func (m *ConnManager) Count(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.active[userID])
}

// Register adds a WebSocket connection for a user.
func (m *ConnManager) Register(userID, connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[userID]; !exists {
		m.active[userID] = make(map[string]*websocket.Conn)
	}
	m.active[userID][connID] = conn
	slog.Info("Live connection registered", "user_id", userID, "conn_id", connID)
}

// Unregister removes a connection if it is still the one registered.
func (m *ConnManager) Unregister(userID, connID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if conns, ok := m.active[userID]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(m.active, userID)
			}
			slog.Info("Live connection unregistered", "user_id", userID, "conn_id", connID)
		}
	}
}

// CloseUser terminates every connection of a user.
func (m *ConnManager) CloseUser(userID string) {
	m.mu.Lock()
	conns, ok := m.active[userID]
	delete(m.active, userID)
	m.mu.Unlock()

	if !ok {
		return
	}
	for id, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "session expired")
		slog.Info("Live connection closed", "user_id", userID, "conn_id", id)
	}
}
