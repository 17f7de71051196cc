package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// SessionManager tracks the active WebSocket connection per user. A second
// connection for the same user replaces the first; all per-connection state
// dies with the connection.
type SessionManager struct {
	mu     sync.RWMutex
	active map[string]*websocket.Conn
}

// NewSessionManager creates a new session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{active: make(map[string]*websocket.Conn)}
}

// Register adds a connection for a user, closing any previous one.
func (m *SessionManager) Register(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[userID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}
	m.active[userID] = conn
	slog.Info("Assistant session registered", "user_id", userID)
}

// Unregister removes a user's connection if it is still the current one.
func (m *SessionManager) Unregister(userID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[userID]; ok && current == conn {
		delete(m.active, userID)
		slog.Info("Assistant session unregistered", "user_id", userID)
	}
}

// Get returns the active connection for a user, or nil.
func (m *SessionManager) Get(userID string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[userID]
}

// Push writes an event to a user's active connection, if any. Best effort:
// a missing or failing connection is not an error for the caller.
func (m *SessionManager) Push(ctx context.Context, userID, event string, data any) {
	conn := m.Get(userID)
	if conn == nil {
		slog.Debug("No active session for push", "user_id", userID, "event", event)
		return
	}
	if err := writeEvent(ctx, conn, event, data); err != nil {
		slog.Debug("Push failed", "user_id", userID, "event", event, "error", err)
	}
}
