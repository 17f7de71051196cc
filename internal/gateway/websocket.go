package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/arcai/arc-server/internal/assistant"
	"github.com/coder/websocket"
)

// Event names on the real-time channel.
const (
	EventCommandFinal  = "ai:stt:final"
	EventFragment      = "ai:stt:fragment"
	EventResponseChunk = "ai:tts:response:chunk"
	EventReminderAlert = "ai:reminder:alert"
	EventAuthError     = "auth_error"
)

// CommandProcessor runs the pipeline for one command. Satisfied by
// assistant.Orchestrator.
type CommandProcessor interface {
	Process(ctx context.Context, userID, command string) assistant.Response
}

// envelope is the wire shape of every event in both directions.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type commandPayload struct {
	Command string `json:"command"`
}

type fragmentPayload struct {
	Text   string `json:"text"`
	UserID string `json:"userId,omitempty"`
}

// Handler upgrades authenticated WebSocket connections and routes command
// events to the pipeline and response events back to the originating
// connection.
type Handler struct {
	auth          *Authenticator
	processor     CommandProcessor
	sessions      *SessionManager
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket gateway handler.
func NewHandler(auth *Authenticator, processor CommandProcessor, sessions *SessionManager, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		auth:          auth,
		processor:     processor,
		sessions:      sessions,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for the WebSocket upgrade. The handshake
// is authenticated before the upgrade: refused connections never reach the
// pipeline or the store. Credentials ride query parameters because browser
// WebSocket clients cannot set request headers.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	token := r.URL.Query().Get("token")
	claimed := r.URL.Query().Get("userId")
	userID, err := h.auth.Authenticate(token, claimed)
	if err != nil {
		slog.Warn("WebSocket handshake rejected", "reason", err, "ip", r.RemoteAddr)
		http.Error(w, EventAuthError+": "+err.Error(), http.StatusUnauthorized)
		return
	}
	slog.Info("WebSocket connection authenticated", "user_id", userID, "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sessions.Register(userID, ws)
	defer h.sessions.Unregister(userID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h.readLoop(ctx, ws, userID)
	slog.Info("Assistant session ended", "user_id", userID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// readLoop services one connection. Commands are processed inline, which
// caps in-flight commands per connection at one and keeps a single user's
// appends ordered through that connection.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, userID string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			slog.Warn("Malformed event envelope dropped", "user_id", userID, "error", err)
			continue
		}

		switch env.Event {
		case EventCommandFinal:
			var payload commandPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil || payload.Command == "" {
				slog.Warn("Malformed command payload dropped", "user_id", userID)
				continue
			}
			// Identity comes from the connection, never from the payload.
			resp := h.processor.Process(ctx, userID, payload.Command)
			if err := writeEvent(ctx, ws, EventResponseChunk, resp); err != nil {
				slog.Warn("Failed to emit response chunk", "user_id", userID, "error", err)
				return
			}
		case EventFragment:
			var payload fragmentPayload
			if err := json.Unmarshal(env.Data, &payload); err != nil {
				slog.Warn("Malformed fragment payload dropped", "user_id", userID)
				continue
			}
			// Echo relay only. The client-asserted userId is discarded in
			// favor of the connection identity.
			relay := fragmentPayload{Text: payload.Text, UserID: userID}
			if err := writeEvent(ctx, ws, EventFragment, relay); err != nil {
				slog.Debug("Failed to relay fragment", "user_id", userID, "error", err)
			}
		default:
			slog.Debug("Unknown event ignored", "user_id", userID, "event", env.Event)
		}
	}
}

func writeEvent(ctx context.Context, ws *websocket.Conn, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(envelope{Event: event, Data: payload})
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, msg)
}
