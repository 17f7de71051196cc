package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/arcai/arc-server/internal/assistant"
	"github.com/arcai/arc-server/internal/domain"
	"github.com/coder/websocket"
)

// recordingProcessor stands in for the orchestrator and records every
// command that reaches the pipeline.
type recordingProcessor struct {
	mu       sync.Mutex
	commands []string
	users    []string
}

func (p *recordingProcessor) Process(_ context.Context, userID, command string) assistant.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commands = append(p.commands, command)
	p.users = append(p.users, userID)
	return assistant.Response{
		Chunk:   "ack: " + command,
		IsFinal: true,
		Intent: domain.StructuredIntent{
			Intent:       domain.IntentConversation,
			Action:       domain.ActionAnswerQuestion,
			TextResponse: "ack: " + command,
		},
	}
}

func (p *recordingProcessor) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.commands)
}

func (p *recordingProcessor) user(i int) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.users[i]
}

func newGatewayServer(t *testing.T, processor CommandProcessor) *httptest.Server {
	t.Helper()
	auth := NewAuthenticator(testSecret, "demo-token", "demo-user")
	h := NewHandler(auth, processor, NewSessionManager(), "", true)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, token, userID string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token + "&userId=" + userID
	return websocket.Dial(ctx, url, nil)
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := writeEvent(ctx, conn, event, data); err != nil {
		t.Fatalf("write event failed: %v", err)
	}
}

func receive(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, msg, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var env envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		t.Fatalf("unmarshal envelope failed: %v", err)
	}
	return env
}

func TestRejectedHandshakeNeverReachesPipeline(t *testing.T) {
	t.Parallel()

	processor := &recordingProcessor{}
	srv := newGatewayServer(t, processor)

	tests := []struct {
		name   string
		token  string
		userID string
	}{
		{"missing token", "", "user-1"},
		{"missing identity", "demo-token", ""},
		{"invalid token", "bogus", "user-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := dial(t, srv, tt.token, tt.userID)
			if err == nil {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				t.Fatal("expected the handshake to be refused")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Fatalf("expected 401 rejection, got %+v", resp)
			}
		})
	}

	if processor.calls() != 0 {
		t.Errorf("refused connections must not reach the pipeline, got %d calls", processor.calls())
	}
}

func TestCommandYieldsExactlyOneFinalChunk(t *testing.T) {
	t.Parallel()

	processor := &recordingProcessor{}
	srv := newGatewayServer(t, processor)

	token, err := IssueToken([]byte(testSecret), "user-7", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	conn, _, err := dial(t, srv, token, "user-7")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	send(t, conn, EventCommandFinal, commandPayload{Command: "hello there"})

	env := receive(t, conn)
	if env.Event != EventResponseChunk {
		t.Fatalf("expected %s, got %s", EventResponseChunk, env.Event)
	}
	var resp assistant.Response
	if err := json.Unmarshal(env.Data, &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if !resp.IsFinal {
		t.Error("expected isFinal true")
	}
	if resp.Chunk != "ack: hello there" {
		t.Errorf("unexpected chunk: %q", resp.Chunk)
	}

	// A second command gets its own single response; nothing extra queued.
	send(t, conn, EventCommandFinal, commandPayload{Command: "again"})
	env = receive(t, conn)
	if env.Event != EventResponseChunk {
		t.Fatalf("expected %s, got %s", EventResponseChunk, env.Event)
	}
	if processor.calls() != 2 {
		t.Errorf("expected 2 pipeline calls, got %d", processor.calls())
	}
	if processor.user(0) != "user-7" {
		t.Errorf("identity must come from the token subject, got %q", processor.users[0])
	}
}

func TestFragmentRelayUsesConnectionIdentity(t *testing.T) {
	t.Parallel()

	processor := &recordingProcessor{}
	srv := newGatewayServer(t, processor)

	conn, _, err := dial(t, srv, "demo-token", "demo-user")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// The payload asserts a different user; the relay must overwrite it.
	send(t, conn, EventFragment, fragmentPayload{Text: "partial tra", UserID: "spoofed-user"})

	env := receive(t, conn)
	if env.Event != EventFragment {
		t.Fatalf("expected %s, got %s", EventFragment, env.Event)
	}
	var frag fragmentPayload
	if err := json.Unmarshal(env.Data, &frag); err != nil {
		t.Fatalf("unmarshal fragment failed: %v", err)
	}
	if frag.UserID != "demo-user" {
		t.Errorf("expected connection identity demo-user, got %q", frag.UserID)
	}
	if frag.Text != "partial tra" {
		t.Errorf("unexpected text: %q", frag.Text)
	}
	if processor.calls() != 0 {
		t.Errorf("fragments must not reach the pipeline, got %d calls", processor.calls())
	}
}

func TestMalformedEventsAreDroppedNotFatal(t *testing.T) {
	t.Parallel()

	processor := &recordingProcessor{}
	srv := newGatewayServer(t, processor)

	conn, _, err := dial(t, srv, "demo-token", "demo-user")
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte("not json at all")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The connection survives; a well-formed command still round-trips.
	send(t, conn, EventCommandFinal, commandPayload{Command: "still works"})
	env := receive(t, conn)
	if env.Event != EventResponseChunk {
		t.Fatalf("expected %s after malformed frame, got %s", EventResponseChunk, env.Event)
	}
}

func TestSessionManagerReplacesDuplicateConnections(t *testing.T) {
	t.Parallel()

	processor := &recordingProcessor{}
	srv := newGatewayServer(t, processor)

	first, _, err := dial(t, srv, "demo-token", "demo-user")
	if err != nil {
		t.Fatalf("first dial failed: %v", err)
	}
	second, _, err := dial(t, srv, "demo-token", "demo-user")
	if err != nil {
		t.Fatalf("second dial failed: %v", err)
	}
	defer func() { _ = second.Close(websocket.StatusNormalClosure, "") }()

	// The replaced connection gets closed by the server.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := first.Read(ctx); err == nil {
		t.Error("expected the first connection to be closed after replacement")
	}

	// The new connection still works.
	send(t, second, EventCommandFinal, commandPayload{Command: "ping"})
	env := receive(t, second)
	if env.Event != EventResponseChunk {
		t.Fatalf("expected %s, got %s", EventResponseChunk, env.Event)
	}
}
