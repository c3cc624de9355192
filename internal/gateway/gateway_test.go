package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"orderchat/internal/app"
	"orderchat/pkg/domain"
	"orderchat/pkg/store"
	"orderchat/pkg/token"
)

type testEnv struct {
	app     *app.App
	gateway *Gateway
	server  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tokens, err := token.New("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	a, err := app.New(app.Config{Store: store.NewMemoryStore(), Tokens: tokens})
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	gw := New(a, nil, nil)
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)
	return &testEnv{app: a, gateway: gw, server: srv}
}

func (e *testEnv) signUp(t *testing.T, email string, role domain.UserRole) (domain.User, string) {
	t.Helper()
	user, err := e.app.SignUp(email, "secret123", role)
	if err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
	_, tok, err := e.app.SignIn(email, "secret123")
	if err != nil {
		t.Fatalf("SignIn(%s): %v", email, err)
	}
	return user, tok
}

func (e *testEnv) dial(t *testing.T, tok string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	header := http.Header{"Authorization": {"Bearer " + tok}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v (resp=%v)", err, resp)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return frame
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	body, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := conn.WriteJSON(Frame{Event: event, Data: body}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestDialRejectsBadToken(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http")
	header := http.Header{"Authorization": {"Bearer garbage"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatalf("dial should fail without a valid token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake status = %v, want 401", resp)
	}
}

func TestDialRejectsQueryToken(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.signUp(t, "query@example.com", domain.RoleUser)

	// A valid token is only accepted via the Authorization header, never
	// the query string.
	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "?token=" + tok
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("dial should fail without an Authorization header")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("handshake status = %v, want 401", resp)
	}
}

func TestMessageBroadcast(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerTok := env.signUp(t, "owner@example.com", domain.RoleUser)
	_, adminTok := env.signUp(t, "admin@example.com", domain.RoleAdmin)

	_, room, err := env.app.CreateOrder(owner.ID, app.CreateOrderInput{Description: "flyers", Quantity: 10})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	ownerConn := env.dial(t, ownerTok)
	adminConn := env.dial(t, adminTok)

	writeFrame(t, ownerConn, "sendMessage", map[string]string{
		"chatRoomId": room.ID,
		"content":    "can you do matte paper?",
	})

	for _, conn := range []*websocket.Conn{ownerConn, adminConn} {
		frame := readFrame(t, conn)
		if frame.Event != "message" {
			t.Fatalf("event = %q, want message", frame.Event)
		}
		var msg domain.Message
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		if msg.SenderID != owner.ID {
			t.Fatalf("sender = %q, want %q", msg.SenderID, owner.ID)
		}
		if msg.Content != "can you do matte paper?" {
			t.Fatalf("content = %q", msg.Content)
		}
	}

	// The message was persisted, not just relayed.
	history, err := env.app.ChatHistory(owner.ID, room.ID)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history length = %d, want 1", len(history))
	}
}

func TestStrangerCannotSend(t *testing.T) {
	env := newTestEnv(t)
	owner, _ := env.signUp(t, "owner@example.com", domain.RoleUser)
	_, strangerTok := env.signUp(t, "stranger@example.com", domain.RoleUser)

	_, room, err := env.app.CreateOrder(owner.ID, app.CreateOrderInput{Description: "flyers", Quantity: 10})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	conn := env.dial(t, strangerTok)
	writeFrame(t, conn, "sendMessage", map[string]string{
		"chatRoomId": room.ID,
		"content":    "let me in",
	})

	frame := readFrame(t, conn)
	if frame.Event != "error" {
		t.Fatalf("event = %q, want error", frame.Event)
	}
	var payload errorPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if payload.Status != "error" {
		t.Fatalf("status = %q, want error", payload.Status)
	}
	if payload.Message != app.ErrChatAccessDenied.Error() {
		t.Fatalf("message = %q", payload.Message)
	}

	// Nothing was persisted.
	history, err := env.app.ChatHistory(owner.ID, room.ID)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history length = %d, want 0", len(history))
	}
}

func TestClosedRoomRejectsMessages(t *testing.T) {
	env := newTestEnv(t)
	owner, ownerTok := env.signUp(t, "owner@example.com", domain.RoleUser)

	_, room, err := env.app.CreateOrder(owner.ID, app.CreateOrderInput{Description: "flyers", Quantity: 10})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := env.app.CloseChat(room.ID, "done"); err != nil {
		t.Fatalf("CloseChat: %v", err)
	}

	conn := env.dial(t, ownerTok)
	writeFrame(t, conn, "sendMessage", map[string]string{
		"chatRoomId": room.ID,
		"content":    "anyone there?",
	})

	frame := readFrame(t, conn)
	if frame.Event != "error" {
		t.Fatalf("event = %q, want error", frame.Event)
	}
	var payload errorPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if payload.Message != app.ErrChatRoomClosed.Error() {
		t.Fatalf("message = %q", payload.Message)
	}
}

func TestUnknownEvent(t *testing.T) {
	env := newTestEnv(t)
	_, tok := env.signUp(t, "owner@example.com", domain.RoleUser)

	conn := env.dial(t, tok)
	writeFrame(t, conn, "selfDestruct", map[string]string{})

	frame := readFrame(t, conn)
	if frame.Event != "exception" {
		t.Fatalf("event = %q, want exception", frame.Event)
	}
}

func TestRegistryLastConnectionWins(t *testing.T) {
	env := newTestEnv(t)
	user, tok := env.signUp(t, "owner@example.com", domain.RoleUser)

	env.dial(t, tok)
	firstID, ok := env.gateway.Registry().ConnID(user.ID)
	if !ok {
		t.Fatalf("user not registered after first dial")
	}

	env.dial(t, tok)
	secondID, ok := env.gateway.Registry().ConnID(user.ID)
	if !ok {
		t.Fatalf("user not registered after second dial")
	}
	if secondID == firstID {
		t.Fatalf("second connection did not replace the first")
	}

	sender, ok := env.gateway.Registry().ResolveSender(secondID)
	if !ok || sender != user.ID {
		t.Fatalf("ResolveSender = %q, %v; want %q", sender, ok, user.ID)
	}
	if _, ok := env.gateway.Registry().ResolveSender(firstID); ok {
		t.Fatalf("stale connection still resolves to a sender")
	}
}

func TestRegistryUnregisterIgnoresStaleConn(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "conn-old")
	r.Register("u1", "conn-new")

	r.Unregister("conn-old")
	if id, ok := r.ConnID("u1"); !ok || id != "conn-new" {
		t.Fatalf("stale unregister evicted the live connection: %q, %v", id, ok)
	}

	r.Unregister("conn-new")
	if _, ok := r.ConnID("u1"); ok {
		t.Fatalf("live unregister did not evict the connection")
	}
}
