// Package gateway serves the realtime chat endpoint: one authenticated
// websocket per user, room subscriptions scoped by order ownership, and
// fan-out of persisted messages.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"orderchat/internal/app"
	"orderchat/internal/util"
	"orderchat/pkg/metrics"
)

// Frame is the wire envelope for every websocket message, both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound events: "message" fans out persisted chat messages, "error"
// reports a failed sendMessage to its sender, "exception" reports frames
// the gateway could not route at all.
const (
	eventMessage   = "message"
	eventError     = "error"
	eventException = "exception"
)

type sendMessagePayload struct {
	ChatRoomID string `json:"chatRoomId"`
	Content    string `json:"content"`
}

type errorPayload struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// Gateway upgrades HTTP requests to websocket sessions and routes chat
// traffic between clients and the application core.
type Gateway struct {
	app      *app.App
	registry *Registry
	rooms    *roomTable
	metrics  *metrics.Metrics
	upgrader websocket.Upgrader
}

// New constructs a gateway. allowedOrigins restricts the handshake Origin
// header; an empty list allows any origin. metrics may be nil.
func New(a *app.App, allowedOrigins []string, m *metrics.Metrics) *Gateway {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Gateway{
		app:      a,
		registry: NewRegistry(),
		rooms:    newRoomTable(),
		metrics:  m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				_, ok := origins[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

// Registry exposes the connection registry, mainly for tests.
func (g *Gateway) Registry() *Registry { return g.registry }

// ServeHTTP authenticates the handshake, upgrades the connection, and
// subscribes the client to every room it may access.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := util.LoggerFromContext(r.Context())

	user, err := g.app.UserFromToken(bearerToken(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	roomIDs, err := g.app.JoinableRoomIDs(user.ID, user.Role)
	if err != nil {
		logger.Error("list joinable rooms", "user_id", user.ID, "err", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	c := newClient(g, conn, util.NewID(), user.ID, user.Role)
	g.registry.Register(c.userID, c.connID)
	for _, id := range roomIDs {
		g.rooms.Subscribe(id, c)
	}
	if g.metrics != nil {
		g.metrics.Connections.Inc()
	}
	logger.Info("websocket connected", "user_id", user.ID, "conn_id", c.connID, "rooms", len(roomIDs))

	go c.writePump()
	go c.readPump()
}

// handleFrame processes one inbound frame from a client.
func (g *Gateway) handleFrame(c *client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		g.emit(c, eventException, "invalid frame")
		return
	}
	switch frame.Event {
	case "sendMessage":
		g.handleSendMessage(c, frame.Data)
	default:
		g.emit(c, eventException, "unknown event: "+frame.Event)
	}
}

func (g *Gateway) handleSendMessage(c *client, data json.RawMessage) {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.emit(c, eventError, "invalid sendMessage payload")
		return
	}
	// The sender is whoever the registry says owns this connection. A
	// connection superseded by a newer login can no longer speak.
	senderID, ok := g.registry.ResolveSender(c.connID)
	if !ok {
		g.emit(c, eventError, app.ErrTokenInvalid.Error())
		return
	}
	msg, err := g.app.CreateMessage(senderID, payload.ChatRoomID, payload.Content)
	if err != nil {
		g.emit(c, eventError, userMessage(err))
		return
	}
	if g.metrics != nil {
		g.metrics.ChatMessages.Inc()
	}
	out, err := marshalFrame(eventMessage, msg)
	if err != nil {
		g.emit(c, eventError, "internal error")
		return
	}
	g.rooms.Subscribe(payload.ChatRoomID, c)
	g.rooms.Broadcast(payload.ChatRoomID, out)
}

// disconnect tears down a client's registrations. Called once from the
// read pump when the connection dies.
func (g *Gateway) disconnect(c *client) {
	g.rooms.Drop(c)
	g.registry.Unregister(c.connID)
	if g.metrics != nil {
		g.metrics.Connections.Dec()
	}
	c.closeSend()
}

// emit sends an error-shaped frame to one client only.
func (g *Gateway) emit(c *client, event, message string) {
	out, err := marshalFrame(event, errorPayload{
		Status:    "error",
		Message:   message,
		Data:      nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	if !c.trySend(out) {
		c.closeSend()
	}
}

func marshalFrame(event string, data any) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: body})
}

// userMessage maps application errors to client-safe text. Unexpected
// errors are not leaked.
func userMessage(err error) string {
	switch {
	case errors.Is(err, app.ErrMessageFieldsRequired),
		errors.Is(err, app.ErrChatRoomNotFound),
		errors.Is(err, app.ErrChatRoomClosed),
		errors.Is(err, app.ErrChatAccessDenied),
		errors.Is(err, app.ErrUserNotFound):
		return err.Error()
	}
	return "internal error"
}

// bearerToken extracts the handshake credential. Only the Authorization
// header is accepted; tokens in query strings end up in access logs.
func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
