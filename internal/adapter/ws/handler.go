// Package ws implements the WebSocket adapter for real-time client
// communication.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/NovaLink/internal/domain"
	"github.com/Strob0t/NovaLink/internal/domain/command"
	"github.com/Strob0t/NovaLink/internal/domain/session"
)

// CloseUnauthorized is the application close code for rejected
// credentials. Clients must not auto-reconnect after receiving it.
const CloseUnauthorized websocket.StatusCode = 4001

// writeTimeout bounds a single send so one stalled client cannot pin a
// broadcast goroutine.
const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// SessionValidator checks a capability token. It is consulted at
// handshake time and again for every inbound message, so expiry cuts off
// long-lived connections.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*session.Claims, error)
}

// SnapshotSource provides the initial dashboard state for new connections.
type SnapshotSource interface {
	Initial(ctx context.Context) (InitialData, error)
}

// CommandSink receives commands forwarded from connections.
type CommandSink interface {
	HandleCommand(ctx context.Context, agentID int64, commandText string) (*command.Command, error)
}

// conn wraps a single authenticated WebSocket connection.
type conn struct {
	ws     *websocket.Conn
	cancel context.CancelFunc
	token  string
	claims *session.Claims
	sendMu sync.Mutex
}

// Hub manages all live connections and fans events out to them.
type Hub struct {
	sessions     SessionValidator
	snapshots    SnapshotSource
	welcomeDelay time.Duration

	commandsMu sync.RWMutex
	commands   CommandSink

	connGauge metric.Int64UpDownCounter

	mu    sync.RWMutex
	conns map[*conn]struct{}
}

// NewHub creates a WebSocket hub. The welcome voice event is sent to each
// new connection welcomeDelay after its initial snapshot.
func NewHub(sessions SessionValidator, snapshots SnapshotSource, welcomeDelay time.Duration) *Hub {
	return &Hub{
		sessions:     sessions,
		snapshots:    snapshots,
		welcomeDelay: welcomeDelay,
		conns:        make(map[*conn]struct{}),
	}
}

// SetCommandSink attaches the command handler. Set once at wiring time,
// before the hub accepts connections.
func (h *Hub) SetCommandSink(sink CommandSink) {
	h.commandsMu.Lock()
	h.commands = sink
	h.commandsMu.Unlock()
}

// SetConnectionGauge attaches the live-connection instrument. Set once at
// wiring time, before the hub accepts connections.
func (h *Hub) SetConnectionGauge(gauge metric.Int64UpDownCounter) {
	h.connGauge = gauge
}

// HandleWS upgrades the request and runs the connection until it closes.
// Connections without a valid session token are closed immediately with
// CloseUnauthorized and receive no events.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	token := r.URL.Query().Get("token")
	claims, err := h.validate(r.Context(), token)
	if err != nil {
		slog.Info("websocket unauthorized", "remote", r.RemoteAddr)
		_ = sock.Close(CloseUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: sock, cancel: cancel, token: token, claims: claims}

	// The snapshot must be the connection's first event, so the conn is
	// registered for broadcasts only after the initial send completes.
	if err := h.sendInitial(ctx, c); err != nil {
		slog.Error("websocket initial send failed", "error", err)
		cancel()
		_ = sock.Close(websocket.StatusInternalError, "")
		return
	}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	if h.connGauge != nil {
		h.connGauge.Add(ctx, 1)
	}

	slog.Info("websocket connected", "remote", r.RemoteAddr, "subject", claims.Subject)

	go h.welcome(ctx, c)
	go h.readLoop(ctx, c)
}

// validate rejects empty tokens before consulting the session store.
func (h *Hub) validate(ctx context.Context, token string) (*session.Claims, error) {
	if token == "" {
		return nil, domain.ErrUnauthorized
	}
	return h.sessions.Validate(ctx, token)
}

// sendInitial pushes the full snapshot as the connection's first event.
func (h *Hub) sendInitial(ctx context.Context, c *conn) error {
	initial, err := h.snapshots.Initial(ctx)
	if err != nil {
		return err
	}
	data, err := json.Marshal(initial)
	if err != nil {
		return err
	}
	return h.send(ctx, c, Message{Type: EventInitial, Data: data})
}

// welcome delivers the system greeting voice event to one connection.
func (h *Hub) welcome(ctx context.Context, c *conn) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(h.welcomeDelay):
	}

	data, err := json.Marshal(VoiceData{Text: "NovaLink online. All agent telemetry channels are live."})
	if err != nil {
		return
	}
	if err := h.send(ctx, c, Message{Type: EventVoice, Data: data}); err != nil {
		slog.Debug("websocket welcome send failed", "error", err)
	}
}

// readLoop consumes inbound messages until the connection dies. Messages
// on one connection are handled to completion in arrival order.
func (h *Hub) readLoop(ctx context.Context, c *conn) {
	defer func() {
		h.remove(c)
		_ = c.ws.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, raw, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		// Re-validate the capability on every message, not just at
		// handshake time, so revoked or expired sessions are cut off.
		if _, err := h.validate(ctx, c.token); err != nil {
			slog.Info("websocket session expired", "subject", c.claims.Subject)
			h.remove(c)
			_ = c.ws.Close(CloseUnauthorized, "unauthorized")
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			slog.Warn("websocket malformed message dropped", "error", err)
			continue
		}

		if msg.Type != EventCommand {
			slog.Debug("websocket unknown message type dropped", "type", msg.Type)
			continue
		}

		var cmd CommandData
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			slog.Warn("websocket malformed command dropped", "error", err)
			continue
		}

		h.commandsMu.RLock()
		sink := h.commands
		h.commandsMu.RUnlock()
		if sink == nil {
			continue
		}

		if _, err := sink.HandleCommand(ctx, cmd.AgentID, cmd.Command); err != nil {
			// The command path has no user-facing error: log and move on.
			slog.Warn("command handling failed", "agent_id", cmd.AgentID, "error", err)
		}
	}
}

// Broadcast sends a message to all connected clients. Failed writes drop
// the offending connection and never block the rest.
func (h *Hub) Broadcast(ctx context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.write(ctx, data); err != nil {
			slog.Debug("websocket write failed", "error", err)
			h.remove(c)
		}
	}
}

// send delivers a single event to one connection.
func (h *Hub) send(ctx context.Context, c *conn, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.write(ctx, data)
}

func (c *conn) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		if h.connGauge != nil {
			h.connGauge.Add(context.Background(), -1)
		}
		slog.Info("websocket disconnected")
	}
}
