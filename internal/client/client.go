// Package client implements the dashboard sync layer: a WebSocket
// subscription with REST polling as fallback, mirroring server state into
// a local snapshot.
package client

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/NovaLink/internal/adapter/ws"
	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
	"github.com/Strob0t/NovaLink/internal/port/speech"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected       State = "disconnected"
	StateConnecting         State = "connecting"
	StateConnected          State = "connected"
	StateClosedNormal       State = "closed"
	StateClosedUnauthorized State = "unauthorized"
)

// Poll intervals for the REST fallback path.
const (
	agentPollInterval = 5 * time.Second
	alertPollInterval = 3 * time.Second
)

// reconnectDelay is the fixed backoff between reconnect attempts.
const reconnectDelay = 2 * time.Second

// Snapshot is the client's local mirror of the dashboard state. Updates
// replace it wholesale; there is no per-entity merging.
type Snapshot struct {
	Agents     []agent.Agent
	AgentTypes []agent.Type
	Alerts     []alert.Alert
	UpdatedAt  time.Time
}

// Client keeps a local snapshot in sync with a dashboard server.
type Client struct {
	serverURL  string
	token      string
	httpClient *http.Client
	synth      speech.Synthesizer
	onChange   func(Snapshot)

	mu       sync.Mutex
	snapshot Snapshot
	state    State
	speaking bool
	conn     *websocket.Conn
}

// Options configures a Client.
type Options struct {
	// ServerURL is the server base, e.g. "http://localhost:8080".
	ServerURL string
	// Token is the bearer session token.
	Token string
	// Synth receives voice events. May be nil.
	Synth speech.Synthesizer
	// OnChange is invoked with a copy of the snapshot after every
	// change. May be nil. Called from internal goroutines.
	OnChange func(Snapshot)
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
}

// New creates a Client. It does not connect; call Run.
func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		serverURL:  opts.ServerURL,
		token:      opts.Token,
		httpClient: hc,
		synth:      opts.Synth,
		onChange:   opts.OnChange,
		state:      StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the current snapshot.
func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Speaking reports whether a voice event is currently being played.
func (c *Client) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speaking
}

// Run connects and keeps the snapshot in sync until the context is
// cancelled or the server rejects the session. The REST pollers run
// alongside the socket so a silently dead connection still converges.
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.socketLoop(ctx) })
	g.Go(func() error { return c.pollLoop(ctx, agentPollInterval, c.pollAgents) })
	g.Go(func() error { return c.pollLoop(ctx, alertPollInterval, c.pollAlerts) })
	return g.Wait()
}

// SendCommand forwards a command to the server over the socket.
func (c *Client) SendCommand(ctx context.Context, agentID int64, commandText string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	payload, err := json.Marshal(ws.CommandData{AgentID: agentID, Command: commandText})
	if err != nil {
		return err
	}
	data, err := json.Marshal(ws.Message{Type: ws.EventCommand, Data: payload})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// socketLoop dials the hub and reads events, reconnecting after a fixed
// delay on any closure except an authorization rejection.
func (c *Client) socketLoop(ctx context.Context) error {
	for {
		c.setState(StateConnecting)

		conn, _, err := websocket.Dial(ctx, c.wsURL(), &websocket.DialOptions{
			HTTPClient: c.httpClient,
		})
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateDisconnected)
				return ctx.Err()
			}
			slog.Warn("dial failed, retrying", "error", err)
			c.setState(StateDisconnected)
			if !sleep(ctx, reconnectDelay) {
				return ctx.Err()
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.state = StateConnected
		c.mu.Unlock()

		err = c.readLoop(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		if websocket.CloseStatus(err) == ws.CloseUnauthorized {
			// The server revoked the session. Reconnecting would loop
			// forever on the same rejection.
			c.setState(StateClosedUnauthorized)
			return ErrUnauthorized
		}

		slog.Info("connection closed, reconnecting", "error", err)
		c.setState(StateClosedNormal)
		if !sleep(ctx, reconnectDelay) {
			return ctx.Err()
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		c.handleEvent(data)
	}
}

// handleEvent applies one server event to the local snapshot. Malformed
// events are dropped; the next update or poll repairs any divergence.
func (c *Client) handleEvent(data []byte) {
	var msg ws.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		slog.Warn("malformed event dropped", "error", err)
		return
	}

	switch msg.Type {
	case ws.EventInitial:
		var init ws.InitialData
		if err := json.Unmarshal(msg.Data, &init); err != nil {
			slog.Warn("malformed initial event dropped", "error", err)
			return
		}
		c.replace(func(s *Snapshot) {
			s.Agents = init.Agents
			s.AgentTypes = init.AgentTypes
			s.Alerts = init.Alerts
			s.UpdatedAt = time.Now()
		})

	case ws.EventUpdate:
		var upd ws.UpdateData
		if err := json.Unmarshal(msg.Data, &upd); err != nil {
			slog.Warn("malformed update event dropped", "error", err)
			return
		}
		c.replace(func(s *Snapshot) {
			s.Agents = upd.Agents
			s.Alerts = upd.Alerts
			s.UpdatedAt = upd.Timestamp
		})

	case ws.EventVoice:
		var v ws.VoiceData
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			slog.Warn("malformed voice event dropped", "error", err)
			return
		}
		c.speak(v.Text, v.AgentID)

	default:
		slog.Debug("unknown event type ignored", "type", msg.Type)
	}
}

// speak hands the text to the synthesizer and holds the speaking flag for
// the estimated playback duration. Synthesis is external, so completion
// is approximated from text length.
func (c *Client) speak(text string, agentID *int64) {
	if c.synth == nil {
		return
	}
	c.mu.Lock()
	c.speaking = true
	c.mu.Unlock()

	c.synth.Speak(text, agentID)

	d := time.Duration(len(text)) * 60 * time.Millisecond
	if d < time.Second {
		d = time.Second
	}
	time.AfterFunc(d, func() {
		c.mu.Lock()
		c.speaking = false
		c.mu.Unlock()
	})
}

// replace mutates the snapshot under lock and notifies the change hook.
func (c *Client) replace(mutate func(*Snapshot)) {
	c.mu.Lock()
	mutate(&c.snapshot)
	snap := c.snapshot
	cb := c.onChange
	c.mu.Unlock()

	if cb != nil {
		cb(snap)
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) wsURL() string {
	u := c.serverURL
	switch {
	case len(u) >= 8 && u[:8] == "https://":
		u = "wss://" + u[8:]
	case len(u) >= 7 && u[:7] == "http://":
		u = "ws://" + u[7:]
	}
	return u + "/ws?token=" + c.token
}

// sleep waits for d or context cancellation, reporting whether the full
// delay elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
