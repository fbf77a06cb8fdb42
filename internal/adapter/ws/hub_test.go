package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/embedded"

	"github.com/Strob0t/NovaLink/internal/adapter/ws"
	"github.com/Strob0t/NovaLink/internal/domain"
	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/command"
	"github.com/Strob0t/NovaLink/internal/domain/session"
)

// stubValidator accepts a single fixed token. Revoke cuts it off, which
// exercises the per-message revalidation path.
type stubValidator struct {
	mu      sync.Mutex
	token   string
	revoked bool
}

func (v *stubValidator) Validate(_ context.Context, token string) (*session.Claims, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.revoked || token != v.token {
		return nil, domain.ErrUnauthorized
	}
	return &session.Claims{Subject: "user-1"}, nil
}

func (v *stubValidator) Revoke() {
	v.mu.Lock()
	v.revoked = true
	v.mu.Unlock()
}

type stubSnapshots struct{}

func (stubSnapshots) Initial(context.Context) (ws.InitialData, error) {
	return ws.InitialData{
		Agents: []agent.Agent{{ID: 1, Name: "ChronoCore", Status: agent.StatusActive}},
	}, nil
}

type recordingSink struct {
	mu   sync.Mutex
	cmds []ws.CommandData
}

func (s *recordingSink) HandleCommand(_ context.Context, agentID int64, commandText string) (*command.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cmds = append(s.cmds, ws.CommandData{AgentID: agentID, Command: commandText})
	return &command.Command{ID: int64(len(s.cmds)), AgentID: agentID, Command: commandText, Executed: true}, nil
}

func (s *recordingSink) commands() []ws.CommandData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ws.CommandData(nil), s.cmds...)
}

func newTestHub(welcomeDelay time.Duration) (*ws.Hub, *stubValidator, *recordingSink) {
	v := &stubValidator{token: "good-token"}
	hub := ws.NewHub(v, stubSnapshots{}, welcomeDelay)
	sink := &recordingSink{}
	hub.SetCommandSink(sink)
	return hub, v, sink
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	c, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return c
}

func readMessage(t *testing.T, c *websocket.Conn) ws.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, raw, err := c.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg ws.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

// stubGauge counts connection adds and removes.
type stubGauge struct {
	embedded.Int64UpDownCounter
	mu  sync.Mutex
	val int64
}

var _ metric.Int64UpDownCounter = (*stubGauge)(nil)

func (g *stubGauge) Enabled(context.Context) bool { return true }

func (g *stubGauge) Add(_ context.Context, n int64, _ ...metric.AddOption) {
	g.mu.Lock()
	g.val += n
	g.mu.Unlock()
}

func (g *stubGauge) value() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.val
}

func TestHub_ConnectionGaugeTracksLifecycle(t *testing.T) {
	hub, _, _ := newTestHub(time.Hour)
	gauge := &stubGauge{}
	hub.SetConnectionGauge(gauge)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "good-token")
	readMessage(t, c)

	deadline := time.Now().Add(2 * time.Second)
	for gauge.value() != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("gauge = %d after connect, want 1", gauge.value())
		}
		time.Sleep(5 * time.Millisecond)
	}

	_ = c.Close(websocket.StatusNormalClosure, "")
	for gauge.value() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("gauge = %d after disconnect, want 0", gauge.value())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// blockingSnapshots holds Initial until released, so a broadcast can be
// fired while a connection is still being set up.
type blockingSnapshots struct {
	release chan struct{}
}

func (b blockingSnapshots) Initial(ctx context.Context) (ws.InitialData, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ws.InitialData{}, ctx.Err()
	}
	return stubSnapshots{}.Initial(ctx)
}

func TestHub_BroadcastNeverPrecedesInitial(t *testing.T) {
	v := &stubValidator{token: "good-token"}
	snaps := blockingSnapshots{release: make(chan struct{})}
	hub := ws.NewHub(v, snaps, time.Hour)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "good-token")
	defer c.Close(websocket.StatusNormalClosure, "")

	// The snapshot is still pending: this broadcast must not reach the
	// half-open connection.
	hub.BroadcastEvent(context.Background(), ws.EventUpdate, ws.UpdateData{})
	close(snaps.release)

	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.BroadcastEvent(context.Background(), ws.EventUpdate, ws.UpdateData{Timestamp: time.Now()})

	first := readMessage(t, c)
	if first.Type != ws.EventInitial {
		t.Fatalf("first event = %q, want %q", first.Type, ws.EventInitial)
	}
	second := readMessage(t, c)
	if second.Type != ws.EventUpdate {
		t.Fatalf("second event = %q, want %q", second.Type, ws.EventUpdate)
	}
}

func TestHub_BroadcastWithNoConnections(t *testing.T) {
	hub, _, _ := newTestHub(time.Hour)
	// Must not panic or block.
	hub.BroadcastEvent(context.Background(), ws.EventUpdate, ws.UpdateData{})
	if n := hub.ConnectionCount(); n != 0 {
		t.Errorf("connections = %d, want 0", n)
	}
}

func TestHub_RejectsBadToken(t *testing.T) {
	hub, _, _ := newTestHub(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=wrong"
	c, _, err := websocket.Dial(context.Background(), url, nil)
	if err != nil {
		// Some dial failures surface the close directly.
		if websocket.CloseStatus(err) != ws.CloseUnauthorized {
			t.Fatalf("dial error without close 4001: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err = c.Read(ctx)
	if websocket.CloseStatus(err) != ws.CloseUnauthorized {
		t.Errorf("close status = %v, want 4001", websocket.CloseStatus(err))
	}
	if n := hub.ConnectionCount(); n != 0 {
		t.Errorf("connections = %d, want 0", n)
	}
}

func TestHub_InitialThenWelcome(t *testing.T) {
	hub, _, _ := newTestHub(20 * time.Millisecond)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "good-token")
	defer c.Close(websocket.StatusNormalClosure, "")

	first := readMessage(t, c)
	if first.Type != ws.EventInitial {
		t.Fatalf("first event = %q, want initial", first.Type)
	}
	var init ws.InitialData
	if err := json.Unmarshal(first.Data, &init); err != nil {
		t.Fatalf("unmarshal initial: %v", err)
	}
	if len(init.Agents) != 1 || init.Agents[0].Name != "ChronoCore" {
		t.Errorf("initial agents = %+v", init.Agents)
	}

	second := readMessage(t, c)
	if second.Type != ws.EventVoice {
		t.Fatalf("second event = %q, want voice", second.Type)
	}
	var v ws.VoiceData
	if err := json.Unmarshal(second.Data, &v); err != nil {
		t.Fatalf("unmarshal voice: %v", err)
	}
	if !strings.Contains(v.Text, "NovaLink online") {
		t.Errorf("welcome text = %q", v.Text)
	}
	if v.AgentID != nil {
		t.Errorf("welcome agent id = %v, want nil", v.AgentID)
	}
}

func TestHub_ForwardsCommands(t *testing.T) {
	hub, _, sink := newTestHub(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "good-token")
	defer c.Close(websocket.StatusNormalClosure, "")
	readMessage(t, c) // initial

	payload, _ := json.Marshal(ws.CommandData{AgentID: 1, Command: "proceed"})
	raw, _ := json.Marshal(ws.Message{Type: ws.EventCommand, Data: payload})
	if err := c.Write(context.Background(), websocket.MessageText, raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.commands()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("command never reached the sink")
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := sink.commands()[0]
	if got.AgentID != 1 || got.Command != "proceed" {
		t.Errorf("forwarded command = %+v", got)
	}
}

func TestHub_MalformedMessagesAreDropped(t *testing.T) {
	hub, _, sink := newTestHub(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "good-token")
	defer c.Close(websocket.StatusNormalClosure, "")
	readMessage(t, c) // initial

	if err := c.Write(context.Background(), websocket.MessageText, []byte("{not json")); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	// The connection survives and still forwards well-formed commands.
	payload, _ := json.Marshal(ws.CommandData{AgentID: 2, Command: "status"})
	raw, _ := json.Marshal(ws.Message{Type: ws.EventCommand, Data: payload})
	if err := c.Write(context.Background(), websocket.MessageText, raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.commands()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("command after garbage never reached the sink")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_RevokedSessionIsCutOffMidConnection(t *testing.T) {
	hub, validator, sink := newTestHub(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	c := dial(t, srv, "good-token")
	readMessage(t, c) // initial

	validator.Revoke()

	payload, _ := json.Marshal(ws.CommandData{AgentID: 1, Command: "proceed"})
	raw, _ := json.Marshal(ws.Message{Type: ws.EventCommand, Data: payload})
	if err := c.Write(context.Background(), websocket.MessageText, raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	if websocket.CloseStatus(err) != ws.CloseUnauthorized {
		t.Errorf("close status = %v, want 4001", websocket.CloseStatus(err))
	}
	if len(sink.commands()) != 0 {
		t.Errorf("revoked session still delivered commands: %+v", sink.commands())
	}
}
