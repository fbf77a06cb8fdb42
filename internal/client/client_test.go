package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/Strob0t/NovaLink/internal/adapter/ws"
	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
)

type recordingSynth struct {
	mu     sync.Mutex
	spoken []string
}

func (s *recordingSynth) Speak(text string, _ *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
}

func (s *recordingSynth) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func event(t *testing.T, eventType string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(ws.Message{Type: eventType, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestHandleEvent_InitialPopulatesSnapshot(t *testing.T) {
	c := New(Options{ServerURL: "http://x", Token: "t"})

	c.handleEvent(event(t, ws.EventInitial, ws.InitialData{
		Agents:     []agent.Agent{{ID: 1, Name: "ChronoCore"}},
		AgentTypes: []agent.Type{{ID: 1, Name: "Time Manager"}},
		Alerts:     []alert.Alert{{ID: 1, AgentID: 1, Message: "open"}},
	}))

	snap := c.Snapshot()
	if len(snap.Agents) != 1 || snap.Agents[0].Name != "ChronoCore" {
		t.Errorf("agents = %+v", snap.Agents)
	}
	if len(snap.AgentTypes) != 1 || len(snap.Alerts) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not set")
	}
}

func TestHandleEvent_UpdateReplacesWholesale(t *testing.T) {
	c := New(Options{ServerURL: "http://x", Token: "t"})

	c.handleEvent(event(t, ws.EventInitial, ws.InitialData{
		Agents:     []agent.Agent{{ID: 1}, {ID: 2}},
		AgentTypes: []agent.Type{{ID: 1, Name: "Time Manager"}},
		Alerts:     []alert.Alert{{ID: 1}},
	}))
	c.handleEvent(event(t, ws.EventUpdate, ws.UpdateData{
		Agents:    []agent.Agent{{ID: 3, Name: "Solo"}},
		Alerts:    nil,
		Timestamp: time.Unix(1700000000, 0),
	}))

	snap := c.Snapshot()
	if len(snap.Agents) != 1 || snap.Agents[0].ID != 3 {
		t.Errorf("agents not replaced wholesale: %+v", snap.Agents)
	}
	if len(snap.Alerts) != 0 {
		t.Errorf("alerts not replaced: %+v", snap.Alerts)
	}
	// Agent types only arrive on initial and survive updates.
	if len(snap.AgentTypes) != 1 {
		t.Errorf("agent types lost on update: %+v", snap.AgentTypes)
	}
	if !snap.UpdatedAt.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("UpdatedAt = %v", snap.UpdatedAt)
	}
}

func TestHandleEvent_VoiceSpeaksAndSetsFlag(t *testing.T) {
	synth := &recordingSynth{}
	c := New(Options{ServerURL: "http://x", Token: "t", Synth: synth})

	id := int64(1)
	c.handleEvent(event(t, ws.EventVoice, ws.VoiceData{Text: "NovaLink online.", AgentID: &id}))

	got := synth.texts()
	if len(got) != 1 || got[0] != "NovaLink online." {
		t.Errorf("spoken = %v", got)
	}
	if !c.Speaking() {
		t.Error("speaking flag not set")
	}
}

func TestHandleEvent_MalformedEventsAreDropped(t *testing.T) {
	c := New(Options{ServerURL: "http://x", Token: "t"})
	c.handleEvent(event(t, ws.EventInitial, ws.InitialData{
		Agents: []agent.Agent{{ID: 1}},
	}))

	c.handleEvent([]byte("{not json"))
	c.handleEvent(event(t, "mystery", struct{}{}))
	raw, _ := json.Marshal(ws.Message{Type: ws.EventUpdate, Data: json.RawMessage(`"scalar"`)})
	c.handleEvent(raw)

	// The snapshot from before the garbage survives.
	if snap := c.Snapshot(); len(snap.Agents) != 1 {
		t.Errorf("snapshot damaged by malformed events: %+v", snap)
	}
}

func TestOnChange_FiresOnEveryReplace(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := New(Options{
		ServerURL: "http://x", Token: "t",
		OnChange: func(Snapshot) {
			mu.Lock()
			calls++
			mu.Unlock()
		},
	})

	c.handleEvent(event(t, ws.EventInitial, ws.InitialData{}))
	c.handleEvent(event(t, ws.EventUpdate, ws.UpdateData{}))

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("onChange calls = %d, want 2", calls)
	}
}

func TestSendCommand_WithoutConnection(t *testing.T) {
	c := New(Options{ServerURL: "http://x", Token: "t"})
	err := c.SendCommand(context.Background(), 1, "proceed")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("error = %v, want ErrNotConnected", err)
	}
}

func TestWSURL(t *testing.T) {
	tests := []struct {
		server string
		want   string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws?token=tok"},
		{"https://nova.example.com", "wss://nova.example.com/ws?token=tok"},
	}
	for _, tt := range tests {
		c := New(Options{ServerURL: tt.server, Token: "tok"})
		if got := c.wsURL(); got != tt.want {
			t.Errorf("wsURL(%q) = %q, want %q", tt.server, got, tt.want)
		}
	}
}

func TestRun_StopsOnUnauthorized(t *testing.T) {
	// Every endpoint rejects the session: the socket closes with 4001
	// and the pollers see 401. Either path must end Run with
	// ErrUnauthorized and no reconnect loop.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ws") {
			sock, err := websocket.Accept(w, r, nil)
			if err != nil {
				return
			}
			_ = sock.Close(ws.CloseUnauthorized, "unauthorized")
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Options{ServerURL: srv.URL, Token: "revoked"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := c.Run(ctx)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Run = %v, want ErrUnauthorized", err)
	}
	if c.State() != StateClosedUnauthorized {
		t.Errorf("state = %q, want %q", c.State(), StateClosedUnauthorized)
	}
}
