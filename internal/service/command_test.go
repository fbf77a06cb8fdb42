package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/NovaLink/internal/adapter/memory"
	"github.com/Strob0t/NovaLink/internal/adapter/ws"
	"github.com/Strob0t/NovaLink/internal/domain"
	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
	"github.com/Strob0t/NovaLink/internal/domain/message"
	"github.com/Strob0t/NovaLink/internal/port/broadcast"
	"github.com/Strob0t/NovaLink/internal/service"
)

// recordingBroadcaster captures broadcast events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	Type    string
	Payload any
}

var _ broadcast.Broadcaster = (*recordingBroadcaster)(nil)

func (b *recordingBroadcaster) BroadcastEvent(_ context.Context, eventType string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{Type: eventType, Payload: payload})
}

func (b *recordingBroadcaster) byType(eventType string) []recordedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []recordedEvent
	for _, e := range b.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	store    *memory.Store
	hub      *recordingBroadcaster
	commands *service.CommandService
	agent    *agent.Agent
	alert    *alert.Alert
}

func newFixture(t *testing.T, followUpDelay time.Duration) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	typ, err := store.CreateAgentType(ctx, agent.Type{Name: "Time Manager", Icon: "clock", Color: "#FF45E9"})
	if err != nil {
		t.Fatalf("create type: %v", err)
	}
	a, err := store.CreateAgent(ctx, agent.Agent{
		Name: "ChronoCore", ProjectID: "TM-001", TypeID: typ.ID,
		Status: agent.StatusAwaitingInput, Memory: 384, CPU: 12, Uptime: 12240,
	})
	if err != nil {
		t.Fatalf("create agent: %v", err)
	}
	al, err := store.CreateAlert(ctx, alert.Alert{AgentID: a.ID, Message: "awaiting input"})
	if err != nil {
		t.Fatalf("create alert: %v", err)
	}

	hub := &recordingBroadcaster{}
	snapshots := service.NewSnapshotService(store, 42)
	publisher := service.NewPublisher(snapshots, hub, nil)
	commands := service.NewCommandService(store, publisher, nil, followUpDelay)
	t.Cleanup(commands.Close)

	return &fixture{store: store, hub: hub, commands: commands, agent: a, alert: al}
}

func (f *fixture) messages(t *testing.T) []message.Message {
	t.Helper()
	msgs, err := f.store.ListMessages(context.Background(), f.agent.ID)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	return msgs
}

func TestHandleCommand_ProceedResolvesAndActivates(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	cmd, err := f.commands.HandleCommand(ctx, f.agent.ID, "proceed with the deployment")
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if !cmd.Executed {
		t.Error("command not marked executed")
	}

	a, _ := f.store.GetAgent(ctx, f.agent.ID)
	if a.Status != agent.StatusActive {
		t.Errorf("status = %q, want active", a.Status)
	}

	al, _ := f.store.ListAgentAlerts(ctx, f.agent.ID)
	for _, x := range al {
		if !x.Resolved {
			t.Errorf("alert %d still unresolved", x.ID)
		}
	}

	msgs := f.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2 (user + agent)", len(msgs))
	}
	if msgs[0].Type != message.TypeUser || msgs[0].Content != "proceed with the deployment" {
		t.Errorf("user message = %+v", msgs[0])
	}
	if msgs[1].Type != message.TypeAgent || !strings.Contains(msgs[1].Content, "Proceeding with deployment") {
		t.Errorf("agent message = %+v", msgs[1])
	}

	if n := len(f.hub.byType(ws.EventUpdate)); n != 1 {
		t.Errorf("update broadcasts = %d, want 1", n)
	}
	voices := f.hub.byType(ws.EventVoice)
	if len(voices) != 1 {
		t.Fatalf("voice broadcasts = %d, want 1", len(voices))
	}
	v := voices[0].Payload.(ws.VoiceData)
	if !strings.Contains(v.Text, "Proceeding with deployment") {
		t.Errorf("voice text = %q", v.Text)
	}
	if v.AgentID == nil || *v.AgentID != f.agent.ID {
		t.Errorf("voice agent id = %v, want %d", v.AgentID, f.agent.ID)
	}
}

func TestHandleCommand_RescheduleIdlesAndResolves(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	if _, err := f.commands.HandleCommand(ctx, f.agent.ID, "reschedule the deployment"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	a, _ := f.store.GetAgent(ctx, f.agent.ID)
	if a.Status != agent.StatusIdle {
		t.Errorf("status = %q, want idle", a.Status)
	}

	al, _ := f.store.ListAgentAlerts(ctx, f.agent.ID)
	for _, x := range al {
		if !x.Resolved {
			t.Errorf("alert %d still unresolved", x.ID)
		}
	}

	msgs := f.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "Rescheduling deployment") {
		t.Errorf("agent message = %q", msgs[1].Content)
	}
}

func TestHandleCommand_StatusReportChangesNothing(t *testing.T) {
	f := newFixture(t, time.Second)
	ctx := context.Background()

	if _, err := f.commands.HandleCommand(ctx, f.agent.ID, "status"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	a, _ := f.store.GetAgent(ctx, f.agent.ID)
	if a.Status != agent.StatusAwaitingInput {
		t.Errorf("status = %q, want awaiting_input", a.Status)
	}
	al, _ := f.store.ListAgentAlerts(ctx, f.agent.ID)
	if len(al) != 1 || al[0].Resolved {
		t.Errorf("alert state changed: %+v", al)
	}

	msgs := f.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
	if !strings.Contains(msgs[1].Content, "Memory usage") {
		t.Errorf("status report = %q", msgs[1].Content)
	}
}

func TestHandleCommand_DeferredCompletion(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	ctx := context.Background()

	if _, err := f.commands.HandleCommand(ctx, f.agent.ID, "deploy the new build"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	a, _ := f.store.GetAgent(ctx, f.agent.ID)
	if a.Status != agent.StatusProcessing {
		t.Fatalf("status = %q, want processing", a.Status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		a, _ = f.store.GetAgent(ctx, f.agent.ID)
		if a.Status == agent.StatusActive {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("agent never reverted to active, status = %q", a.Status)
		}
		time.Sleep(10 * time.Millisecond)
	}

	msgs := f.messages(t)
	last := msgs[len(msgs)-1]
	if last.Type != message.TypeAgent || !strings.Contains(last.Content, "Task complete: deploy the new build") {
		t.Errorf("completion message = %+v", last)
	}

	voices := f.hub.byType(ws.EventVoice)
	found := false
	for _, v := range voices {
		if strings.Contains(v.Payload.(ws.VoiceData).Text, "Task complete") {
			found = true
		}
	}
	if !found {
		t.Error("no completion voice event broadcast")
	}
}

func TestHandleCommand_NewCommandCancelsPendingFollowUp(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond)
	ctx := context.Background()

	if _, err := f.commands.HandleCommand(ctx, f.agent.ID, "deploy the new build"); err != nil {
		t.Fatalf("handle deferred: %v", err)
	}
	if _, err := f.commands.HandleCommand(ctx, f.agent.ID, "stop"); err != nil {
		t.Fatalf("handle stop: %v", err)
	}

	time.Sleep(200 * time.Millisecond)

	a, _ := f.store.GetAgent(ctx, f.agent.ID)
	if a.Status != agent.StatusIdle {
		t.Errorf("status = %q, want idle (follow-up should have been cancelled)", a.Status)
	}
	for _, m := range f.messages(t) {
		if strings.Contains(m.Content, "Task complete") {
			t.Errorf("cancelled follow-up still produced completion message: %q", m.Content)
		}
	}
}

func TestHandleCommand_UnknownAgent(t *testing.T) {
	f := newFixture(t, time.Second)

	_, err := f.commands.HandleCommand(context.Background(), 999, "proceed")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
	if len(f.hub.byType(ws.EventUpdate)) != 0 {
		t.Error("unknown agent still triggered a broadcast")
	}
	cmds, _ := f.store.ListCommands(context.Background(), 999)
	if len(cmds) != 0 {
		t.Errorf("command persisted for unknown agent: %+v", cmds)
	}
}

func TestPublisher_UpdateCarriesSnapshot(t *testing.T) {
	f := newFixture(t, time.Second)

	if _, err := f.commands.HandleCommand(context.Background(), f.agent.ID, "status"); err != nil {
		t.Fatalf("handle: %v", err)
	}

	updates := f.hub.byType(ws.EventUpdate)
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	upd, ok := updates[0].Payload.(ws.UpdateData)
	if !ok {
		t.Fatalf("payload type %T", updates[0].Payload)
	}
	if len(upd.Agents) != 1 {
		t.Errorf("snapshot agents = %d, want 1", len(upd.Agents))
	}
	if upd.Timestamp.IsZero() {
		t.Error("snapshot timestamp is zero")
	}
	// The wire shape stays camelCase.
	raw, err := json.Marshal(upd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"agents"`) || !strings.Contains(string(raw), `"projectId"`) {
		t.Errorf("unexpected wire shape: %s", raw)
	}
}
