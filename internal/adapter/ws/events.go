package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
)

// Event type constants for WebSocket messages.
const (
	EventInitial = "initial"
	EventUpdate  = "update"
	EventVoice   = "voice"
	EventCommand = "command"
)

// InitialData is sent once per new connection.
type InitialData struct {
	Agents     []agent.Agent `json:"agents"`
	AgentTypes []agent.Type  `json:"agentTypes"`
	Alerts     []alert.Alert `json:"alerts"`
}

// UpdateData carries the full simulated snapshot after any mutation.
type UpdateData struct {
	Agents    []agent.Agent `json:"agents"`
	Alerts    []alert.Alert `json:"alerts"`
	Timestamp time.Time     `json:"timestamp"`
}

// VoiceData is an out-of-band notification intended for client speech
// synthesis. AgentID is null for system-level messages.
type VoiceData struct {
	Text    string `json:"text"`
	AgentID *int64 `json:"agentId"`
}

// CommandData is the client -> server command payload.
type CommandData struct {
	AgentID int64  `json:"agentId"`
	Command string `json:"command"`
}

// BroadcastEvent marshals a typed event payload and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type: eventType,
		Data: json.RawMessage(data),
	})
}
