package service

import (
	"context"
	"log/slog"

	"github.com/Strob0t/NovaLink/internal/adapter/otel"
	"github.com/Strob0t/NovaLink/internal/adapter/ws"
	"github.com/Strob0t/NovaLink/internal/port/broadcast"
)

// Publisher pushes snapshot updates and voice events to all live
// connections. It is shared by the command path and the mutating HTTP
// endpoints so every state change broadcasts the same way.
type Publisher struct {
	snapshots *SnapshotService
	hub       broadcast.Broadcaster
	metrics   *otel.Metrics
}

// NewPublisher creates a Publisher. metrics may be nil.
func NewPublisher(snapshots *SnapshotService, hub broadcast.Broadcaster, metrics *otel.Metrics) *Publisher {
	return &Publisher{snapshots: snapshots, hub: hub, metrics: metrics}
}

// PublishUpdate broadcasts a fresh simulated snapshot. A store failure is
// transient IO: logged and swallowed, the next mutation broadcasts again.
func (p *Publisher) PublishUpdate(ctx context.Context) {
	ctx, span := otel.StartBroadcastSpan(ctx, ws.EventUpdate)
	defer span.End()

	upd, err := p.snapshots.Update(ctx)
	if err != nil {
		slog.Error("snapshot for broadcast failed", "error", err)
		return
	}

	p.hub.BroadcastEvent(ctx, ws.EventUpdate, upd)
	if p.metrics != nil {
		p.metrics.BroadcastsSent.Add(ctx, 1)
	}
}

// PublishVoice broadcasts a voice event. agentID is nil for system-level
// messages.
func (p *Publisher) PublishVoice(ctx context.Context, text string, agentID *int64) {
	p.hub.BroadcastEvent(ctx, ws.EventVoice, ws.VoiceData{Text: text, AgentID: agentID})
	if p.metrics != nil {
		p.metrics.VoiceEvents.Add(ctx, 1)
	}
}
