// Package nats implements the message queue port and an event relay that
// keeps multiple server instances broadcasting the same dashboard events.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/Strob0t/NovaLink/internal/port/broadcast"
	"github.com/Strob0t/NovaLink/internal/port/messagequeue"
)

// subjectPrefix namespaces all relayed dashboard events.
const subjectPrefix = "novalink.events."

// Queue implements messagequeue.Queue using core NATS. Dashboard events
// are ephemeral snapshots; replay after reconnect would only deliver
// stale state, so JetStream persistence is deliberately not used.
type Queue struct {
	nc *nats.Conn
}

// Connect establishes a connection to NATS.
func Connect(url string) (*Queue, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	slog.Info("nats connected", "url", url)
	return &Queue{nc: nc}, nil
}

// Publish sends a message to the given subject.
func (q *Queue) Publish(_ context.Context, subject string, data []byte) error {
	if err := q.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for messages on the given subject.
func (q *Queue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	sub, err := q.nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(msg.Subject, msg.Data); err != nil {
			slog.Error("relay handler failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// Close shuts down the NATS connection.
func (q *Queue) Close() error {
	q.nc.Close()
	return nil
}

// envelope is the relayed wire form of a broadcast event.
type envelope struct {
	Origin    string          `json:"origin"`
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
}

// Relay is a broadcast.Broadcaster that delivers events to the local hub
// and mirrors them to every other server instance through the queue.
type Relay struct {
	queue    messagequeue.Queue
	local    broadcast.Broadcaster
	instance string
	stop     func()
}

// NewRelay wires the queue in front of the local broadcaster and starts
// listening for events published by other instances.
func NewRelay(ctx context.Context, queue messagequeue.Queue, local broadcast.Broadcaster) (*Relay, error) {
	r := &Relay{
		queue:    queue,
		local:    local,
		instance: uuid.NewString(),
	}

	stop, err := queue.Subscribe(ctx, subjectPrefix+">", r.handle)
	if err != nil {
		return nil, fmt.Errorf("relay subscribe: %w", err)
	}
	r.stop = stop
	return r, nil
}

// BroadcastEvent fans the event out locally and publishes it for peers.
// A relay publish failure is transient IO: logged, never retried, and
// never allowed to block the local fan-out.
func (r *Relay) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	r.local.BroadcastEvent(ctx, eventType, payload)

	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("relay marshal failed", "type", eventType, "error", err)
		return
	}
	env, err := json.Marshal(envelope{Origin: r.instance, EventType: eventType, Payload: raw})
	if err != nil {
		slog.Error("relay envelope marshal failed", "type", eventType, "error", err)
		return
	}
	if err := r.queue.Publish(ctx, subjectPrefix+eventType, env); err != nil {
		slog.Error("relay publish failed", "type", eventType, "error", err)
	}
}

// handle re-broadcasts events that originated on other instances.
func (r *Relay) handle(_ string, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("relay decode: %w", err)
	}
	if env.Origin == r.instance {
		return nil
	}
	r.local.BroadcastEvent(context.Background(), env.EventType, json.RawMessage(env.Payload))
	return nil
}

// Close stops the relay subscription.
func (r *Relay) Close() {
	if r.stop != nil {
		r.stop()
	}
}
