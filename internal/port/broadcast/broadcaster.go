// Package broadcast defines the port for pushing real-time events to
// connected dashboard clients.
package broadcast

import "context"

// Broadcaster fans a typed event out to all live connections. Delivery is
// best-effort, at-most-once per connection; a failed send drops that
// connection and never blocks the others.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
