// Package messagequeue defines the port for relaying events between
// server instances.
package messagequeue

import "context"

// Handler processes a single message from a subject.
type Handler func(subject string, data []byte) error

// Queue publishes and subscribes to raw messages on named subjects.
type Queue interface {
	Publish(ctx context.Context, subject string, data []byte) error
	// Subscribe registers a handler and returns a stop function.
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)
	Close() error
}
