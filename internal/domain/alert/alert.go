// Package alert defines agent alerts, both persisted and transient.
package alert

import "time"

// Alert is an outstanding condition on an agent requiring user attention.
// Resolved transitions false -> true exactly once; resolving an already
// resolved alert is a no-op.
type Alert struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agentId"`
	Message   string    `json:"message"`
	Resolved  bool      `json:"resolved"`
	Timestamp time.Time `json:"timestamp"`
}

// Source distinguishes durable alerts from simulation-only ones.
type Source int

const (
	// SourceStore marks an alert backed by a store row.
	SourceStore Source = iota
	// SourceSimulated marks a transient alert synthesized for a single
	// snapshot. It must never be written back to the store.
	SourceSimulated
)

// Tagged pairs an Alert with its provenance so storage code paths can
// refuse transient records instead of silently persisting them.
type Tagged struct {
	Source Source
	Alert  Alert
}

// Persisted tags a store-backed alert.
func Persisted(a Alert) Tagged {
	return Tagged{Source: SourceStore, Alert: a}
}

// Transient tags a simulation-only alert.
func Transient(a Alert) Tagged {
	return Tagged{Source: SourceSimulated, Alert: a}
}

// Persistable reports whether the alert may be written to durable storage.
func (t Tagged) Persistable() bool {
	return t.Source == SourceStore
}

// Flatten strips tags for the outgoing wire snapshot, where persisted and
// transient alerts share one shape.
func Flatten(tagged []Tagged) []Alert {
	if len(tagged) == 0 {
		return nil
	}
	out := make([]Alert, len(tagged))
	for i, t := range tagged {
		out[i] = t.Alert
	}
	return out
}

// Unresolved reports whether any alert in the tagged set targets the
// given agent and is still open.
func Unresolved(tagged []Tagged, agentID int64) bool {
	for _, t := range tagged {
		if t.Alert.AgentID == agentID && !t.Alert.Resolved {
			return true
		}
	}
	return false
}
