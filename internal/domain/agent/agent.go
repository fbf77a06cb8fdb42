// Package agent defines the monitored Agent entity and its type catalog.
package agent

import (
	"fmt"
	"time"

	"github.com/Strob0t/NovaLink/internal/domain"
)

// Status represents the current state of an agent.
type Status string

const (
	StatusActive        Status = "active"
	StatusIdle          Status = "idle"
	StatusProcessing    Status = "processing"
	StatusAwaitingInput Status = "awaiting_input"
	StatusStopped       Status = "stopped"
	StatusError         Status = "error"
)

// Halted reports whether the agent is in a terminal state. Halted agents
// never have their metrics or status touched by the simulation.
func (s Status) Halted() bool {
	return s == StatusStopped || s == StatusError
}

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusIdle, StatusProcessing, StatusAwaitingInput, StatusStopped, StatusError:
		return true
	}
	return false
}

// ParseStatus converts a raw string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown agent status %q", domain.ErrValidation, raw)
	}
	return s, nil
}

// Type is static reference data describing a kind of agent. Immutable
// after creation.
type Type struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

// Agent represents a monitored background worker. JSON field names match
// the dashboard wire format.
type Agent struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	ProjectID  string    `json:"projectId"`
	TypeID     int64     `json:"typeId"`
	Status     Status    `json:"status"`
	Memory     int       `json:"memory"`
	CPU        int       `json:"cpu"`
	Uptime     int       `json:"uptime"` // seconds
	LastActive time.Time `json:"lastActive"`
}
