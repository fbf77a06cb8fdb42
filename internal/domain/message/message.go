// Package message defines the append-only agent log entry.
package message

import (
	"fmt"
	"time"

	"github.com/Strob0t/NovaLink/internal/domain"
)

// Type categorizes a log entry.
type Type string

const (
	TypeSystem Type = "SYSTEM"
	TypeInfo   Type = "INFO"
	TypeTask   Type = "TASK"
	TypeAgent  Type = "AGENT"
	TypeUser   Type = "USER"
)

// Valid reports whether t is one of the known message types.
func (t Type) Valid() bool {
	switch t {
	case TypeSystem, TypeInfo, TypeTask, TypeAgent, TypeUser:
		return true
	}
	return false
}

// ParseType converts a raw string into a message Type.
func ParseType(raw string) (Type, error) {
	t := Type(raw)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown message type %q", domain.ErrValidation, raw)
	}
	return t, nil
}

// Message is a single log entry for an agent. Entries are never mutated
// or deleted; ordering is by timestamp ascending.
type Message struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agentId"`
	Content   string    `json:"content"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}
