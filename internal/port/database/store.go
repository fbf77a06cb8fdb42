// Package database defines the agent store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
	"github.com/Strob0t/NovaLink/internal/domain/command"
	"github.com/Strob0t/NovaLink/internal/domain/message"
	"github.com/Strob0t/NovaLink/internal/domain/session"
)

// Store is the port interface for the durable agent state. All writes are
// atomic single-row mutations; missing ids surface domain.ErrNotFound.
type Store interface {
	// Agent types (static reference data)
	ListAgentTypes(ctx context.Context) ([]agent.Type, error)
	GetAgentType(ctx context.Context, id int64) (*agent.Type, error)
	CreateAgentType(ctx context.Context, t agent.Type) (*agent.Type, error)

	// Agents
	ListAgents(ctx context.Context) ([]agent.Agent, error)
	GetAgent(ctx context.Context, id int64) (*agent.Agent, error)
	CreateAgent(ctx context.Context, a agent.Agent) (*agent.Agent, error)
	UpdateAgentStatus(ctx context.Context, id int64, status agent.Status) (*agent.Agent, error)

	// Messages (append-only, timestamp ascending)
	ListMessages(ctx context.Context, agentID int64) ([]message.Message, error)
	CreateMessage(ctx context.Context, m message.Message) (*message.Message, error)

	// Alerts
	ListAlerts(ctx context.Context) ([]alert.Alert, error)
	ListAgentAlerts(ctx context.Context, agentID int64) ([]alert.Alert, error)
	CreateAlert(ctx context.Context, a alert.Alert) (*alert.Alert, error)
	// ResolveAlert is idempotent: resolving an already-resolved alert
	// returns it unchanged.
	ResolveAlert(ctx context.Context, id int64) (*alert.Alert, error)

	// Commands
	ListCommands(ctx context.Context, agentID int64) ([]command.Command, error)
	CreateCommand(ctx context.Context, c command.Command) (*command.Command, error)
	ExecuteCommand(ctx context.Context, id int64) (*command.Command, error)

	// Sessions (capability tokens exchanged for external identity claims)
	CreateSession(ctx context.Context, s session.Session) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}
