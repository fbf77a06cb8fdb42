// Package memory implements the database store port with in-process maps.
// It backs the dev-mode server and the unit tests; semantics mirror the
// postgres adapter row for row.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Strob0t/NovaLink/internal/domain"
	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
	"github.com/Strob0t/NovaLink/internal/domain/command"
	"github.com/Strob0t/NovaLink/internal/domain/message"
	"github.com/Strob0t/NovaLink/internal/domain/session"
)

// Store is a mutex-guarded in-memory implementation of database.Store.
type Store struct {
	mu sync.RWMutex

	agentTypes map[int64]agent.Type
	agents     map[int64]agent.Agent
	messages   map[int64]message.Message
	alerts     map[int64]alert.Alert
	commands   map[int64]command.Command
	sessions   map[string]session.Session

	nextAgentTypeID int64
	nextAgentID     int64
	nextMessageID   int64
	nextAlertID     int64
	nextCommandID   int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		agentTypes:      make(map[int64]agent.Type),
		agents:          make(map[int64]agent.Agent),
		messages:        make(map[int64]message.Message),
		alerts:          make(map[int64]alert.Alert),
		commands:        make(map[int64]command.Command),
		sessions:        make(map[string]session.Session),
		nextAgentTypeID: 1,
		nextAgentID:     1,
		nextMessageID:   1,
		nextAlertID:     1,
		nextCommandID:   1,
	}
}

// --- Agent types ---

func (s *Store) ListAgentTypes(_ context.Context) ([]agent.Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]agent.Type, 0, len(s.agentTypes))
	for _, t := range s.agentTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetAgentType(_ context.Context, id int64) (*agent.Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.agentTypes[id]
	if !ok {
		return nil, fmt.Errorf("get agent type %d: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (s *Store) CreateAgentType(_ context.Context, t agent.Type) (*agent.Type, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = s.nextAgentTypeID
	s.nextAgentTypeID++
	s.agentTypes[t.ID] = t
	return &t, nil
}

// --- Agents ---

func (s *Store) ListAgents(_ context.Context) ([]agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]agent.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetAgent(_ context.Context, id int64) (*agent.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("get agent %d: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (s *Store) CreateAgent(_ context.Context, a agent.Agent) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.nextAgentID
	s.nextAgentID++
	s.agents[a.ID] = a
	return &a, nil
}

func (s *Store) UpdateAgentStatus(_ context.Context, id int64, status agent.Status) (*agent.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[id]
	if !ok {
		return nil, fmt.Errorf("update agent %d status: %w", id, domain.ErrNotFound)
	}
	a.Status = status
	a.LastActive = time.Now().UTC()
	s.agents[id] = a
	return &a, nil
}

// --- Messages ---

func (s *Store) ListMessages(_ context.Context, agentID int64) ([]message.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []message.Message
	for _, m := range s.messages {
		if m.AgentID == agentID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (s *Store) CreateMessage(_ context.Context, m message.Message) (*message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = s.nextMessageID
	s.nextMessageID++
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	s.messages[m.ID] = m
	return &m, nil
}

// --- Alerts ---

func (s *Store) ListAlerts(_ context.Context) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]alert.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListAgentAlerts(_ context.Context, agentID int64) ([]alert.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []alert.Alert
	for _, a := range s.alerts {
		if a.AgentID == agentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateAlert(_ context.Context, a alert.Alert) (*alert.Alert, error) {
	// Transient alerts carry negative ids and must never be persisted.
	if a.ID < 0 {
		return nil, fmt.Errorf("%w: refusing to persist transient alert", domain.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a.ID = s.nextAlertID
	s.nextAlertID++
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now().UTC()
	}
	s.alerts[a.ID] = a
	return &a, nil
}

func (s *Store) ResolveAlert(_ context.Context, id int64) (*alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.alerts[id]
	if !ok {
		return nil, fmt.Errorf("resolve alert %d: %w", id, domain.ErrNotFound)
	}
	a.Resolved = true
	s.alerts[id] = a
	return &a, nil
}

// --- Commands ---

func (s *Store) ListCommands(_ context.Context, agentID int64) ([]command.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []command.Command
	for _, c := range s.commands {
		if c.AgentID == agentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) CreateCommand(_ context.Context, c command.Command) (*command.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.nextCommandID
	s.nextCommandID++
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	s.commands[c.ID] = c
	return &c, nil
}

func (s *Store) ExecuteCommand(_ context.Context, id int64) (*command.Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.commands[id]
	if !ok {
		return nil, fmt.Errorf("execute command %d: %w", id, domain.ErrNotFound)
	}
	c.Executed = true
	s.commands[id] = c
	return &c, nil
}

// --- Sessions ---

func (s *Store) CreateSession(_ context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("get session: %w", domain.ErrNotFound)
	}
	return &sess, nil
}

func (s *Store) DeleteExpiredSessions(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var removed int64
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}
