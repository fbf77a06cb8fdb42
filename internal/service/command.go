package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/NovaLink/internal/adapter/otel"
	"github.com/Strob0t/NovaLink/internal/domain"
	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/command"
	"github.com/Strob0t/NovaLink/internal/domain/interpret"
	"github.com/Strob0t/NovaLink/internal/domain/message"
	"github.com/Strob0t/NovaLink/internal/port/database"
)

// CommandService processes user commands: it records them, applies the
// interpreted state transition, and broadcasts the outcome.
type CommandService struct {
	store         database.Store
	publisher     *Publisher
	metrics       *otel.Metrics
	followUpDelay time.Duration

	mu     sync.Mutex
	timers map[int64]*time.Timer // pending follow-ups keyed by agent id
}

// NewCommandService creates a CommandService. metrics may be nil.
func NewCommandService(store database.Store, publisher *Publisher, metrics *otel.Metrics, followUpDelay time.Duration) *CommandService {
	return &CommandService{
		store:         store,
		publisher:     publisher,
		metrics:       metrics,
		followUpDelay: followUpDelay,
		timers:        make(map[int64]*time.Timer),
	}
}

// HandleCommand runs one command to completion: persistence, state
// transition, broadcast, and voice response. Unknown agent ids are a
// silent no-op on the realtime path; the error return is for logging.
func (s *CommandService) HandleCommand(ctx context.Context, agentID int64, commandText string) (*command.Command, error) {
	start := time.Now()

	ag, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Debug("command for unknown agent dropped", "agent_id", agentID)
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}

	cmd, err := s.store.CreateCommand(ctx, command.Command{AgentID: agentID, Command: commandText})
	if err != nil {
		return nil, fmt.Errorf("create command: %w", err)
	}

	act := interpret.Classify(*ag, commandText)

	ctx, span := otel.StartCommandSpan(ctx, agentID, act.Rule)
	defer span.End()

	// Any new command supersedes a pending follow-up for this agent.
	s.cancelFollowUp(agentID)

	if _, err := s.store.CreateMessage(ctx, message.Message{
		AgentID: agentID, Content: commandText, Type: message.TypeUser,
	}); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}
	if _, err := s.store.CreateMessage(ctx, message.Message{
		AgentID: agentID, Content: act.Response, Type: message.TypeAgent,
	}); err != nil {
		return nil, fmt.Errorf("persist agent message: %w", err)
	}

	if act.ResolveAlerts {
		if err := s.resolveAll(ctx, agentID); err != nil {
			return nil, err
		}
	}

	if act.StatusChanged(ag.Status) {
		if _, err := s.store.UpdateAgentStatus(ctx, agentID, act.NewStatus); err != nil {
			return nil, fmt.Errorf("update status: %w", err)
		}
	}

	executed, err := s.store.ExecuteCommand(ctx, cmd.ID)
	if err != nil {
		slog.Warn("mark command executed failed", "command_id", cmd.ID, "error", err)
	} else {
		cmd = executed
	}

	if act.Deferred {
		s.scheduleFollowUp(agentID, commandText)
	}

	s.publisher.PublishUpdate(ctx)
	s.publisher.PublishVoice(ctx, act.Response, &agentID)

	if s.metrics != nil {
		s.metrics.CommandsHandled.Add(ctx, 1)
		s.metrics.CommandDuration.Record(ctx, time.Since(start).Seconds())
	}
	return cmd, nil
}

// resolveAll resolves every currently-unresolved alert for the agent.
// Resolution is idempotent, so racing commands at worst resolve twice.
func (s *CommandService) resolveAll(ctx context.Context, agentID int64) error {
	alerts, err := s.store.ListAgentAlerts(ctx, agentID)
	if err != nil {
		return fmt.Errorf("list agent alerts: %w", err)
	}
	for _, a := range alerts {
		if a.Resolved {
			continue
		}
		if _, err := s.store.ResolveAlert(ctx, a.ID); err != nil {
			return fmt.Errorf("resolve alert %d: %w", a.ID, err)
		}
	}
	return nil
}

// scheduleFollowUp arms the deferred processing -> active reversion. The
// handle is keyed by agent id so a later command can cancel it instead of
// being silently overwritten when the timer fires.
func (s *CommandService) scheduleFollowUp(agentID int64, commandText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[agentID]; ok {
		t.Stop()
	}
	s.timers[agentID] = time.AfterFunc(s.followUpDelay, func() {
		s.completeFollowUp(agentID, commandText)
	})
}

func (s *CommandService) cancelFollowUp(agentID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[agentID]; ok {
		t.Stop()
		delete(s.timers, agentID)
	}
}

// completeFollowUp fires after the delay: the agent reports done, goes
// back to active, and the completion is spoken to all clients.
func (s *CommandService) completeFollowUp(agentID int64, commandText string) {
	s.mu.Lock()
	delete(s.timers, agentID)
	s.mu.Unlock()

	ctx := context.Background()

	resp := interpret.CompletionResponse(commandText)
	if _, err := s.store.CreateMessage(ctx, message.Message{
		AgentID: agentID, Content: resp, Type: message.TypeAgent,
	}); err != nil {
		slog.Error("persist completion message failed", "agent_id", agentID, "error", err)
		return
	}
	if _, err := s.store.UpdateAgentStatus(ctx, agentID, agent.StatusActive); err != nil {
		slog.Error("follow-up status update failed", "agent_id", agentID, "error", err)
		return
	}

	s.publisher.PublishUpdate(ctx)
	s.publisher.PublishVoice(ctx, resp, &agentID)
}

// Close cancels all pending follow-ups.
func (s *CommandService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
