package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
	"github.com/Strob0t/NovaLink/internal/domain/message"
	"github.com/Strob0t/NovaLink/internal/port/database"
)

// Seed populates an empty store with the demo fleet. A store that already
// has agent types is left untouched, so restarts are safe.
func Seed(ctx context.Context, store database.Store) error {
	existing, err := store.ListAgentTypes(ctx)
	if err != nil {
		return fmt.Errorf("check agent types: %w", err)
	}
	if len(existing) > 0 {
		slog.Debug("store already seeded", "agent_types", len(existing))
		return nil
	}

	types := []agent.Type{
		{Name: "Time Manager", Icon: "clock", Color: "#FF45E9"},
		{Name: "Data Processor", Icon: "database", Color: "#4a8cff"},
		{Name: "Vision System", Icon: "eye", Color: "#b366ff"},
		{Name: "Task Scheduler", Icon: "calendar", Color: "#aaaaaa"},
		{Name: "AI Assistant", Icon: "robot", Color: "#ffcc00"},
		{Name: "Pipeline Manager", Icon: "rocket", Color: "#0CFFE1"},
	}
	typeIDs := make([]int64, len(types))
	for i, t := range types {
		created, err := store.CreateAgentType(ctx, t)
		if err != nil {
			return fmt.Errorf("seed agent type %q: %w", t.Name, err)
		}
		typeIDs[i] = created.ID
	}

	now := time.Now().UTC()
	agents := []agent.Agent{
		{Name: "ChronoCore", ProjectID: "AstroPipeline", TypeID: typeIDs[0], Status: agent.StatusAwaitingInput, Memory: 384, CPU: 12, Uptime: 12240, LastActive: now},
		{Name: "AstroPipeline", ProjectID: "StarfleetOps", TypeID: typeIDs[5], Status: agent.StatusActive, Memory: 256, CPU: 8, Uptime: 7200, LastActive: now},
		{Name: "DataSynth", ProjectID: "MetricAnalyzer", TypeID: typeIDs[1], Status: agent.StatusProcessing, Memory: 512, CPU: 24, Uptime: 3600, LastActive: now},
		{Name: "VisionCore", ProjectID: "ImageClassifier", TypeID: typeIDs[2], Status: agent.StatusActive, Memory: 768, CPU: 32, Uptime: 1800, LastActive: now},
		{Name: "XenoAI", ProjectID: "AITrainer", TypeID: typeIDs[4], Status: agent.StatusIdle, Memory: 192, CPU: 4, Uptime: 9000, LastActive: now},
		{Name: "QuantumScheduler", ProjectID: "QuantumOps", TypeID: typeIDs[3], Status: agent.StatusStopped, Memory: 0, CPU: 0, Uptime: 0, LastActive: now.Add(-time.Hour)},
	}
	agentIDs := make([]int64, len(agents))
	for i, a := range agents {
		created, err := store.CreateAgent(ctx, a)
		if err != nil {
			return fmt.Errorf("seed agent %q: %w", a.Name, err)
		}
		agentIDs[i] = created.ID
	}

	chronoCore := agentIDs[0]
	msgs := []message.Message{
		{AgentID: chronoCore, Type: message.TypeSystem, Content: "ChronoCore agent initialized at 14:32:05", Timestamp: now.Add(-18 * time.Minute)},
		{AgentID: chronoCore, Type: message.TypeInfo, Content: "Connected to AstroPipeline project repo", Timestamp: now.Add(-17 * time.Minute)},
		{AgentID: chronoCore, Type: message.TypeTask, Content: "Scheduled deployment preparation started", Timestamp: now.Add(-16 * time.Minute)},
		{AgentID: chronoCore, Type: message.TypeAgent, Content: "I've analyzed the deployment schedule and found potential conflicts with existing services.", Timestamp: now.Add(-15 * time.Minute)},
		{AgentID: chronoCore, Type: message.TypeAgent, Content: "Would you like me to proceed with the conflicting deployment or reschedule for a later time?", Timestamp: now},
	}
	for _, m := range msgs {
		if _, err := store.CreateMessage(ctx, m); err != nil {
			return fmt.Errorf("seed message: %w", err)
		}
	}

	if _, err := store.CreateAlert(ctx, alert.Alert{
		AgentID: chronoCore,
		Message: "Agent is awaiting your input about the deployment schedule.",
	}); err != nil {
		return fmt.Errorf("seed alert: %w", err)
	}

	slog.Info("store seeded", "agent_types", len(types), "agents", len(agents))
	return nil
}
