// Package service contains the application services wiring the store,
// simulation, and realtime broadcasting together.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/Strob0t/NovaLink/internal/adapter/ws"
	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
	"github.com/Strob0t/NovaLink/internal/domain/sim"
	"github.com/Strob0t/NovaLink/internal/port/database"
)

// SnapshotService assembles display-enriched snapshots from the store.
// The enrichment never touches durable state: every snapshot is derived
// fresh and discarded after serialization.
type SnapshotService struct {
	store database.Store
	now   func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSnapshotService creates a SnapshotService. A zero seed draws one
// from the clock; tests pass a fixed seed for determinism.
func NewSnapshotService(store database.Store, seed int64) *SnapshotService {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SnapshotService{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Initial returns the snapshot sent once to a new connection. This is the
// read path: metrics jitter but uptime does not advance.
func (s *SnapshotService) Initial(ctx context.Context) (ws.InitialData, error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return ws.InitialData{}, fmt.Errorf("list agents: %w", err)
	}
	types, err := s.store.ListAgentTypes(ctx)
	if err != nil {
		return ws.InitialData{}, fmt.Errorf("list agent types: %w", err)
	}
	alerts, err := s.store.ListAlerts(ctx)
	if err != nil {
		return ws.InitialData{}, fmt.Errorf("list alerts: %w", err)
	}

	snap := s.tick(agents, alerts, false)
	return ws.InitialData{
		Agents:     snap.Agents,
		AgentTypes: types,
		Alerts:     alert.Flatten(snap.Alerts),
	}, nil
}

// Update returns the snapshot broadcast after a mutation. This is the
// broadcast path: uptime advances for live agents.
func (s *SnapshotService) Update(ctx context.Context) (ws.UpdateData, error) {
	agents, err := s.store.ListAgents(ctx)
	if err != nil {
		return ws.UpdateData{}, fmt.Errorf("list agents: %w", err)
	}
	alerts, err := s.store.ListAlerts(ctx)
	if err != nil {
		return ws.UpdateData{}, fmt.Errorf("list alerts: %w", err)
	}

	snap := s.tick(agents, alerts, true)
	return ws.UpdateData{
		Agents:    snap.Agents,
		Alerts:    alert.Flatten(snap.Alerts),
		Timestamp: s.now(),
	}, nil
}

// tick serializes access to the shared rng; sim.Tick itself is pure.
func (s *SnapshotService) tick(agents []agent.Agent, alerts []alert.Alert, advanceUptime bool) sim.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sim.Tick(agents, alerts, s.rng, s.now(), advanceUptime)
}
