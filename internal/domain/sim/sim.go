// Package sim enriches a stored agent/alert snapshot with simulated live
// telemetry. It is a pure function of its inputs: callers supply the
// randomness, the clock, and the stored state, and receive a derived
// snapshot that must never be written back to the store.
package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/alert"
)

const (
	// Metric jitter bounds: memory and cpu are scaled by a factor drawn
	// uniformly from [jitterLow, jitterHigh].
	jitterLow  = 0.9
	jitterHigh = 1.1

	// StatusFlipProbability is the per-agent chance of a status redraw
	// on a tick.
	StatusFlipProbability = 0.1

	// ConflictAlertProbability is the chance that an agent redrawn into
	// awaiting_input also raises a transient conflict alert.
	ConflictAlertProbability = 0.3

	// maxUptimeStep bounds the per-tick uptime advance in seconds.
	maxUptimeStep = 60
)

// redrawStatuses are the states an agent can flip into. Halted states are
// never drawn.
var redrawStatuses = [...]agent.Status{
	agent.StatusActive,
	agent.StatusProcessing,
	agent.StatusAwaitingInput,
	agent.StatusIdle,
}

// conflictCatalog holds the messages used for transient alerts.
var conflictCatalog = [...]string{
	"Deployment window overlaps with a scheduled maintenance task.",
	"Detected resource contention with a sibling pipeline.",
	"Upstream dependency reported a version conflict.",
	"Agent is awaiting your input about the deployment schedule.",
	"Scheduled task collides with an active data migration.",
}

// Snapshot is the enriched output of a tick.
type Snapshot struct {
	Agents []agent.Agent
	Alerts []alert.Tagged
}

// Tick produces a display-enriched copy of the given agents and alerts.
//
// Agents with a halted status pass through untouched. For everyone else,
// memory and cpu jitter within ±10% and status may redraw. When
// advanceUptime is set (the broadcast path), uptime also moves forward by
// up to a minute. A redraw into awaiting_input may synthesize a transient
// alert when the agent has no unresolved alert of either provenance;
// transient alerts carry negative ids so they can never collide with
// store rows.
func Tick(agents []agent.Agent, alerts []alert.Alert, rng *rand.Rand, now time.Time, advanceUptime bool) Snapshot {
	out := Snapshot{
		Agents: make([]agent.Agent, len(agents)),
		Alerts: make([]alert.Tagged, 0, len(alerts)),
	}
	for _, a := range alerts {
		out.Alerts = append(out.Alerts, alert.Persisted(a))
	}

	nextVirtualID := int64(-1)

	for i, a := range agents {
		if a.Status.Halted() {
			out.Agents[i] = a
			continue
		}

		a.Memory = jitter(a.Memory, rng)
		a.CPU = jitter(a.CPU, rng)

		if rng.Float64() < StatusFlipProbability {
			a.Status = redrawStatuses[rng.Intn(len(redrawStatuses))]

			if a.Status == agent.StatusAwaitingInput &&
				rng.Float64() < ConflictAlertProbability &&
				!alert.Unresolved(out.Alerts, a.ID) {
				out.Alerts = append(out.Alerts, alert.Transient(alert.Alert{
					ID:        nextVirtualID,
					AgentID:   a.ID,
					Message:   conflictCatalog[rng.Intn(len(conflictCatalog))],
					Resolved:  false,
					Timestamp: now,
				}))
				nextVirtualID--
			}
		}

		if advanceUptime {
			a.Uptime += rng.Intn(maxUptimeStep + 1)
		}

		out.Agents[i] = a
	}

	return out
}

// jitter scales v by a uniform factor in [jitterLow, jitterHigh] and
// rounds to the nearest integer.
func jitter(v int, rng *rand.Rand) int {
	f := jitterLow + rng.Float64()*(jitterHigh-jitterLow)
	return int(math.Round(float64(v) * f))
}
