// Package interpret maps free-text commands to agent-state transitions.
//
// Routing is an ordered table of {predicate, effect} rules evaluated in
// priority order; the first match wins and the final rule always matches,
// so no command is ever rejected as unrecognized.
package interpret

import (
	"fmt"
	"strings"

	"github.com/Strob0t/NovaLink/internal/domain/agent"
)

// Action is the decided effect of a command.
type Action struct {
	Rule          string       // matched rule name
	Response      string       // spoken/logged agent reply
	NewStatus     agent.Status // empty means no status change
	ResolveAlerts bool         // resolve every unresolved alert for the agent
	Deferred      bool         // schedule the processing -> active follow-up
}

// StatusChanged reports whether the action moves the agent to a new status.
func (a Action) StatusChanged(current agent.Status) bool {
	return a.NewStatus != "" && a.NewStatus != current
}

type rule struct {
	name   string
	match  func(lower string) bool
	effect func(a agent.Agent) Action
}

func contains(words ...string) func(string) bool {
	return func(lower string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
}

// rules is evaluated top to bottom; order is part of the contract.
var rules = []rule{
	{
		name:  "proceed",
		match: contains("proceed"),
		effect: func(agent.Agent) Action {
			return Action{
				Response:      "Proceeding with deployment as requested. I'll monitor for any conflicts.",
				NewStatus:     agent.StatusActive,
				ResolveAlerts: true,
			}
		},
	},
	{
		name:  "reschedule",
		match: contains("reschedule"),
		effect: func(agent.Agent) Action {
			return Action{
				Response:      "Rescheduling deployment for tomorrow at 3AM when system usage is minimal.",
				NewStatus:     agent.StatusIdle,
				ResolveAlerts: true,
			}
		},
	},
	{
		name:  "status",
		match: contains("status"),
		effect: func(a agent.Agent) Action {
			return Action{
				Response: fmt.Sprintf("Current status: %s. Memory usage %d MB, CPU at %d%%, uptime %s.",
					a.Status, a.Memory, a.CPU, FormatUptime(a.Uptime)),
			}
		},
	},
	{
		name:  "pause",
		match: contains("stop", "pause"),
		effect: func(agent.Agent) Action {
			return Action{
				Response:  "Pausing current activity. Standing by for further instructions.",
				NewStatus: agent.StatusIdle,
			}
		},
	},
	{
		name:  "resume",
		match: contains("resume", "continue"),
		effect: func(agent.Agent) Action {
			return Action{
				Response:  "Resuming operations now.",
				NewStatus: agent.StatusActive,
			}
		},
	},
	{
		name:  "help",
		match: contains("help"),
		effect: func(agent.Agent) Action {
			return Action{
				Response: "Available commands: proceed, reschedule, status, stop, pause, resume, continue, and help.",
			}
		},
	},
	{
		name:  "default",
		match: func(string) bool { return true },
		effect: func(agent.Agent) Action {
			return Action{
				Response:  "Command received. Working on it now.",
				NewStatus: agent.StatusProcessing,
				Deferred:  true,
			}
		},
	},
}

// Classify decides the effect of commandText on the given agent.
func Classify(a agent.Agent, commandText string) Action {
	lower := strings.ToLower(commandText)
	for _, r := range rules {
		if r.match(lower) {
			act := r.effect(a)
			act.Rule = r.name
			return act
		}
	}
	// Unreachable: the default rule matches everything.
	panic("interpret: no rule matched")
}

// CompletionResponse is the follow-up message emitted when a deferred
// command finishes.
func CompletionResponse(commandText string) string {
	return fmt.Sprintf("Task complete: %s.", strings.TrimRight(commandText, "."))
}

// FormatUptime renders seconds as a compact h/m/s string.
func FormatUptime(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
