// Package command defines the user-issued command record.
package command

import "time"

// Command is a directive issued by a user against an agent. Executed
// flips false -> true once the command has been acted upon.
type Command struct {
	ID        int64     `json:"id"`
	AgentID   int64     `json:"agentId"`
	Command   string    `json:"command"`
	Executed  bool      `json:"executed"`
	Timestamp time.Time `json:"timestamp"`
}
