// Package speech defines the client-side text-to-speech port. Speech
// synthesis itself is an external capability; the dashboard only hands
// text over and tracks whether something is currently being spoken.
package speech

// Synthesizer speaks a voice event. agentID is nil for system-level
// messages. Implementations must not block the caller for the duration
// of playback.
type Synthesizer interface {
	Speak(text string, agentID *int64)
}
