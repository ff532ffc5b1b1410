// Package playback provides the playback session: the state machine that
// owns the single mounted backend.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // Nothing loaded yet
	StateLoading              // Backend mounted, waiting for readiness
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
	StateEnded                // Track reached its end
	StateError                // Load or backend failed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Settled reports whether the state only changes on the next load.
func (s State) Settled() bool {
	return s == StateIdle || s == StateEnded || s == StateError
}
