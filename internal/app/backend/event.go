package backend

import "time"

// EventType represents a backend-originated event type.
type EventType int

const (
	EventReady    EventType = iota // Source loaded, playback can start
	EventProgress                  // Time update
	EventPlaying                   // Backend confirmed playback
	EventPaused                    // Backend confirmed pause
	EventEnded                     // Track reached its end
	EventError                     // Backend failed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventProgress:
		return "progress"
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventEnded:
		return "ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseEventType parses an event type name.
func ParseEventType(s string) (EventType, bool) {
	for _, e := range []EventType{EventReady, EventProgress, EventPlaying, EventPaused, EventEnded, EventError} {
		if e.String() == s {
			return e, true
		}
	}
	return 0, false
}

// Event is a message from the mounted backend.
// Generation zero is accepted regardless of the session generation.
type Event struct {
	Type       EventType
	Generation uint64
	Position   time.Duration // EventProgress
	Duration   time.Duration // EventProgress
	Err        error         // EventError
}
