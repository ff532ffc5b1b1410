package playback

// EventType represents a session event type.
type EventType int

const (
	EventTrackLoaded  EventType = iota // A backend was mounted for a new track
	EventStateChanged                  // Playback state changed
	EventTrackEnded                    // Mounted track reached its end
	EventError                         // Load or backend failure
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackLoaded:
		return "track_loaded"
	case EventStateChanged:
		return "state_changed"
	case EventTrackEnded:
		return "track_ended"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents a session event.
type Event struct {
	Type   EventType
	Status Status // Snapshot at the time of the event
}
