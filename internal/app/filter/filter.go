// Package filter provides the filter chain for enqueue requests.
package filter

import (
	"context"
	"sort"

	"github.com/osa030/nextwave/internal/domain/track"
)

// Origin tells where an enqueue request came from.
type Origin string

const (
	OriginUser     Origin = "user"     // Control RPC or CLI
	OriginPlaylist Origin = "playlist" // Startup playlist
	OriginRelated  Origin = "related"  // Related tracks of a resolved descriptor
)

// Request represents an enqueue request to be validated.
type Request struct {
	Track  track.Track
	Origin Origin
}

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "duplicate_track", "duration_limit_exceeded"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for enqueue filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// ValidateConfig validates and applies the filter settings.
	ValidateConfig(settings map[string]any) error
	// AppliesTo returns true if this filter should run for the given origin.
	AppliesTo(origin Origin) bool
	// Check performs the filter check.
	Check(ctx context.Context, req Request) Result
}

// TrackLister exposes the queued tracks to filters that need them.
type TrackLister interface {
	Tracks() []track.Track
}

// Deps are the collaborators a filter factory may use.
type Deps struct {
	Queue TrackLister
}

// Factory creates a filter.
type Factory func(deps Deps) Filter

// registry holds registered filter factories.
var registry = make(map[string]Factory)

// Register registers a filter factory.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// GetRegistered returns all registered filter factories.
func GetRegistered() map[string]Factory {
	return registry
}

// Names returns the registered filter names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
