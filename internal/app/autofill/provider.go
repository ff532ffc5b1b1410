// Package autofill picks tracks to continue playback when the queue runs out.
package autofill

import (
	"context"

	"github.com/osa030/nextwave/internal/domain/track"
)

// Seed is what a provider may base its picks on.
type Seed struct {
	Track   *track.Track    // Last played track, nil before anything played
	Related []track.Summary // Related tracks of the last resolved descriptor
}

// Provider is the interface for autofill track providers.
type Provider interface {
	// Candidates returns up to count tracks whose IDs are not in exclude.
	Candidates(ctx context.Context, count int, seed Seed, exclude map[string]bool) ([]track.Track, error)

	// Name returns the provider type (used in config).
	Name() string
}

// Searcher turns a free-text query into tracks.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]track.Summary, error)
}
