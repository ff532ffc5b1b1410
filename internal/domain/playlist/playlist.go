// Package playlist provides the Playlist domain entity.
package playlist

import (
	"time"

	"github.com/osa030/nextwave/internal/domain/track"
)

// Playlist is a named, ordered set of tracks enqueued as a unit.
type Playlist struct {
	Name   string        // Playlist name
	Tracks []track.Track // Tracks in the playlist
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	ids := make([]string, len(p.Tracks))
	for i, t := range p.Tracks {
		ids[i] = t.ID
	}
	return ids
}

// TotalDuration returns the total duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.Tracks {
		total += t.Duration
	}
	return total
}

// Unique returns the tracks with duplicate IDs removed, keeping first occurrences.
func (p *Playlist) Unique() []track.Track {
	seen := make(map[string]bool, len(p.Tracks))
	result := make([]track.Track, 0, len(p.Tracks))
	for _, t := range p.Tracks {
		if seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		result = append(result, t)
	}
	return result
}
