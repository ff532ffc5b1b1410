package player

import (
	"github.com/osa030/nextwave/internal/app/playback"
	"github.com/osa030/nextwave/internal/app/preload"
	"github.com/osa030/nextwave/internal/app/queue"
	"github.com/osa030/nextwave/internal/domain/track"
)

// Status represents the current player status with all information.
type Status struct {
	InstanceID string
	Playback   playback.Status
	Queue      queue.Snapshot
	Preloaded  string // Track ID held by the preload cache, if any
}

// Map renders the status as a JSON-compatible map.
func (s Status) Map() map[string]any {
	pb := s.Playback
	m := map[string]any{
		"instance_id":       s.InstanceID,
		"state":             pb.State.String(),
		"backend":           pb.Kind.String(),
		"source":            pb.Source,
		"elapsed_sec":       pb.Elapsed.Seconds(),
		"total_sec":         pb.Total.Seconds(),
		"simulated_playing": pb.SimulatedPlaying,
		"playing":           pb.Playing(),
		"volume":            pb.Volume,
		"generation":        float64(pb.Generation),
		"shuffle":           s.Queue.Shuffle,
		"repeat_mode":       s.Queue.Repeat.String(),
		"current_index":     float64(s.Queue.Index),
		"preloaded_track":   s.Preloaded,
	}
	if pb.Track != nil {
		m["track"] = TrackMap(*pb.Track)
	}
	if pb.Err != nil {
		m["error"] = pb.Err.Error()
	}
	tracks := make([]any, len(s.Queue.Tracks))
	for i, t := range s.Queue.Tracks {
		tracks[i] = TrackMap(t)
	}
	m["queue"] = tracks
	return m
}

// TrackMap renders a track as a JSON-compatible map.
func TrackMap(t track.Track) map[string]any {
	return map[string]any{
		"id":            t.ID,
		"title":         t.Title,
		"artist":        t.Artist,
		"duration_sec":  t.Duration.Seconds(),
		"thumbnail_url": t.Thumbnail(),
		"url":           t.SourceURL(),
	}
}

func preloadedID(c *preload.Cache) string {
	if e, ok := c.Peek(); ok {
		return e.TrackID
	}
	return ""
}
