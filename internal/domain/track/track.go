// Package track provides the Track and Descriptor domain entities.
package track

import (
	"fmt"
	"time"
)

const (
	watchURLPrefix    = "https://www.youtube.com/watch?v="
	thumbnailTemplate = "https://img.youtube.com/vi/%s/mqdefault.jpg"
)

// Track represents a queued track. It is created before it is resolved;
// the Descriptor is fetched lazily when the track becomes active.
type Track struct {
	ID           string        // Video ID, unique within a queue
	Title        string        // Track title
	Artist       string        // Artist or channel name
	Duration     time.Duration // Duration reported by search (may be zero)
	ThumbnailURL string        // Thumbnail URL
	URL          string        // Page URL handed to the resolver (optional)
}

// SourceURL returns the URL to resolve for this track.
// Falls back to the watch URL built from the ID.
func (t Track) SourceURL() string {
	if t.URL != "" {
		return t.URL
	}
	return watchURLPrefix + t.ID
}

// Thumbnail returns the thumbnail URL, deriving one from the ID when unset.
func (t Track) Thumbnail() string {
	if t.ThumbnailURL != "" || t.ID == "" {
		return t.ThumbnailURL
	}
	return fmt.Sprintf(thumbnailTemplate, t.ID)
}

// Summary is a search or related-track hit.
type Summary struct {
	ID           string
	Title        string
	Duration     time.Duration
	ThumbnailURL string
}

// Track converts the summary into a queueable track.
func (s Summary) Track() Track {
	return Track{
		ID:           s.ID,
		Title:        s.Title,
		Duration:     s.Duration,
		ThumbnailURL: s.ThumbnailURL,
	}
}

// Descriptor is the immutable result of resolving one track.
// Source fields are listed in preference order; any of them may be empty.
type Descriptor struct {
	ID           string
	Title        string
	Duration     time.Duration
	ThumbnailURL string

	EmbedURL     string // Preferred embeddable player
	AudioURL     string // Direct streamable audio
	InvidiousURL string // Fallback embeddable player

	Related []Summary // Best-effort related tracks
}

// HasSource reports whether at least one playable source is present.
func (d *Descriptor) HasSource() bool {
	if d == nil {
		return false
	}
	return d.EmbedURL != "" || d.AudioURL != "" || d.InvidiousURL != ""
}

// FormatDuration formats a duration as m:ss.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0:00"
	}
	secs := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
