package filter

import (
	"context"
	"regexp"
	"strings"

	"github.com/osa030/nextwave/internal/domain/track"
)

var (
	remasterPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\s*-?\s*\d{4}\s+remaster(ed)?`),      // "- 2011 Remaster"
		regexp.MustCompile(`\s*\(remaster(ed)?\s*\d{0,4}\)`),     // "(Remastered 2023)"
		regexp.MustCompile(`\s*\[remaster(ed)?\s*\d{0,4}\]`),     // "[Remastered]"
		regexp.MustCompile(`\s*-?\s*remaster(ed)?(\s+version)?`), // "- Remastered"
		regexp.MustCompile(`\s*\(.*?remaster.*?\)`),              // "(Any Remaster text)"
		regexp.MustCompile(`\s*\[.*?remaster.*?\]`),              // "[Any Remaster text]"
	}
	versionPatterns = []*regexp.Regexp{
		// "(Official Video)"
		regexp.MustCompile(`\s*\((official\s+)?(music\s+)?(video|audio|lyric video|lyrics|visualizer)\)`),
		// "[Official Audio]"
		regexp.MustCompile(`\s*\[(official\s+)?(music\s+)?(video|audio|lyric video|lyrics|visualizer)\]`),
		regexp.MustCompile(`\s*\(.*?version\)`),        // "(Single Version)"
		regexp.MustCompile(`\s*\(.*?edit\)`),           // "(Radio Edit)"
		regexp.MustCompile(`\s*-?\s*live\b`),           // "- Live"
		regexp.MustCompile(`\s*\(live\)`),              // "(Live)"
		regexp.MustCompile(`\s*-?\s*radio\s+edit`),     // "- Radio Edit"
		regexp.MustCompile(`\s*-?\s*single\s+version`), // "- Single Version"
	}
	whitespace = regexp.MustCompile(`\s+`)
)

// DuplicateTrackFilter rejects another version of a track that is already queued.
// Detects:
// - Remasters and alternate versions (normalized title + same artist)
// Excludes:
// - Exact ID matches, which the queue already ignores
// - Cover songs (same title but different artist)
type DuplicateTrackFilter struct {
	queue TrackLister
}

// NewDuplicateTrackFilter creates a new duplicate track filter.
func NewDuplicateTrackFilter(queue TrackLister) *DuplicateTrackFilter {
	return &DuplicateTrackFilter{
		queue: queue,
	}
}

// Name returns the filter name.
func (f *DuplicateTrackFilter) Name() string {
	return "duplicate_track_filter"
}

// Description returns the filter description.
func (f *DuplicateTrackFilter) Description() string {
	return "Rejects remasters or alternate versions of queued tracks; covers by other artists are allowed"
}

// ReturnCodes returns possible return codes.
func (f *DuplicateTrackFilter) ReturnCodes() []string {
	return []string{"duplicate_track"}
}

// AppliesTo returns which origins this filter applies to.
func (f *DuplicateTrackFilter) AppliesTo(origin Origin) bool {
	return origin == OriginUser || origin == OriginRelated
}

// ValidateConfig validates the filter configuration.
func (f *DuplicateTrackFilter) ValidateConfig(settings map[string]any) error {
	// No configuration needed
	return nil
}

// Check checks if the track is another version of a queued track.
func (f *DuplicateTrackFilter) Check(ctx context.Context, req Request) Result {
	if f.queue == nil {
		return Accept()
	}
	for _, queued := range f.queue.Tracks() {
		if queued.ID == req.Track.ID {
			continue
		}
		if isRemaster(queued, req.Track) {
			return Reject("duplicate_track")
		}
	}
	return Accept()
}

// isRemaster checks if two tracks are the same song (remaster/different version).
func isRemaster(track1, track2 track.Track) bool {
	if normalizeTrackName(track1.Title) != normalizeTrackName(track2.Title) {
		return false
	}
	// Same normalized title by a different artist is a cover
	return isSameArtist(track1, track2)
}

// normalizeTrackName removes remaster information and version details.
func normalizeTrackName(name string) string {
	normalized := strings.ToLower(name)

	for _, pattern := range remasterPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}
	for _, pattern := range versionPatterns {
		normalized = pattern.ReplaceAllString(normalized, "")
	}

	normalized = strings.TrimSpace(normalized)
	normalized = whitespace.ReplaceAllString(normalized, " ")
	normalized = strings.TrimRight(normalized, " -")

	return normalized
}

// isSameArtist compares artists case-insensitively, ignoring the " - Topic"
// suffix of auto-generated channels.
func isSameArtist(track1, track2 track.Track) bool {
	a1 := strings.TrimSuffix(strings.TrimSpace(track1.Artist), " - Topic")
	a2 := strings.TrimSuffix(strings.TrimSpace(track2.Artist), " - Topic")
	if a1 == "" || a2 == "" {
		return false
	}
	return strings.EqualFold(a1, a2)
}

func init() {
	Register("duplicate_track_filter", func(deps Deps) Filter {
		return NewDuplicateTrackFilter(deps.Queue)
	})
}
