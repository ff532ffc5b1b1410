package track

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrack_SourceURL(t *testing.T) {
	tests := []struct {
		name     string
		track    Track
		expected string
	}{
		{
			name:     "explicit url wins",
			track:    Track{ID: "abc", URL: "https://youtu.be/abc"},
			expected: "https://youtu.be/abc",
		},
		{
			name:     "derived from id",
			track:    Track{ID: "dQw4w9WgXcQ"},
			expected: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.track.SourceURL())
		})
	}
}

func TestTrack_Thumbnail(t *testing.T) {
	assert.Equal(t, "https://img.youtube.com/vi/xyz/mqdefault.jpg", Track{ID: "xyz"}.Thumbnail())
	assert.Equal(t, "https://cdn/t.jpg", Track{ID: "xyz", ThumbnailURL: "https://cdn/t.jpg"}.Thumbnail())
	assert.Equal(t, "", Track{}.Thumbnail())
}

func TestSummary_Track(t *testing.T) {
	s := Summary{ID: "id1", Title: "Song", Duration: 90 * time.Second, ThumbnailURL: "thumb"}
	tr := s.Track()

	assert.Equal(t, "id1", tr.ID)
	assert.Equal(t, "Song", tr.Title)
	assert.Equal(t, 90*time.Second, tr.Duration)
	assert.Equal(t, "thumb", tr.ThumbnailURL)
	assert.Empty(t, tr.Artist)
}

func TestDescriptor_HasSource(t *testing.T) {
	var nilDesc *Descriptor
	assert.False(t, nilDesc.HasSource())
	assert.False(t, (&Descriptor{ID: "a"}).HasSource())
	assert.True(t, (&Descriptor{EmbedURL: "e"}).HasSource())
	assert.True(t, (&Descriptor{AudioURL: "a"}).HasSource())
	assert.True(t, (&Descriptor{InvidiousURL: "i"}).HasSource())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "0:00", FormatDuration(-time.Second))
	assert.Equal(t, "0:09", FormatDuration(9*time.Second))
	assert.Equal(t, "3:20", FormatDuration(200*time.Second))
	assert.Equal(t, "61:01", FormatDuration(61*time.Minute+time.Second))
}
