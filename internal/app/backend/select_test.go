package backend

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/nextwave/internal/domain/track"
)

func TestSelect_AllPresenceCombinations(t *testing.T) {
	tests := []struct {
		name      string
		embed     bool
		audio     bool
		invidious bool
		expected  Kind
		source    string
	}{
		{name: "none", expected: KindNone},
		{name: "fallback only", invidious: true, expected: KindFallbackEmbed, source: "inv"},
		{name: "audio only", audio: true, expected: KindDirectAudio, source: "aud"},
		{name: "audio and fallback", audio: true, invidious: true, expected: KindDirectAudio, source: "aud"},
		{name: "primary only", embed: true, expected: KindPrimaryEmbed, source: "emb"},
		{name: "primary and fallback", embed: true, invidious: true, expected: KindPrimaryEmbed, source: "emb"},
		{name: "primary and audio", embed: true, audio: true, expected: KindPrimaryEmbed, source: "emb"},
		{name: "all", embed: true, audio: true, invidious: true, expected: KindPrimaryEmbed, source: "emb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &track.Descriptor{ID: "t1"}
			if tt.embed {
				d.EmbedURL = "emb"
			}
			if tt.audio {
				d.AudioURL = "aud"
			}
			if tt.invidious {
				d.InvidiousURL = "inv"
			}

			sel, err := Select(d)

			if tt.expected == KindNone {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrNoPlayableSource))
				assert.Equal(t, Selection{}, sel)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, sel.Kind)
			assert.Equal(t, tt.source, sel.Source)
		})
	}
}

func TestSelect_DirectAudioOverFallback(t *testing.T) {
	sel, err := Select(&track.Descriptor{AudioURL: "u1", InvidiousURL: "u2"})

	require.NoError(t, err)
	assert.Equal(t, KindDirectAudio, sel.Kind)
	assert.Equal(t, "u1", sel.Source)
}

func TestSelect_NilDescriptor(t *testing.T) {
	_, err := Select(nil)
	assert.True(t, errors.Is(err, ErrNoPlayableSource))
}

func TestSelect_Deterministic(t *testing.T) {
	d := &track.Descriptor{EmbedURL: "e", AudioURL: "a"}
	first, err := Select(d)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Select(d)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestKind_Predicates(t *testing.T) {
	assert.True(t, KindPrimaryEmbed.IsEmbed())
	assert.True(t, KindFallbackEmbed.IsEmbed())
	assert.False(t, KindDirectAudio.IsEmbed())
	assert.False(t, KindNone.IsEmbed())
	assert.True(t, KindDirectAudio.Observable())
	assert.False(t, KindPrimaryEmbed.Observable())
	assert.Equal(t, "direct_audio", KindDirectAudio.String())
}

func TestParseEventType(t *testing.T) {
	e, ok := ParseEventType("ended")
	assert.True(t, ok)
	assert.Equal(t, EventEnded, e)

	_, ok = ParseEventType("bogus")
	assert.False(t, ok)
}
