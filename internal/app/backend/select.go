package backend

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/nextwave/internal/domain/track"
)

// ErrNoPlayableSource is returned when a descriptor carries no source.
var ErrNoPlayableSource = errors.New("no playable source")

// Selection is the backend chosen for a descriptor and the source it mounts.
type Selection struct {
	Kind   Kind
	Source string
}

// candidate pairs a kind with the descriptor field that feeds it.
type candidate struct {
	kind   Kind
	source func(d *track.Descriptor) string
}

// priority is the fixed selection order. First non-empty source wins.
var priority = []candidate{
	{kind: KindPrimaryEmbed, source: func(d *track.Descriptor) string { return d.EmbedURL }},
	{kind: KindDirectAudio, source: func(d *track.Descriptor) string { return d.AudioURL }},
	{kind: KindFallbackEmbed, source: func(d *track.Descriptor) string { return d.InvidiousURL }},
}

// Select maps a descriptor to the backend to use.
// It is pure: the same descriptor always yields the same selection.
func Select(d *track.Descriptor) (Selection, error) {
	if d == nil {
		return Selection{}, errors.Wrap(ErrNoPlayableSource, "nil descriptor")
	}
	for _, c := range priority {
		if src := c.source(d); src != "" {
			return Selection{Kind: c.kind, Source: src}, nil
		}
	}
	return Selection{}, errors.Wrapf(ErrNoPlayableSource, "track %s", d.ID)
}
