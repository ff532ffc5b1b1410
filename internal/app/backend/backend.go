// Package backend defines the playback backend kinds, their capability
// surface, and the fixed-priority backend selection.
package backend

import (
	"context"
	"time"
)

// Kind identifies a playback backend.
type Kind int

const (
	KindNone          Kind = iota // Nothing mounted
	KindPrimaryEmbed              // Preferred embeddable player
	KindDirectAudio               // Direct streamable audio
	KindFallbackEmbed             // Fallback embeddable player
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindPrimaryEmbed:
		return "primary_embed"
	case KindDirectAudio:
		return "direct_audio"
	case KindFallbackEmbed:
		return "fallback_embed"
	default:
		return "unknown"
	}
}

// IsEmbed reports whether the kind is an externally rendered embed surface.
// Embeds expose no playback telemetry and accept no transport controls.
func (k Kind) IsEmbed() bool {
	return k == KindPrimaryEmbed || k == KindFallbackEmbed
}

// Observable reports whether elapsed/total time can be trusted for this kind.
func (k Kind) Observable() bool {
	return k == KindDirectAudio
}

// MountRequest describes what a backend should mount.
type MountRequest struct {
	Source     string // Source URL chosen by Select
	Generation uint64 // Session generation; echoed back in events
	Title      string // Display title
}

// Backend is the capability set shared by every backend kind.
type Backend interface {
	Kind() Kind
	Mount(ctx context.Context, req MountRequest) error
	Unmount() error
}

// AudioBackend is the direct-audio capability set.
// Telemetry and readiness are reported as Events.
type AudioBackend interface {
	Backend
	Play() error
	Pause() error
	Seek(position time.Duration) error
	SetVolume(volume float64) error
}

// Set holds one backend instance per kind.
type Set map[Kind]Backend

// NewSet builds a Set from backends, keyed by their Kind.
func NewSet(backends ...Backend) Set {
	s := make(Set, len(backends))
	for _, b := range backends {
		s[b.Kind()] = b
	}
	return s
}

// Get returns the backend for kind, or nil.
func (s Set) Get(kind Kind) Backend {
	return s[kind]
}
