// Package backendtest provides in-memory backends that record every call,
// for tests of code that drives a backend.Set.
package backendtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/osa030/nextwave/internal/app/backend"
)

// Log is a call log shared across backends so ordering between them can be asserted.
type Log struct {
	mu    sync.Mutex
	calls []string
}

func (l *Log) record(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded calls, e.g. "mount:direct_audio".
func (l *Log) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.calls))
	copy(out, l.calls)
	return out
}

// Reset clears the log.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// Embed is a mount/unmount-only backend.
type Embed struct {
	mu       sync.Mutex
	kind     backend.Kind
	log      *Log
	mounted  bool
	requests []backend.MountRequest

	MountErr error
}

// NewEmbed creates an embed backend of the given kind.
func NewEmbed(kind backend.Kind, log *Log) *Embed {
	return &Embed{kind: kind, log: log}
}

func (e *Embed) Kind() backend.Kind { return e.kind }

func (e *Embed) Mount(_ context.Context, req backend.MountRequest) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.record("mount:%s", e.kind)
	if e.MountErr != nil {
		return e.MountErr
	}
	e.mounted = true
	e.requests = append(e.requests, req)
	return nil
}

func (e *Embed) Unmount() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log.record("unmount:%s", e.kind)
	e.mounted = false
	return nil
}

// Mounted reports whether the backend is currently mounted.
func (e *Embed) Mounted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mounted
}

// Requests returns every successful mount request.
func (e *Embed) Requests() []backend.MountRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]backend.MountRequest, len(e.requests))
	copy(out, e.requests)
	return out
}

// Audio is a direct-audio backend.
type Audio struct {
	*Embed

	volume   float64
	position time.Duration
	playing  bool

	PlayErr error
}

// NewAudio creates a direct-audio backend.
func NewAudio(log *Log) *Audio {
	return &Audio{Embed: NewEmbed(backend.KindDirectAudio, log)}
}

func (a *Audio) Play() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.record("play:%s", a.kind)
	if a.PlayErr != nil {
		return a.PlayErr
	}
	a.playing = true
	return nil
}

func (a *Audio) Pause() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.record("pause:%s", a.kind)
	a.playing = false
	return nil
}

func (a *Audio) Seek(position time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.record("seek:%s:%v", a.kind, position)
	a.position = position
	return nil
}

func (a *Audio) SetVolume(volume float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.record("volume:%s:%.2f", a.kind, volume)
	a.volume = volume
	return nil
}

// Volume returns the last volume set.
func (a *Audio) Volume() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.volume
}

// Position returns the last seek position.
func (a *Audio) Position() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// Playing reports whether Play was called more recently than Pause.
func (a *Audio) Playing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.playing
}

// Set holds one fake per backend kind sharing a single Log.
type Set struct {
	Log      *Log
	Primary  *Embed
	Audio    *Audio
	Fallback *Embed
}

// NewSet creates fakes for every kind.
func NewSet() *Set {
	log := &Log{}
	return &Set{
		Log:      log,
		Primary:  NewEmbed(backend.KindPrimaryEmbed, log),
		Audio:    NewAudio(log),
		Fallback: NewEmbed(backend.KindFallbackEmbed, log),
	}
}

// Backends returns the fakes as a backend.Set.
func (s *Set) Backends() backend.Set {
	return backend.NewSet(s.Primary, s.Audio, s.Fallback)
}
