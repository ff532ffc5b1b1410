package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nextwave/internal/app/backend"
	"github.com/osa030/nextwave/internal/domain/track"
)

// Errors
var (
	ErrNoTrack      = errors.New("no track loaded")
	ErrResolve      = errors.New("resolve failed")
	ErrBackendMount = errors.New("backend mount failed")
	ErrBackend      = errors.New("backend error")
)

// Config holds session configuration.
type Config struct {
	Volume      float64 // Initial volume in [0,1]
	EventBuffer int     // Size of the event channel
}

// Status is a snapshot of the session.
type Status struct {
	Track            *track.Track
	Kind             backend.Kind
	Source           string
	State            State
	Elapsed          time.Duration // Zero unless Kind is observable
	Total            time.Duration // Zero unless Kind is observable
	SimulatedPlaying bool          // Best-effort play flag for embed kinds
	Volume           float64
	Generation       uint64
	Err              error
}

// Remaining returns Total-Elapsed, or zero when the total is unknown.
func (s Status) Remaining() time.Duration {
	if s.Total <= 0 || s.Elapsed >= s.Total {
		return 0
	}
	return s.Total - s.Elapsed
}

// Playing reports whether the session considers itself playing.
// For embed kinds this is the simulated flag and may be wrong.
func (s Status) Playing() bool {
	if s.Kind.IsEmbed() {
		return s.State == StatePlaying && s.SimulatedPlaying
	}
	return s.State == StatePlaying
}

// LoadResult describes a successful load.
type LoadResult struct {
	Selection  backend.Selection
	Generation uint64
	Preloaded  bool // The chosen source matched the pending preloaded source
}

// Session owns exactly one mounted backend at a time.
//
// Embed kinds expose no telemetry and accept no transport controls, so for
// them Play/Pause/Toggle only flip SimulatedPlaying and Seek, SetVolume and
// Restart are no-ops. The flag does not reflect what the surface is doing.
type Session struct {
	mu sync.RWMutex

	backends backend.Set
	active   backend.Backend

	track      *track.Track
	kind       backend.Kind
	source     string
	state      State
	elapsed    time.Duration
	total      time.Duration
	simulated  bool
	restarting bool // Restart was issued from StateEnded
	volume     float64
	generation uint64
	pending    string
	lastErr    error

	eventCh chan Event
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewSession creates a session over the given backends.
func NewSession(backends backend.Set, config Config) *Session {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		backends: backends,
		state:    StateIdle,
		volume:   clampVolume(config.Volume),
		eventCh:  make(chan Event, config.EventBuffer),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Events returns the event channel.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

// Load tears down the mounted backend, then selects and mounts a backend for
// the descriptor. Accepted from every state.
func (s *Session) Load(ctx context.Context, t track.Track, d *track.Descriptor) (LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()

	s.generation++
	s.track = &t
	s.kind = backend.KindNone
	s.source = ""
	s.elapsed = 0
	s.total = 0
	s.simulated = false
	s.lastErr = nil

	pending := s.pending
	s.pending = ""

	sel, err := backend.Select(d)
	if err != nil {
		return LoadResult{}, s.failLocked(err)
	}

	b := s.backends.Get(sel.Kind)
	if b == nil {
		return LoadResult{}, s.failLocked(errors.Mark(
			errors.Newf("no backend registered for kind %s", sel.Kind), ErrBackendMount))
	}

	s.state = StateLoading
	req := backend.MountRequest{Source: sel.Source, Generation: s.generation, Title: t.Title}
	if err := b.Mount(ctx, req); err != nil {
		return LoadResult{}, s.failLocked(errors.Mark(
			errors.Wrapf(err, "mount %s", sel.Kind), ErrBackendMount))
	}
	s.active = b
	s.kind = sel.Kind
	s.source = sel.Source

	result := LoadResult{Selection: sel, Generation: s.generation, Preloaded: pending != "" && pending == sel.Source}

	if sel.Kind.IsEmbed() {
		// No readiness signal exists for embeds.
		s.state = StatePlaying
		s.simulated = true
	} else if audio, ok := b.(backend.AudioBackend); ok {
		if d != nil {
			s.total = d.Duration
		}
		if err := audio.SetVolume(s.volume); err != nil {
			zlog.Warn().Err(err).Msgf("playback: failed to apply volume: volume=%.2f", s.volume)
		}
		if err := audio.Play(); err != nil {
			return LoadResult{}, s.failLocked(errors.Mark(
				errors.Wrapf(err, "start %s", sel.Kind), ErrBackendMount))
		}
	}

	zlog.Info().Msgf("playback: loaded: track=%s kind=%s generation=%d preloaded=%v",
		t.ID, sel.Kind, s.generation, result.Preloaded)

	s.sendEventLocked(EventTrackLoaded)
	s.sendEventLocked(EventStateChanged)
	return result, nil
}

// Fail records a failure that happened before a descriptor was available,
// such as a resolve error. The mounted backend is torn down.
func (s *Session) Fail(t track.Track, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.generation++
	s.track = &t
	s.kind = backend.KindNone
	s.source = ""
	s.elapsed = 0
	s.total = 0
	s.simulated = false
	s.pending = ""
	return s.failLocked(err)
}

// Reset tears down the mounted backend and returns to StateIdle.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.teardownLocked()
	s.generation++
	s.track = nil
	s.kind = backend.KindNone
	s.source = ""
	s.elapsed = 0
	s.total = 0
	s.simulated = false
	s.pending = ""
	s.lastErr = nil
	s.setStateLocked(StateIdle)
}

// Play resumes playback.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playLocked()
}

// Pause pauses playback.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauseLocked()
}

// Toggle switches between play and pause.
func (s *Session) Toggle() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoTrack
	}
	if s.kind.IsEmbed() {
		if s.simulated {
			return s.pauseLocked()
		}
		return s.playLocked()
	}
	if s.state == StatePlaying {
		return s.pauseLocked()
	}
	return s.playLocked()
}

func (s *Session) playLocked() error {
	if s.active == nil {
		return ErrNoTrack
	}
	if s.kind.IsEmbed() {
		s.simulated = true
		s.sendEventLocked(EventStateChanged)
		return nil
	}
	audio, ok := s.active.(backend.AudioBackend)
	if !ok {
		return nil
	}
	if err := audio.Play(); err != nil {
		return errors.Wrap(err, "play")
	}
	return nil
}

func (s *Session) pauseLocked() error {
	if s.active == nil {
		return ErrNoTrack
	}
	if s.kind.IsEmbed() {
		s.simulated = false
		s.sendEventLocked(EventStateChanged)
		return nil
	}
	audio, ok := s.active.(backend.AudioBackend)
	if !ok {
		return nil
	}
	if err := audio.Pause(); err != nil {
		return errors.Wrap(err, "pause")
	}
	return nil
}

// Seek moves the playback position. No-op for embed kinds.
func (s *Session) Seek(position time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoTrack
	}
	audio, ok := s.audioLocked()
	if !ok {
		return nil
	}
	if position < 0 {
		position = 0
	}
	if s.total > 0 && position > s.total {
		position = s.total
	}
	if err := audio.Seek(position); err != nil {
		return errors.Wrapf(err, "seek to %v", position)
	}
	s.elapsed = position
	return nil
}

// SetVolume clamps v to [0,1] and applies it to direct audio.
// The value is kept for later loads either way.
func (s *Session) SetVolume(v float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.volume = clampVolume(v)
	if audio, ok := s.audioLocked(); ok {
		if err := audio.SetVolume(s.volume); err != nil {
			return s.volume, errors.Wrap(err, "set volume")
		}
	}
	return s.volume, nil
}

// Restart seeks to the start and resumes. No-op for embed kinds.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return ErrNoTrack
	}
	audio, ok := s.audioLocked()
	if !ok {
		return nil
	}
	if err := audio.Seek(0); err != nil {
		return errors.Wrap(err, "restart seek")
	}
	s.elapsed = 0
	if err := audio.Play(); err != nil {
		return errors.Wrap(err, "restart play")
	}
	s.restarting = s.state == StateEnded
	return nil
}

// Preload stores a single pending source for a later Load. Nothing is mounted.
func (s *Session) Preload(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = source
}

// PendingSource returns the pending preloaded source.
func (s *Session) PendingSource() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// Handle applies a backend event. Events from another generation are dropped.
// A backend error event is returned to the caller.
func (s *Session) Handle(ev backend.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Generation != 0 && ev.Generation != s.generation {
		zlog.Debug().Msgf("playback: dropping stale event: type=%s generation=%d current=%d",
			ev.Type, ev.Generation, s.generation)
		return nil
	}
	if s.active == nil {
		return nil
	}

	switch ev.Type {
	case backend.EventReady:
		if s.state == StateLoading {
			s.setStateLocked(StatePlaying)
		}
	case backend.EventProgress:
		if s.kind.Observable() {
			s.elapsed = ev.Position
			if ev.Duration > 0 {
				s.total = ev.Duration
			}
		}
	case backend.EventPlaying:
		if s.kind.IsEmbed() {
			s.simulated = true
		}
		switch s.state {
		case StateLoading, StatePaused:
			s.setStateLocked(StatePlaying)
		case StateEnded:
			// Ended only resumes after a Restart.
			if s.restarting {
				s.restarting = false
				s.setStateLocked(StatePlaying)
			}
		}
	case backend.EventPaused:
		if s.kind.IsEmbed() {
			s.simulated = false
		}
		if s.state == StatePlaying {
			s.setStateLocked(StatePaused)
		}
	case backend.EventEnded:
		if s.state == StateEnded || s.state == StateError {
			return nil
		}
		if s.total > 0 {
			s.elapsed = s.total
		}
		s.simulated = false
		s.restarting = false
		s.state = StateEnded
		zlog.Debug().Msgf("playback: track ended: track=%s generation=%d", s.track.ID, s.generation)
		s.sendEventLocked(EventTrackEnded)
		s.sendEventLocked(EventStateChanged)
	case backend.EventError:
		err := ev.Err
		if err == nil {
			err = errors.New("unspecified backend error")
		}
		return s.failLocked(errors.Mark(errors.Wrapf(err, "%s backend", s.kind), ErrBackend))
	}
	return nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked()
}

// State returns the current playback state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Generation returns the current load generation.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Close tears down the mounted backend and closes the event channel.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.teardownLocked()
	close(s.eventCh)
}

func (s *Session) audioLocked() (backend.AudioBackend, bool) {
	if s.active == nil || !s.kind.Observable() {
		return nil, false
	}
	audio, ok := s.active.(backend.AudioBackend)
	return audio, ok
}

// teardownLocked unmounts the active backend. Must be called with lock held.
func (s *Session) teardownLocked() {
	s.restarting = false
	if s.active == nil {
		return
	}
	if err := s.active.Unmount(); err != nil {
		zlog.Warn().Err(err).Msgf("playback: unmount failed: kind=%s", s.kind)
	}
	s.active = nil
}

// failLocked moves to StateError and returns err. Must be called with lock held.
func (s *Session) failLocked(err error) error {
	s.lastErr = err
	s.state = StateError
	s.simulated = false
	zlog.Error().Err(err).Msgf("playback: failed: generation=%d", s.generation)
	s.sendEventLocked(EventError)
	s.sendEventLocked(EventStateChanged)
	return err
}

func (s *Session) setStateLocked(state State) {
	if s.state == state {
		return
	}
	s.state = state
	s.sendEventLocked(EventStateChanged)
}

func (s *Session) statusLocked() Status {
	st := Status{
		Kind:             s.kind,
		Source:           s.source,
		State:            s.state,
		SimulatedPlaying: s.simulated,
		Volume:           s.volume,
		Generation:       s.generation,
		Err:              s.lastErr,
	}
	if s.track != nil {
		t := *s.track
		st.Track = &t
	}
	if s.kind.Observable() {
		st.Elapsed = s.elapsed
		st.Total = s.total
	}
	return st
}

// sendEventLocked sends an event without blocking.
// Must be called with lock held.
func (s *Session) sendEventLocked(t EventType) {
	if s.closed {
		return
	}
	select {
	case s.eventCh <- Event{Type: t, Status: s.statusLocked()}:
	case <-s.ctx.Done():
	default:
		// Channel full, drop event
	}
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
