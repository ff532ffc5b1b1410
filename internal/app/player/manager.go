// Package player provides the player manager that wires user actions and
// backend events to the queue, the playback session and the preloader.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nextwave/internal/app/autofill"
	"github.com/osa030/nextwave/internal/app/backend"
	"github.com/osa030/nextwave/internal/app/filter"
	"github.com/osa030/nextwave/internal/app/notification"
	"github.com/osa030/nextwave/internal/app/playback"
	"github.com/osa030/nextwave/internal/app/preload"
	"github.com/osa030/nextwave/internal/app/queue"
	"github.com/osa030/nextwave/internal/domain/playlist"
	"github.com/osa030/nextwave/internal/domain/track"
)

var (
	ErrEmptyQueue   = errors.New("queue is empty")
	ErrInvalidIndex = errors.New("invalid queue index")
	ErrNoSearcher   = errors.New("search is not available")
)

// Resolver resolves tracks, sharing in-flight requests per track ID.
type Resolver interface {
	Resolve(ctx context.Context, t track.Track) (*track.Descriptor, bool, error)
}

// Searcher is the search and health surface of the external resolver.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]track.Summary, error)
	Health(ctx context.Context) error
}

// Autofiller picks tracks to append when the queue runs out.
type Autofiller interface {
	Candidates(ctx context.Context, count int, seed autofill.Seed, exclude map[string]bool) ([]autofill.Candidate, error)
}

// Config holds manager configuration.
type Config struct {
	PreloadThreshold time.Duration      // Remaining time that triggers a preload
	SearchLimit      int                // Default search result limit
	Startup          *playlist.Playlist // Enqueued by Start
	Autoplay         bool               // Start playing after the startup playlist is enqueued
	AutofillCount    int                // Tracks requested from the autofiller per fill
}

// Deps are the components the manager coordinates.
type Deps struct {
	Session      *playback.Session
	Queue        *queue.Queue
	Resolver     Resolver
	Searcher     Searcher // Optional
	Filters      *filter.Chain
	Notification *notification.Manager
	Autofill     Autofiller // Optional
}

// EnqueueResult describes the outcome of an enqueue request.
type EnqueueResult struct {
	Added   bool
	Code    string // Rejection code when not added
	Started bool   // Playback was started with this track
}

// Manager manages the player.
type Manager struct {
	mu sync.Mutex

	config     Config
	instanceID string

	session      *playback.Session
	queue        *queue.Queue
	cache        *preload.Cache
	preloader    *preload.Coordinator
	resolver     Resolver
	searcher     Searcher
	filters      *filter.Chain
	notification *notification.Manager
	autofill     Autofiller

	loadToken uint64
	related   []track.Summary // Related tracks of the last loaded descriptor

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a new player manager.
func NewManager(cfg Config, deps Deps) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	if deps.Filters == nil {
		deps.Filters = filter.NewChain()
	}
	if deps.Notification == nil {
		deps.Notification = notification.NewManager()
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = 10
	}
	if cfg.AutofillCount <= 0 {
		cfg.AutofillCount = 1
	}

	m := &Manager{
		config:       cfg,
		instanceID:   uuid.New().String(),
		session:      deps.Session,
		queue:        deps.Queue,
		cache:        preload.NewCache(),
		resolver:     deps.Resolver,
		searcher:     deps.Searcher,
		filters:      deps.Filters,
		notification: deps.Notification,
		autofill:     deps.Autofill,
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	m.preloader = preload.NewCoordinator(deps.Resolver, m.cache,
		preload.Config{Threshold: cfg.PreloadThreshold}, m.onPreloadReady)

	go m.playbackLoop()
	return m
}

// Start enqueues the startup playlist.
func (m *Manager) Start(ctx context.Context) error {
	p := m.config.Startup
	if p == nil || len(p.Tracks) == 0 {
		zlog.Info().Msgf("player started: instance_id=%s", m.instanceID)
		return nil
	}

	added := 0
	for _, t := range p.Unique() {
		res := m.filters.Execute(ctx, filter.Request{Track: t, Origin: filter.OriginPlaylist})
		if !res.Accepted {
			zlog.Warn().Msgf("startup track rejected: track=%s code=%s", t.ID, res.Code)
			continue
		}
		if m.queue.Enqueue(t) {
			added++
		}
	}
	zlog.Info().Msgf("player started: instance_id=%s playlist=%s tracks=%d duration=%v",
		m.instanceID, p.Name, added, p.TotalDuration())

	m.broadcastStatus()
	if m.config.Autoplay && added > 0 {
		return m.Play(ctx)
	}
	return nil
}

// InstanceID returns the player instance ID.
func (m *Manager) InstanceID() string {
	return m.instanceID
}

// Enqueue runs the filter chain and appends the track.
// When nothing has been loaded yet and the track became current, it is started.
func (m *Manager) Enqueue(ctx context.Context, t track.Track, origin filter.Origin) (EnqueueResult, error) {
	if t.ID == "" {
		return EnqueueResult{}, errors.New("track id is required")
	}

	result := m.filters.Execute(ctx, filter.Request{Track: t, Origin: origin})
	zlog.Info().Msgf("enqueue request: track=%s title=%q origin=%s result=%t code=%s",
		t.ID, t.Title, origin, result.Accepted, result.Code)
	if !result.Accepted {
		return EnqueueResult{Code: result.Code}, nil
	}

	if !m.queue.Enqueue(t) {
		return EnqueueResult{Code: "already_queued"}, nil
	}

	res := EnqueueResult{Added: true}
	if m.session.State() == playback.StateIdle {
		if cur := m.queue.Current(); cur != nil && cur.ID == t.ID {
			res.Started = true
			if err := m.load(ctx, *cur); err != nil {
				return res, err
			}
			return res, nil
		}
	}
	m.broadcastStatus()
	return res, nil
}

// Play starts the current track if nothing is playing, otherwise resumes.
func (m *Manager) Play(ctx context.Context) error {
	st := m.session.Status()
	if st.State.Settled() || st.Track == nil {
		cur := m.queue.Current()
		if cur == nil {
			return ErrEmptyQueue
		}
		return m.load(ctx, *cur)
	}
	return m.session.Play()
}

// Pause pauses playback.
func (m *Manager) Pause(ctx context.Context) error {
	return m.session.Pause()
}

// Toggle toggles between play and pause.
func (m *Manager) Toggle(ctx context.Context) error {
	if m.session.State().Settled() {
		return m.Play(ctx)
	}
	return m.session.Toggle()
}

// Seek moves the playback position.
func (m *Manager) Seek(ctx context.Context, position time.Duration) error {
	return m.session.Seek(position)
}

// SetVolume sets the volume and returns the clamped value.
func (m *Manager) SetVolume(ctx context.Context, volume float64) (float64, error) {
	v, err := m.session.SetVolume(volume)
	m.broadcastStatus()
	return v, err
}

// Next advances the queue and plays the result. At the end of the queue
// the autofiller, if any, is asked for tracks to continue with.
func (m *Manager) Next(ctx context.Context) error {
	move, t := m.queue.Next()
	if move == queue.MoveNone && m.autofill != nil && m.fill(ctx) > 0 {
		if t == nil {
			// The queue was empty; the first filled track is current.
			if cur := m.queue.Current(); cur != nil {
				return m.load(ctx, *cur)
			}
		}
		move, t = m.queue.Next()
	}
	return m.apply(ctx, move, t)
}

// fill enqueues autofill candidates that pass the filter chain and returns
// how many were added.
func (m *Manager) fill(ctx context.Context) int {
	seed := autofill.Seed{Track: m.session.Status().Track}
	m.mu.Lock()
	seed.Related = m.related
	m.mu.Unlock()

	exclude := make(map[string]bool)
	for _, t := range m.queue.Tracks() {
		exclude[t.ID] = true
	}

	candidates, err := m.autofill.Candidates(ctx, m.config.AutofillCount, seed, exclude)
	if err != nil {
		zlog.Warn().Msgf("autofill failed: error=%v", err)
		return 0
	}

	added := 0
	for _, c := range candidates {
		result := m.filters.Execute(ctx, filter.Request{Track: c.Track, Origin: filter.OriginRelated})
		if !result.Accepted {
			zlog.Debug().Msgf("autofill candidate rejected: track=%s code=%s", c.Track.ID, result.Code)
			continue
		}
		if m.queue.Enqueue(c.Track) {
			added++
			zlog.Info().Msgf("autofill track added: track=%s title=%q provider=%s", c.Track.ID, c.Track.Title, c.DisplayName)
		}
	}
	return added
}

// Previous steps back in the queue, restarting the current track at the start.
func (m *Manager) Previous(ctx context.Context) error {
	move, t := m.queue.Previous()
	return m.apply(ctx, move, t)
}

// Select plays the track at index.
func (m *Manager) Select(ctx context.Context, index int) error {
	t, ok := m.queue.Select(index)
	if !ok {
		return errors.Wrapf(ErrInvalidIndex, "index %d", index)
	}
	return m.load(ctx, *t)
}

// Remove removes a track from the queue. Removing the current track plays
// the track that took its place, or stops when the queue became empty.
func (m *Manager) Remove(ctx context.Context, id string) (bool, error) {
	removed, wasCurrent := m.queue.Remove(id)
	if !removed {
		return false, nil
	}
	if m.cache.Has(id) {
		m.cache.Clear()
	}
	zlog.Info().Msgf("track removed: track=%s current=%v", id, wasCurrent)

	if !wasCurrent {
		m.broadcastStatus()
		return true, nil
	}
	cur := m.queue.Current()
	if cur == nil {
		m.mu.Lock()
		m.loadToken++
		m.session.Reset()
		m.mu.Unlock()
		m.broadcastStatus()
		return true, nil
	}
	if m.session.State().Settled() {
		m.broadcastStatus()
		return true, nil
	}
	return true, m.load(ctx, *cur)
}

// SetShuffle enables or disables shuffle.
func (m *Manager) SetShuffle(ctx context.Context, enabled bool) {
	m.queue.SetShuffle(enabled)
	zlog.Info().Msgf("shuffle changed: enabled=%v", enabled)
	m.broadcastStatus()
}

// SetRepeatMode sets the repeat mode.
func (m *Manager) SetRepeatMode(ctx context.Context, mode queue.RepeatMode) {
	m.queue.SetRepeatMode(mode)
	zlog.Info().Msgf("repeat mode changed: mode=%s", mode)
	m.broadcastStatus()
}

// CycleRepeatMode advances the repeat mode none -> all -> one -> none.
func (m *Manager) CycleRepeatMode(ctx context.Context) queue.RepeatMode {
	mode := m.queue.CycleRepeatMode()
	zlog.Info().Msgf("repeat mode changed: mode=%s", mode)
	m.broadcastStatus()
	return mode
}

// Search searches tracks through the resolver.
func (m *Manager) Search(ctx context.Context, query string, limit int) ([]track.Summary, error) {
	if m.searcher == nil {
		return nil, ErrNoSearcher
	}
	if limit <= 0 {
		limit = m.config.SearchLimit
	}
	return m.searcher.Search(ctx, query, limit)
}

// Health checks the resolver.
func (m *Manager) Health(ctx context.Context) error {
	if m.searcher == nil {
		return ErrNoSearcher
	}
	return m.searcher.Health(ctx)
}

// HandleBackendEvent delivers an event reported by the rendering client.
// Progress drives the preloader and an ended track advances the queue.
func (m *Manager) HandleBackendEvent(ctx context.Context, ev backend.Event) error {
	gen := m.session.Generation()
	if ev.Generation != 0 && ev.Generation != gen {
		zlog.Debug().Msgf("stale backend event ignored: type=%s generation=%d current=%d", ev.Type, ev.Generation, gen)
		return nil
	}

	if err := m.session.Handle(ev); err != nil {
		return err
	}

	switch ev.Type {
	case backend.EventProgress:
		st := m.session.Status()
		m.preloader.OnProgress(preload.Progress{
			Generation: st.Generation,
			Kind:       st.Kind,
			Elapsed:    st.Elapsed,
			Total:      st.Total,
			Next:       m.queue.PeekNext(),
		})
	case backend.EventEnded:
		if m.session.State() != playback.StateEnded {
			return nil
		}
		return m.Next(ctx)
	}
	return nil
}

// GetStatus returns the current player status.
func (m *Manager) GetStatus() *Status {
	return &Status{
		InstanceID: m.instanceID,
		Playback:   m.session.Status(),
		Queue:      m.queue.Snapshot(),
		Preloaded:  preloadedID(m.cache),
	}
}

// GetNotificationManager returns the notification manager.
func (m *Manager) GetNotificationManager() *notification.Manager {
	return m.notification
}

// Done returns a channel that is closed when the manager is closed.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close closes the player manager.
func (m *Manager) Close() {
	m.cancel()
	m.preloader.Close()
	m.session.Close()
	<-m.done
	m.notification.Close()
}

func (m *Manager) apply(ctx context.Context, move queue.Move, t *track.Track) error {
	switch move {
	case queue.MoveAdvance:
		return m.load(ctx, *t)
	case queue.MoveRestart:
		return m.restart(ctx, *t)
	default:
		zlog.Debug().Msg("queue did not move")
		return nil
	}
}

// restart replays t. Direct audio seeks back; anything else is reloaded.
func (m *Manager) restart(ctx context.Context, t track.Track) error {
	st := m.session.Status()
	if st.Kind == backend.KindDirectAudio && st.Track != nil && st.Track.ID == t.ID &&
		st.State != playback.StateIdle && st.State != playback.StateError {
		return m.session.Restart()
	}
	return m.load(ctx, t)
}

// load resolves t (or takes it from the preload cache) and loads it into the
// session. A load that was superseded while resolving is discarded.
func (m *Manager) load(ctx context.Context, t track.Track) error {
	m.mu.Lock()
	m.loadToken++
	token := m.loadToken
	entry, hit := m.cache.Take(t.ID)
	m.mu.Unlock()

	var d *track.Descriptor
	if hit {
		d = entry.Descriptor
		zlog.Debug().Msgf("load: using preloaded descriptor: track=%s kind=%s", t.ID, entry.Selection.Kind)
	} else {
		var shared bool
		var err error
		d, shared, err = m.resolver.Resolve(ctx, t)
		if err == nil {
			zlog.Debug().Msgf("load: resolved: track=%s shared=%v", t.ID, shared)
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if token != m.loadToken {
			zlog.Info().Msgf("load: superseded, discarding: track=%s", t.ID)
			return nil
		}
		// A preload of t that this load joined must not outlive it.
		m.dropPreloadLocked(t.ID)
		if err != nil {
			return m.session.Fail(t, errors.Mark(err, playback.ErrResolve))
		}
		_, err = m.loadLocked(ctx, t, d)
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if token != m.loadToken {
		return nil
	}
	_, err := m.loadLocked(ctx, t, d)
	return err
}

func (m *Manager) loadLocked(ctx context.Context, t track.Track, d *track.Descriptor) (playback.LoadResult, error) {
	if t.Duration <= 0 && d != nil {
		t.Duration = d.Duration
	}
	if t.Title == "" && d != nil {
		t.Title = d.Title
	}
	if t.ThumbnailURL == "" && d != nil {
		t.ThumbnailURL = d.ThumbnailURL
	}
	if d != nil {
		m.related = d.Related
	}
	return m.session.Load(ctx, t, d)
}

func (m *Manager) onPreloadReady(e preload.Entry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st := m.session.Status(); st.Track != nil && st.Track.ID == e.TrackID && st.State != playback.StateIdle {
		zlog.Debug().Msgf("preload: track is already active, dropping: track=%s", e.TrackID)
		m.dropPreloadLocked(e.TrackID)
		return
	}
	if e.Selection.Kind != backend.KindDirectAudio {
		return
	}
	m.session.Preload(e.Selection.Source)
}

// dropPreloadLocked clears the preload cache if it holds trackID.
func (m *Manager) dropPreloadLocked(trackID string) {
	if m.cache.Has(trackID) {
		m.cache.Clear()
	}
}

// playbackLoop turns session events into notifications.
func (m *Manager) playbackLoop() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev, ok := <-m.session.Events():
			if !ok {
				return
			}
			m.handlePlaybackEvent(ev)
		}
	}
}

func (m *Manager) handlePlaybackEvent(ev playback.Event) {
	zlog.Debug().Msgf("playback event: type=%s state=%s", ev.Type, ev.Status.State)

	switch ev.Type {
	case playback.EventError:
		payload := map[string]any{"message": ""}
		if ev.Status.Err != nil {
			payload["message"] = ev.Status.Err.Error()
		}
		if ev.Status.Track != nil {
			payload["track_id"] = ev.Status.Track.ID
		}
		if err := m.notification.Broadcast(&notification.Notification{
			Type:    notification.TypeError,
			Payload: payload,
		}); err != nil {
			zlog.Error().Msgf("failed to broadcast error: %v", err)
		}
	default:
		m.broadcastStatus()
	}
}

func (m *Manager) broadcastStatus() {
	if err := m.notification.Broadcast(&notification.Notification{
		Type:    notification.TypeStatus,
		Payload: m.GetStatus().Map(),
	}); err != nil {
		zlog.Error().Msgf("failed to broadcast status: %v", err)
	}
}
