package preload

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nextwave/internal/app/backend"
	"github.com/osa030/nextwave/internal/domain/track"
)

// DefaultThreshold is the remaining time at which the next track is preloaded.
const DefaultThreshold = 15 * time.Second

// Resolver resolves a track, sharing in-flight requests per track ID.
type Resolver interface {
	Resolve(ctx context.Context, t track.Track) (*track.Descriptor, bool, error)
}

// Progress is one playback progress tick.
type Progress struct {
	Generation uint64        // Session generation of the tick
	Kind       backend.Kind  // Active backend kind
	Elapsed    time.Duration // Playback position
	Total      time.Duration // Track duration
	Next       *track.Track  // Track that would play next, if any
}

// Config holds coordinator configuration.
type Config struct {
	Threshold time.Duration
}

// Coordinator triggers at most one background resolve per upcoming track.
type Coordinator struct {
	mu sync.Mutex

	resolver  Resolver
	cache     *Cache
	threshold time.Duration
	onReady   func(Entry)

	inflight     map[string]bool
	attempted    map[string]bool // Track IDs tried during attemptedGen
	attemptedGen uint64

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoordinator creates a coordinator that stores results in cache.
// onReady, if set, is called after an entry is stored.
func NewCoordinator(resolver Resolver, cache *Cache, config Config, onReady func(Entry)) *Coordinator {
	if config.Threshold <= 0 {
		config.Threshold = DefaultThreshold
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		resolver:  resolver,
		cache:     cache,
		threshold: config.Threshold,
		onReady:   onReady,
		inflight:  make(map[string]bool),
		attempted: make(map[string]bool),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// OnProgress evaluates a tick and starts a preload when due.
// It reports whether a preload was started.
func (c *Coordinator) OnProgress(p Progress) bool {
	if !p.Kind.Observable() || p.Total <= 0 || p.Next == nil {
		return false
	}
	if p.Total-p.Elapsed > c.threshold {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ctx.Err() != nil {
		return false
	}
	if p.Generation != c.attemptedGen {
		c.attemptedGen = p.Generation
		c.attempted = make(map[string]bool)
	}

	next := *p.Next
	if c.attempted[next.ID] || c.inflight[next.ID] || c.cache.Has(next.ID) {
		return false
	}
	c.attempted[next.ID] = true
	c.inflight[next.ID] = true

	zlog.Debug().Msgf("preload: starting: track=%s remaining=%v", next.ID, p.Total-p.Elapsed)

	c.wg.Add(1)
	go c.run(next)
	return true
}

func (c *Coordinator) run(t track.Track) {
	defer c.wg.Done()
	defer func() {
		c.mu.Lock()
		delete(c.inflight, t.ID)
		c.mu.Unlock()
	}()

	d, shared, err := c.resolver.Resolve(c.ctx, t)
	if err != nil {
		zlog.Warn().Err(err).Msgf("preload: resolve failed: track=%s", t.ID)
		return
	}
	sel, err := backend.Select(d)
	if err != nil {
		zlog.Warn().Err(err).Msgf("preload: no playable source: track=%s", t.ID)
		return
	}

	entry := Entry{TrackID: t.ID, Selection: sel, Descriptor: d}
	c.cache.Store(entry)
	zlog.Info().Msgf("preload: cached: track=%s kind=%s shared=%v", t.ID, sel.Kind, shared)

	if c.onReady != nil {
		c.onReady(entry)
	}
}

// InFlight reports whether a preload for trackID is running.
func (c *Coordinator) InFlight(trackID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[trackID]
}

// Threshold returns the configured threshold.
func (c *Coordinator) Threshold() time.Duration {
	return c.threshold
}

// Wait blocks until all running preloads have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Close stops accepting ticks and waits for running preloads.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.cancel()
	c.mu.Unlock()
	c.wg.Wait()
}
