// Package preload resolves the upcoming track shortly before the current one
// ends and keeps the result in a single-entry cache.
package preload

import (
	"sync"
	"time"

	"github.com/osa030/nextwave/internal/app/backend"
	"github.com/osa030/nextwave/internal/domain/track"
)

// Entry is a preloaded track.
type Entry struct {
	TrackID    string
	Selection  backend.Selection
	Descriptor *track.Descriptor
	StoredAt   time.Time
}

// Cache holds at most one Entry.
type Cache struct {
	mu    sync.Mutex
	entry *Entry
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Store replaces the cached entry.
func (c *Cache) Store(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e.StoredAt.IsZero() {
		e.StoredAt = time.Now()
	}
	c.entry = &e
}

// Take returns the entry if it is for trackID. The cache is emptied either way.
func (c *Cache) Take(trackID string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry
	c.entry = nil
	if e == nil || e.TrackID != trackID {
		return Entry{}, false
	}
	return *e, true
}

// Has reports whether the cached entry is for trackID.
func (c *Cache) Has(trackID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entry != nil && c.entry.TrackID == trackID
}

// Peek returns the cached entry without consuming it.
func (c *Cache) Peek() (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return Entry{}, false
	}
	return *c.entry, true
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = nil
}
