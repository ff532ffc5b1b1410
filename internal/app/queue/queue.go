// Package queue provides the ordered playback queue with shuffle and repeat.
package queue

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/osa030/nextwave/internal/domain/track"
)

// RepeatMode defines the repeat behavior.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota // Stop at the end of the queue
	RepeatAll                    // Wrap to the start
	RepeatOne                    // Restart the current track
)

// String returns the string representation of the repeat mode.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "unknown"
	}
}

// ParseRepeatMode parses "none", "all" or "one".
func ParseRepeatMode(s string) (RepeatMode, bool) {
	switch s {
	case "none", "off", "":
		return RepeatNone, true
	case "all":
		return RepeatAll, true
	case "one":
		return RepeatOne, true
	default:
		return RepeatNone, false
	}
}

// Move tells the caller what Next or Previous decided.
type Move int

const (
	MoveNone    Move = iota // Nothing to do, position unchanged
	MoveAdvance             // Position changed, load the returned track
	MoveRestart             // Restart the returned (current) track
)

// String returns the string representation of the move.
func (m Move) String() string {
	switch m {
	case MoveNone:
		return "none"
	case MoveAdvance:
		return "advance"
	case MoveRestart:
		return "restart"
	default:
		return "unknown"
	}
}

// Snapshot is a copy of the queue state.
type Snapshot struct {
	Tracks  []track.Track
	Index   int
	Shuffle bool
	Repeat  RepeatMode
}

// Option configures a Queue.
type Option func(*Queue)

// WithSeedSource sets the source of shuffle seeds.
func WithSeedSource(seed func() uint64) Option {
	return func(q *Queue) {
		q.seed = seed
	}
}

// Queue is an ordered list of unique tracks with a current position.
//
// The index is -1 only when the queue is empty. With shuffle enabled the
// play order is a permutation of the indices that starts at the track that
// was current when shuffle was enabled.
type Queue struct {
	mu sync.RWMutex

	tracks  []track.Track
	index   int
	shuffle bool
	repeat  RepeatMode

	order    []int  // Play order while shuffled
	pos      int    // Position of index within order
	nextSeed uint64 // Seed of the permutation used on the next wrap
	rng      *rand.Rand
	seed     func() uint64
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	q := &Queue{
		index: -1,
		seed:  func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a track unless its ID is already queued.
// The first track enqueued into an empty queue becomes current.
func (q *Queue) Enqueue(t track.Track) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.findLocked(t.ID) >= 0 {
		return false
	}
	q.tracks = append(q.tracks, t)
	added := len(q.tracks) - 1
	if q.index < 0 {
		q.index = 0
	}

	if q.shuffle {
		if len(q.order) == 0 {
			q.order = []int{added}
			q.pos = 0
		} else {
			// Random slot after the current position.
			at := q.pos + 1 + q.rng.IntN(len(q.order)-q.pos)
			q.order = append(q.order, 0)
			copy(q.order[at+1:], q.order[at:])
			q.order[at] = added
		}
	}
	return true
}

// Next computes the track that follows the current one and moves to it.
func (q *Queue) Next() (Move, *track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 {
		return MoveNone, nil
	}
	if q.repeat == RepeatOne {
		return MoveRestart, q.currentLocked()
	}

	if !q.shuffle {
		switch {
		case q.index < len(q.tracks)-1:
			q.index++
		case q.repeat == RepeatAll:
			q.index = 0
		default:
			return MoveNone, q.currentLocked()
		}
		return MoveAdvance, q.currentLocked()
	}

	switch {
	case q.pos < len(q.order)-1:
		q.pos++
	case q.repeat == RepeatAll:
		q.order = q.wrapOrderLocked(q.nextSeed)
		q.pos = 0
		q.nextSeed = q.seed()
	default:
		return MoveNone, q.currentLocked()
	}
	q.index = q.order[q.pos]
	return MoveAdvance, q.currentLocked()
}

// Previous steps back one track. With no prior track it asks for a restart.
func (q *Queue) Previous() (Move, *track.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tracks) == 0 {
		return MoveNone, nil
	}
	if q.shuffle {
		if q.pos > 0 {
			q.pos--
			q.index = q.order[q.pos]
			return MoveAdvance, q.currentLocked()
		}
		return MoveRestart, q.currentLocked()
	}
	if q.index > 0 {
		q.index--
		return MoveAdvance, q.currentLocked()
	}
	return MoveRestart, q.currentLocked()
}

// PeekNext returns the track Next would advance to, without moving.
// It returns nil when Next would not advance to a different track.
func (q *Queue) PeekNext() *track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.tracks) == 0 || q.repeat == RepeatOne {
		return nil
	}

	next := -1
	if !q.shuffle {
		switch {
		case q.index < len(q.tracks)-1:
			next = q.index + 1
		case q.repeat == RepeatAll:
			next = 0
		}
	} else {
		switch {
		case q.pos < len(q.order)-1:
			next = q.order[q.pos+1]
		case q.repeat == RepeatAll:
			next = q.wrapOrderLocked(q.nextSeed)[0]
		}
	}
	if next < 0 || next == q.index {
		return nil
	}
	t := q.tracks[next]
	return &t
}

// Select moves to the given index.
func (q *Queue) Select(index int) (*track.Track, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.tracks) {
		return nil, false
	}
	q.index = index
	if q.shuffle {
		for i, idx := range q.order {
			if idx == index {
				q.pos = i
				break
			}
		}
	}
	return q.currentLocked(), true
}

// Remove deletes the track with the given ID and keeps the index valid.
// wasCurrent reports whether the removed track was the current one.
func (q *Queue) Remove(id string) (removed bool, wasCurrent bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	at := q.findLocked(id)
	if at < 0 {
		return false, false
	}
	wasCurrent = at == q.index
	q.tracks = append(q.tracks[:at], q.tracks[at+1:]...)

	if len(q.tracks) == 0 {
		q.index = -1
		q.order = nil
		q.pos = 0
		return true, wasCurrent
	}

	if q.shuffle {
		order := make([]int, 0, len(q.order)-1)
		newPos := q.pos
		for i, idx := range q.order {
			switch {
			case idx == at:
				if i < q.pos {
					newPos--
				}
				continue
			case idx > at:
				idx--
			}
			order = append(order, idx)
		}
		if newPos >= len(order) {
			newPos = len(order) - 1
		}
		q.order = order
		q.pos = newPos
		q.index = q.order[q.pos]
		return true, wasCurrent
	}

	if q.index > at {
		q.index--
	} else if q.index >= len(q.tracks) {
		q.index = len(q.tracks) - 1
	}
	return true, wasCurrent
}

// Clear removes all tracks.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.tracks = nil
	q.index = -1
	q.order = nil
	q.pos = 0
}

// SetShuffle enables or disables shuffle. Enabling builds a new permutation
// that starts at the current track.
func (q *Queue) SetShuffle(enabled bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if enabled == q.shuffle {
		return
	}
	q.shuffle = enabled
	if !enabled {
		q.order = nil
		q.pos = 0
		q.rng = nil
		return
	}

	seed := q.seed()
	q.rng = newRand(seed)
	q.nextSeed = q.seed()
	q.order = q.order[:0]
	q.pos = 0
	if q.index < 0 {
		return
	}
	rest := make([]int, 0, len(q.tracks)-1)
	for i := range q.tracks {
		if i != q.index {
			rest = append(rest, i)
		}
	}
	q.rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	q.order = append([]int{q.index}, rest...)
}

// SetRepeatMode sets the repeat mode.
func (q *Queue) SetRepeatMode(mode RepeatMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeat = mode
}

// CycleRepeatMode steps none -> all -> one -> none and returns the new mode.
func (q *Queue) CycleRepeatMode() RepeatMode {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.repeat {
	case RepeatNone:
		q.repeat = RepeatAll
	case RepeatAll:
		q.repeat = RepeatOne
	default:
		q.repeat = RepeatNone
	}
	return q.repeat
}

// Shuffle reports whether shuffle is enabled.
func (q *Queue) Shuffle() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.shuffle
}

// RepeatMode returns the repeat mode.
func (q *Queue) RepeatMode() RepeatMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.repeat
}

// Current returns the current track, or nil.
func (q *Queue) Current() *track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.currentLocked()
}

// CurrentIndex returns the current index (-1 if empty).
func (q *Queue) CurrentIndex() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.index
}

// Contains reports whether a track with the ID is queued.
func (q *Queue) Contains(id string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.findLocked(id) >= 0
}

// Len returns the number of tracks.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tracks)
}

// Tracks returns a copy of the tracks in insertion order.
func (q *Queue) Tracks() []track.Track {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]track.Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Snapshot returns a copy of the queue state.
func (q *Queue) Snapshot() Snapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]track.Track, len(q.tracks))
	copy(out, q.tracks)
	return Snapshot{Tracks: out, Index: q.index, Shuffle: q.shuffle, Repeat: q.repeat}
}

func (q *Queue) currentLocked() *track.Track {
	if q.index < 0 || q.index >= len(q.tracks) {
		return nil
	}
	t := q.tracks[q.index]
	return &t
}

func (q *Queue) findLocked(id string) int {
	for i := range q.tracks {
		if q.tracks[i].ID == id {
			return i
		}
	}
	return -1
}

// wrapOrderLocked builds the permutation for the next cycle.
// It never starts with the current track when there is another choice.
func (q *Queue) wrapOrderLocked(seed uint64) []int {
	order := make([]int, len(q.tracks))
	for i := range order {
		order[i] = i
	}
	r := newRand(seed)
	r.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	if len(order) > 1 && order[0] == q.index {
		order[0], order[1] = order[1], order[0]
	}
	return order
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
