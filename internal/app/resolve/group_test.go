package resolve

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/nextwave/internal/domain/track"
)

type blockingResolver struct {
	release chan struct{}
	calls   atomic.Int32
	err     error
}

func (r *blockingResolver) Resolve(_ context.Context, url string) (*track.Descriptor, error) {
	r.calls.Add(1)
	if r.release != nil {
		<-r.release
	}
	if r.err != nil {
		return nil, r.err
	}
	return &track.Descriptor{Title: url, AudioURL: "audio:" + url}, nil
}

func TestGroup_Resolve(t *testing.T) {
	r := &blockingResolver{}
	g := NewGroup(r)

	d, shared, err := g.Resolve(context.Background(), track.Track{ID: "abc"})

	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, "abc", d.ID)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc", d.Title)
	assert.Equal(t, int64(1), g.Calls())
}

func TestGroup_Resolve_DeduplicatesInFlight(t *testing.T) {
	r := &blockingResolver{release: make(chan struct{})}
	g := NewGroup(r)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*track.Descriptor, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, _, err := g.Resolve(context.Background(), track.Track{ID: "same"})
			assert.NoError(t, err)
			results[i] = d
		}(i)
	}

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// Give the other callers time to join the flight.
	time.Sleep(20 * time.Millisecond)
	close(r.release)
	wg.Wait()

	assert.Equal(t, int32(1), r.calls.Load())
	for _, d := range results {
		assert.Same(t, results[0], d)
	}
}

func TestGroup_Resolve_DistinctIDs(t *testing.T) {
	r := &blockingResolver{}
	g := NewGroup(r)

	_, _, err := g.Resolve(context.Background(), track.Track{ID: "a"})
	require.NoError(t, err)
	_, _, err = g.Resolve(context.Background(), track.Track{ID: "b"})
	require.NoError(t, err)

	assert.Equal(t, int64(2), g.Calls())
}

func TestGroup_Resolve_Error(t *testing.T) {
	cause := errors.New("connection refused")
	g := NewGroup(&blockingResolver{err: cause})

	_, _, err := g.Resolve(context.Background(), track.Track{ID: "a"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "resolve track a")
}
