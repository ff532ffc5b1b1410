// Package resolve deduplicates in-flight track resolves by track ID.
package resolve

import (
	"context"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/nextwave/internal/domain/track"
)

// Resolver turns a track page URL into a descriptor.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*track.Descriptor, error)
}

// Group shares a single in-flight resolve per track ID between all callers.
type Group struct {
	resolver Resolver
	flight   singleflight.Group
	calls    atomic.Int64
}

// NewGroup creates a group over resolver.
func NewGroup(resolver Resolver) *Group {
	return &Group{resolver: resolver}
}

// Resolve resolves t, joining an outstanding resolve for the same ID if any.
// shared reports whether the result came from another caller's request.
func (g *Group) Resolve(ctx context.Context, t track.Track) (d *track.Descriptor, shared bool, err error) {
	v, err, shared := g.flight.Do(t.ID, func() (any, error) {
		g.calls.Add(1)
		zlog.Debug().Msgf("resolve: requesting: track=%s url=%s", t.ID, t.SourceURL())
		// Detached so one caller's cancellation does not fail the others.
		d, err := g.resolver.Resolve(context.WithoutCancel(ctx), t.SourceURL())
		if err != nil {
			return nil, errors.Wrapf(err, "resolve track %s", t.ID)
		}
		if d == nil {
			return nil, errors.Newf("resolve track %s: empty response", t.ID)
		}
		if d.ID == "" {
			d.ID = t.ID
		}
		return d, nil
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*track.Descriptor), shared, nil
}

// Calls returns how many resolves reached the resolver.
func (g *Group) Calls() int64 {
	return g.calls.Load()
}
