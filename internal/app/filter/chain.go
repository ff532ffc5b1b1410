package filter

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Settings enables a filter and carries its raw configuration.
type Settings struct {
	Enabled  bool
	Settings map[string]any
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain() *Chain {
	return &Chain{
		filters: make([]Filter, 0),
	}
}

// NewChainFromSettings builds a chain from the enabled registered filters,
// in name order. Unknown names and invalid settings are errors.
func NewChainFromSettings(settings map[string]Settings, deps Deps) (*Chain, error) {
	c := NewChain()
	for name := range settings {
		if _, ok := registry[name]; !ok {
			return nil, errors.Newf("unknown filter: %s", name)
		}
	}
	for _, name := range Names() {
		s, ok := settings[name]
		if !ok || !s.Enabled {
			continue
		}
		f := registry[name](deps)
		if err := f.ValidateConfig(s.Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid settings for %s", name)
		}
		zlog.Info().Msgf("filter enabled: name=%s", name)
		c.Add(f)
	}
	return c, nil
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the request.
// Filters are only applied if they declare they apply to the request origin.
func (c *Chain) Execute(ctx context.Context, req Request) Result {
	for _, f := range c.filters {
		if !f.AppliesTo(req.Origin) {
			continue
		}

		result := f.Check(ctx, req)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
