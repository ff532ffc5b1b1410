package autofill

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nextwave/internal/domain/track"
)

// Candidate is a track with the display name of the provider that found it.
type Candidate struct {
	Track       track.Track
	DisplayName string
}

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// ProviderChain asks providers in order until enough candidates are found.
type ProviderChain struct {
	providers []ProviderWithMetadata
}

// NewProviderChain creates a new provider chain.
func NewProviderChain(providers []ProviderWithMetadata) *ProviderChain {
	return &ProviderChain{
		providers: providers,
	}
}

// Candidates collects up to count candidates. A failing provider is skipped;
// later providers never return a track an earlier one already picked.
func (c *ProviderChain) Candidates(ctx context.Context, count int, seed Seed, exclude map[string]bool) ([]Candidate, error) {
	var all []Candidate
	currentExclude := make(map[string]bool, len(exclude))
	for k, v := range exclude {
		currentExclude[k] = v
	}

	failures := 0
	for i, pm := range c.providers {
		if len(all) >= count {
			break
		}
		zlog.Debug().Msgf("autofill: trying provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		tracks, err := pm.Provider.Candidates(ctx, count-len(all), seed, currentExclude)
		if err != nil {
			failures++
			zlog.Warn().Msgf("autofill: provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			continue
		}
		if len(tracks) == 0 {
			zlog.Debug().Msgf("autofill: provider returned no candidates: provider=%s", pm.DisplayName)
			continue
		}

		for _, t := range tracks {
			all = append(all, Candidate{Track: t, DisplayName: pm.DisplayName})
			currentExclude[t.ID] = true
		}
		zlog.Info().Msgf("autofill: provider returned candidates: provider=%s count=%d total_so_far=%d",
			pm.DisplayName, len(tracks), len(all))
	}

	if len(all) == 0 && failures > 0 && failures == len(c.providers) {
		return nil, errors.New("all autofill providers failed")
	}
	return all, nil
}

// Name returns the chain name.
func (c *ProviderChain) Name() string {
	return "provider_chain"
}
