package autofill

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nextwave/internal/infra/config"
)

// NewProviderChainFromConfig creates a provider chain from configuration.
func NewProviderChainFromConfig(cfg *config.Config, searcher Searcher) (*ProviderChain, error) {
	if len(cfg.Autofill.Providers) == 0 {
		return nil, errors.New("no autofill providers configured")
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Autofill.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("creating autofill provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "related":
			provider, err = NewRelatedProvider(pcfg.Settings)

		case "lastfm":
			provider, err = NewLastFmProvider(searcher, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("registered autofill provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewProviderChain(providers), nil
}
