package autofill

import (
	"context"
	"math/rand/v2"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nextwave/internal/domain/track"
)

type RelatedProviderConfig struct {
	Pick     string `yaml:"pick" mapstructure:"pick" default:"first" validate:"oneof=first random"`
	MaxDepth int    `yaml:"max_depth" mapstructure:"max_depth" default:"10" validate:"gte=1,lte=50"`
}

// RelatedProvider continues with the related tracks of the last resolved track.
type RelatedProvider struct {
	config  *RelatedProviderConfig
	shuffle func(n int, swap func(i, j int))
}

// NewRelatedProvider creates a new RelatedProvider.
func NewRelatedProvider(settings map[string]any) (*RelatedProvider, error) {
	var config RelatedProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	zlog.Debug().Msgf("related provider config: %+v", config)
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}
	return &RelatedProvider{config: &config, shuffle: rand.Shuffle}, nil
}

// Candidates returns the first related tracks that are not excluded, in the
// resolver's order or shuffled when pick is random.
func (p *RelatedProvider) Candidates(ctx context.Context, count int, seed Seed, exclude map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	related := seed.Related
	if len(related) > p.config.MaxDepth {
		related = related[:p.config.MaxDepth]
	}

	available := make([]track.Track, 0, len(related))
	for _, s := range related {
		if s.ID == "" || exclude[s.ID] {
			continue
		}
		available = append(available, s.Track())
	}

	if p.config.Pick == "random" {
		p.shuffle(len(available), func(i, j int) {
			available[i], available[j] = available[j], available[i]
		})
	}
	return available[:min(count, len(available))], nil
}

// Name returns the provider name.
func (p *RelatedProvider) Name() string {
	return "related"
}
