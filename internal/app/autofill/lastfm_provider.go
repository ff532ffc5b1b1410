package autofill

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nextwave/internal/domain/track"
	"github.com/osa030/nextwave/internal/infra/lastfm"
)

// LastFmClient defines the Last.fm operations the provider needs.
type LastFmClient interface {
	GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]lastfm.Track, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.Track, error)
}

type LastFmProviderConfig struct {
	APIKey       string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	SimilarLimit int    `yaml:"similar_limit" mapstructure:"similar_limit" default:"20" validate:"gte=1,lte=100"`
	ChartLimit   int    `yaml:"chart_limit" mapstructure:"chart_limit" default:"50" validate:"gte=1,lte=100"`
}

// LastFmProvider picks tracks similar to the last played one on Last.fm and
// looks each of them up through the resolver search. Without a usable seed
// it falls back to the global charts.
type LastFmProvider struct {
	lastfm   LastFmClient
	searcher Searcher
	config   *LastFmProviderConfig
	shuffle  func(n int, swap func(i, j int))

	// Search results keyed by query, nil when nothing was found
	searchCache map[string]*track.Track
	cacheMu     sync.RWMutex
}

// NewLastFmProvider creates a new LastFmProvider.
func NewLastFmProvider(searcher Searcher, settings map[string]any) (*LastFmProvider, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey, BaseURL: config.BaseURL})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return newLastFmProvider(client, searcher, &config), nil
}

func newLastFmProvider(client LastFmClient, searcher Searcher, config *LastFmProviderConfig) *LastFmProvider {
	return &LastFmProvider{
		lastfm:      client,
		searcher:    searcher,
		config:      config,
		shuffle:     rand.Shuffle,
		searchCache: make(map[string]*track.Track),
	}
}

// Candidates returns up to count searchable tracks similar to the seed.
func (p *LastFmProvider) Candidates(ctx context.Context, count int, seed Seed, exclude map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	var (
		pool []lastfm.Track
		err  error
	)
	if seed.Track != nil && seed.Track.Artist != "" && seed.Track.Title != "" {
		pool, err = p.lastfm.GetSimilarTracks(ctx, seed.Track.Title, seed.Track.Artist, p.config.SimilarLimit)
		if err != nil {
			zlog.Warn().Msgf("lastfm provider: similar tracks failed, using charts: track=%s error=%v", seed.Track.ID, err)
		}
	}
	if len(pool) == 0 {
		pool, err = p.lastfm.GetChartTopTracks(ctx, p.config.ChartLimit)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get chart top tracks")
		}
	}

	// Shuffle so that repeated fills from the same seed vary
	p.shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	seen := make(map[string]bool)
	result := make([]track.Track, 0, count)
	for _, lt := range pool {
		if len(result) >= count {
			break
		}
		t := p.search(ctx, lt)
		if t == nil || exclude[t.ID] || seen[t.ID] {
			continue
		}
		seen[t.ID] = true
		result = append(result, *t)
	}
	return result, nil
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}

// search looks up a Last.fm track through the searcher, with caching.
func (p *LastFmProvider) search(ctx context.Context, lt lastfm.Track) *track.Track {
	query := lt.Query()

	p.cacheMu.RLock()
	cached, ok := p.searchCache[query]
	p.cacheMu.RUnlock()
	if ok {
		return cached
	}

	var found *track.Track
	results, err := p.searcher.Search(ctx, query, 1)
	if err != nil {
		zlog.Debug().Msgf("lastfm provider: search failed: query=%q error=%v", query, err)
		// Not cached so a later fill can retry
		return nil
	}
	if len(results) > 0 {
		t := results[0].Track()
		t.Artist = lt.Artist
		found = &t
	}

	p.cacheMu.Lock()
	p.searchCache[query] = found
	p.cacheMu.Unlock()
	return found
}
