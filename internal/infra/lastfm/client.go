// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Config represents Last.fm client configuration.
type Config struct {
	APIKey  string
	BaseURL string // Defaults to the public API
	Timeout time.Duration
}

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Similar tracks keyed by "artist:track"
	similarCache map[string][]Track
	cacheMu      sync.RWMutex
}

// Track is a track name and artist as known to Last.fm.
type Track struct {
	Name   string
	Artist string
}

// Query returns a free-text search query for the track.
func (t Track) Query() string {
	return strings.TrimSpace(t.Artist + " " + t.Name)
}

type trackList []struct {
	Name   string `json:"name"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
}

func (l trackList) tracks() []Track {
	out := make([]Track, 0, len(l))
	for _, t := range l {
		if t.Name == "" {
			continue
		}
		out = append(out, Track{Name: t.Name, Artist: t.Artist.Name})
	}
	return out
}

// similarResponse is the body of track.getSimilar.
type similarResponse struct {
	SimilarTracks struct {
		Track trackList `json:"track"`
	} `json:"similartracks"`
}

// chartResponse is the body of chart.getTopTracks.
type chartResponse struct {
	Tracks struct {
		Track trackList `json:"track"`
	} `json:"tracks"`
}

// apiError is the error body Last.fm returns, often with status 200.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		similarCache: make(map[string][]Track),
	}, nil
}

// GetSimilarTracks retrieves tracks similar to the given one.
// Reference: https://www.last.fm/api/show/track.getSimilar
func (c *Client) GetSimilarTracks(ctx context.Context, trackName, artistName string, limit int) ([]Track, error) {
	if trackName == "" || artistName == "" {
		return nil, errors.New("track name and artist name are required")
	}
	limit = clampLimit(limit)

	cacheKey := artistName + ":" + trackName
	c.cacheMu.RLock()
	cached, ok := c.similarCache[cacheKey]
	c.cacheMu.RUnlock()
	if ok && len(cached) >= limit {
		zlog.Debug().Msgf("lastfm: using cached similar tracks: artist=%s track=%s", artistName, trackName)
		return cached[:limit], nil
	}

	params := url.Values{}
	params.Set("method", "track.getSimilar")
	params.Set("artist", artistName)
	params.Set("track", trackName)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("autocorrect", "1")

	var response similarResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}
	tracks := response.SimilarTracks.Track.tracks()

	c.cacheMu.Lock()
	c.similarCache[cacheKey] = tracks
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("lastfm: cached similar tracks: artist=%s track=%s count=%d", artistName, trackName, len(tracks))

	return tracks, nil
}

// GetChartTopTracks retrieves global top tracks from Last.fm charts.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]Track, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", strconv.Itoa(clampLimit(limit)))

	var response chartResponse
	if err := c.get(ctx, params, &response); err != nil {
		return nil, err
	}
	return response.Tracks.Track.tracks(), nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != 0 {
		return errors.Newf("last.fm API error %d: %s", apiErr.Error, apiErr.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("last.fm returned %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return min(limit, 100)
}
