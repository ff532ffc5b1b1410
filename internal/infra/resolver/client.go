// Package resolver provides a client for the track resolver HTTP API.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nextwave/internal/domain/track"
)

var (
	// ErrUnavailable is returned when the resolver cannot be reached or fails.
	ErrUnavailable = errors.New("resolver unavailable")
	// ErrBadRequest is returned when the resolver rejects the request.
	ErrBadRequest = errors.New("bad resolver request")
)

// Config represents resolver client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is a resolver API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
}

// resolveResponse is the body of POST /resolve.
type resolveResponse struct {
	ID           string        `json:"id" validate:"required"`
	Title        string        `json:"title"`
	Duration     float64       `json:"duration" validate:"gte=0"`
	Thumbnail    string        `json:"thumbnail" validate:"omitempty,url"`
	AudioURL     string        `json:"audio_url" validate:"omitempty,url"`
	EmbedURL     string        `json:"embed_url" validate:"omitempty,url"`
	InvidiousURL string        `json:"invidious_url" validate:"omitempty,url"`
	Related      []summaryItem `json:"related"`
}

type summaryItem struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
}

// searchResponse is the body of GET /search.
type searchResponse struct {
	Query   string        `json:"query"`
	Results []summaryItem `json:"results"`
}

// errorResponse covers both {"detail": "..."} and {"error": "...", "detail": ...}.
type errorResponse struct {
	Error  string `json:"error"`
	Detail any    `json:"detail"`
}

// New creates a new resolver client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("resolver base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid resolver base URL %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		validate:   validator.New(),
	}, nil
}

// Resolve resolves a track page URL into a descriptor.
// A descriptor without any source is returned as is; deciding that it is
// unplayable is left to backend selection.
func (c *Client) Resolve(ctx context.Context, pageURL string) (*track.Descriptor, error) {
	if pageURL == "" {
		return nil, errors.Mark(errors.New("url is required"), ErrBadRequest)
	}

	body, err := json.Marshal(map[string]string{"url": pageURL})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/resolve", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")

	var response resolveResponse
	if err := c.do(req, &response); err != nil {
		return nil, err
	}
	if err := c.validate.Struct(response); err != nil {
		return nil, errors.Wrap(err, "invalid resolve response")
	}

	d := &track.Descriptor{
		ID:           response.ID,
		Title:        response.Title,
		Duration:     seconds(response.Duration),
		ThumbnailURL: response.Thumbnail,
		EmbedURL:     response.EmbedURL,
		AudioURL:     response.AudioURL,
		InvidiousURL: response.InvidiousURL,
		Related:      summaries(response.Related),
	}
	if d.ThumbnailURL == "" {
		d.ThumbnailURL = track.Track{ID: d.ID}.Thumbnail()
	}

	zlog.Debug().Msgf("resolver: resolved: id=%s embed=%t audio=%t invidious=%t related=%d",
		d.ID, d.EmbedURL != "", d.AudioURL != "", d.InvidiousURL != "", len(d.Related))
	return d, nil
}

// Search searches tracks.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Summary, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, errors.Mark(errors.New("search query must be at least 2 characters"), ErrBadRequest)
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	var response searchResponse
	if err := c.do(req, &response); err != nil {
		return nil, err
	}
	return summaries(response.Results), nil
}

// Health checks that the resolver is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	var response struct {
		Status string `json:"status"`
	}
	if err := c.do(req, &response); err != nil {
		return err
	}
	if response.Status != "healthy" && response.Status != "ok" {
		return errors.Mark(errors.Newf("resolver status: %s", response.Status), ErrUnavailable)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to send request"), ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to read response body"), ErrUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		err := errors.Newf("resolver returned %d: %s", resp.StatusCode, errorMessage(body))
		if resp.StatusCode >= 500 {
			return errors.Mark(err, ErrUnavailable)
		}
		return errors.Mark(err, ErrBadRequest)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err != nil {
		return strings.TrimSpace(string(body))
	}
	switch {
	case e.Detail != nil && e.Error != "":
		return fmt.Sprintf("%s: %v", e.Error, e.Detail)
	case e.Detail != nil:
		return fmt.Sprint(e.Detail)
	case e.Error != "":
		return e.Error
	default:
		return strings.TrimSpace(string(body))
	}
}

func summaries(items []summaryItem) []track.Summary {
	out := make([]track.Summary, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		s := track.Summary{
			ID:           it.ID,
			Title:        it.Title,
			Duration:     seconds(it.Duration),
			ThumbnailURL: it.Thumbnail,
		}
		if s.ThumbnailURL == "" {
			s.ThumbnailURL = track.Track{ID: it.ID}.Thumbnail()
		}
		out = append(out, s)
	}
	return out
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
