// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/nextwave/internal/domain/playlist"
	"github.com/osa030/nextwave/internal/domain/track"
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Resolver ResolverConfig          `yaml:"resolver"`
	Playback PlaybackConfig          `yaml:"playback"`
	Playlist PlaylistConfig          `yaml:"playlist"`
	Autofill AutofillConfig          `yaml:"autofill"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Messages MessagesConfig          `yaml:"messages"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Token string      `yaml:"token"` // Empty disables authentication
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// ResolverConfig represents the track resolver API configuration.
type ResolverConfig struct {
	BaseURL     string `yaml:"base_url" default:"http://localhost:8000/api" validate:"required,url"`
	TimeoutSec  int    `yaml:"timeout_sec" default:"30" validate:"gte=1,lte=300"`
	SearchLimit int    `yaml:"search_limit" default:"20" validate:"gte=1,lte=50"`
	WaitSec     int    `yaml:"wait_sec" default:"0" validate:"gte=0"` // Startup health wait, 0 skips the check
}

// PlaybackConfig represents playback configuration.
type PlaybackConfig struct {
	PreloadThresholdSec int     `yaml:"preload_threshold_sec" default:"15" validate:"gte=1,lte=300"`
	Volume              float64 `yaml:"volume" default:"1.0" validate:"gte=0,lte=1"`
	RepeatMode          string  `yaml:"repeat_mode" default:"none" validate:"oneof=none all one"`
	Shuffle             bool    `yaml:"shuffle"`
	Autoplay            bool    `yaml:"autoplay"`
	EventBuffer         int     `yaml:"event_buffer" default:"64" validate:"gte=1"`
	SendTimeoutMs       int     `yaml:"send_timeout_ms" default:"500" validate:"gte=10,lte=10000"`
}

// PlaylistConfig represents the startup playlist.
type PlaylistConfig struct {
	Name   string        `yaml:"name" default:"startup"`
	Tracks []TrackConfig `yaml:"tracks" validate:"dive"`
}

// TrackConfig represents a single configured track.
type TrackConfig struct {
	ID          string `yaml:"id" validate:"required"`
	Title       string `yaml:"title"`
	Artist      string `yaml:"artist"`
	DurationSec int    `yaml:"duration_sec" validate:"gte=0"`
	URL         string `yaml:"url" validate:"omitempty,url"`
}

// AutofillConfig represents queue autofill configuration.
type AutofillConfig struct {
	Enabled        bool             `yaml:"enabled"`
	CandidateCount int              `yaml:"candidate_count" default:"3" validate:"gte=1,lte=20"`
	Providers      []ProviderConfig `yaml:"providers" validate:"dive"`
}

// ProviderConfig represents a single autofill provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=related lastfm"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages.
type MessagesConfig struct {
	Success               string `yaml:"success" default:"Added to queue"`
	DefaultError          string `yaml:"default_error" default:"Request rejected"`
	AlreadyQueued         string `yaml:"already_queued" default:"Already in the queue"`
	DuplicateTrack        string `yaml:"duplicate_track" default:"Another version of this track is already queued"`
	DurationLimitExceeded string `yaml:"duration_limit_exceeded" default:"Track length is outside the allowed range"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("RESOLVER_BASE_URL"); v != "" {
		c.Resolver.BaseURL = v
	}
	if v := os.Getenv("PLAYER_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Autofill.Providers {
			if c.Autofill.Providers[i].Type == "lastfm" {
				if c.Autofill.Providers[i].Settings == nil {
					c.Autofill.Providers[i].Settings = make(map[string]any)
				}
				c.Autofill.Providers[i].Settings["api_key"] = v
				break
			}
		}
	}
}

// GetMessage returns the message for the given code.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "success":
		return c.Messages.Success
	case "already_queued":
		return c.Messages.AlreadyQueued
	case "duplicate_track":
		return c.Messages.DuplicateTrack
	case "duration_limit_exceeded":
		return c.Messages.DurationLimitExceeded
	default:
		return c.Messages.DefaultError
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	seen := make(map[string]bool, len(c.Playlist.Tracks))
	for _, t := range c.Playlist.Tracks {
		if seen[t.ID] {
			return errors.Newf("duplicate playlist track id: %s", t.ID)
		}
		seen[t.ID] = true
	}

	if c.Autofill.Enabled && len(c.Autofill.Providers) == 0 {
		return errors.New("autofill is enabled but no providers are configured")
	}
	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// ResolverTimeout returns the resolver HTTP timeout.
func (c *Config) ResolverTimeout() time.Duration {
	return time.Duration(c.Resolver.TimeoutSec) * time.Second
}

// PreloadThreshold returns the preload threshold.
func (c *Config) PreloadThreshold() time.Duration {
	return time.Duration(c.Playback.PreloadThresholdSec) * time.Second
}

// SendTimeout returns the notification send timeout.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Playback.SendTimeoutMs) * time.Millisecond
}

// StartupPlaylist returns the configured startup playlist, or nil if empty.
func (c *Config) StartupPlaylist() *playlist.Playlist {
	if len(c.Playlist.Tracks) == 0 {
		return nil
	}
	p := &playlist.Playlist{Name: c.Playlist.Name, Tracks: make([]track.Track, 0, len(c.Playlist.Tracks))}
	for _, t := range c.Playlist.Tracks {
		p.Tracks = append(p.Tracks, track.Track{
			ID:       t.ID,
			Title:    t.Title,
			Artist:   t.Artist,
			Duration: time.Duration(t.DurationSec) * time.Second,
			URL:      t.URL,
		})
	}
	return p
}
