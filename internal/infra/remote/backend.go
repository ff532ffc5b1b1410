// Package remote provides playback backends that are rendered by a remote
// client. Every backend operation is broadcast as a command notification;
// the client reports readiness, progress and errors back as backend events.
package remote

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/nextwave/internal/app/backend"
	"github.com/osa030/nextwave/internal/app/notification"
)

// Command actions sent to the rendering client.
const (
	ActionMount   = "mount"
	ActionUnmount = "unmount"
	ActionPlay    = "play"
	ActionPause   = "pause"
	ActionSeek    = "seek"
	ActionVolume  = "volume"
)

// embedParams are appended to primary embed URLs.
var embedParams = [][2]string{
	{"rel", "0"},
	{"modestbranding", "1"},
	{"iv_load_policy", "3"},
	{"disablekb", "1"},
	{"fs", "1"},
	{"autoplay", "1"},
}

// Broadcaster delivers command notifications to rendering clients.
type Broadcaster interface {
	Broadcast(n *notification.Notification) error
	SubscriberCount() int
}

// Embed is a remote embed backend. It only mounts and unmounts.
type Embed struct {
	mu sync.Mutex

	kind        backend.Kind
	broadcaster Broadcaster
	generation  uint64
	mounted     bool
}

// NewEmbed creates a remote embed backend of the given kind.
func NewEmbed(kind backend.Kind, broadcaster Broadcaster) *Embed {
	return &Embed{kind: kind, broadcaster: broadcaster}
}

func (e *Embed) Kind() backend.Kind {
	return e.kind
}

func (e *Embed) Mount(ctx context.Context, req backend.MountRequest) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "mount canceled")
	}
	if req.Source == "" {
		return errors.New("source is required")
	}

	source := req.Source
	if e.kind == backend.KindPrimaryEmbed {
		var err error
		if source, err = EmbedURL(source); err != nil {
			return err
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.broadcaster.SubscriberCount() == 0 {
		zlog.Warn().Msgf("remote: mounting without a connected renderer: kind=%s generation=%d", e.kind, req.Generation)
	}
	if err := e.sendLocked(ActionMount, map[string]any{
		"source":     source,
		"title":      req.Title,
		"generation": float64(req.Generation),
	}); err != nil {
		return err
	}
	e.generation = req.Generation
	e.mounted = true
	return nil
}

func (e *Embed) Unmount() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.mounted {
		return nil
	}
	e.mounted = false
	return e.sendLocked(ActionUnmount, map[string]any{"generation": float64(e.generation)})
}

// Mounted reports whether the backend has a mounted source.
func (e *Embed) Mounted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mounted
}

func (e *Embed) sendLocked(action string, payload map[string]any) error {
	payload["action"] = action
	payload["backend"] = e.kind.String()
	if err := e.broadcaster.Broadcast(&notification.Notification{
		Type:    notification.TypeCommand,
		Payload: payload,
	}); err != nil {
		return errors.Wrapf(err, "send %s command", action)
	}
	zlog.Debug().Msgf("remote: command sent: action=%s kind=%s", action, e.kind)
	return nil
}

// Audio is the remote direct-audio backend.
type Audio struct {
	*Embed
}

// NewAudio creates the remote direct-audio backend.
func NewAudio(broadcaster Broadcaster) *Audio {
	return &Audio{Embed: NewEmbed(backend.KindDirectAudio, broadcaster)}
}

func (a *Audio) Play() error {
	return a.control(ActionPlay, map[string]any{})
}

func (a *Audio) Pause() error {
	return a.control(ActionPause, map[string]any{})
}

func (a *Audio) Seek(position time.Duration) error {
	return a.control(ActionSeek, map[string]any{"position_sec": position.Seconds()})
}

func (a *Audio) SetVolume(volume float64) error {
	return a.control(ActionVolume, map[string]any{"volume": volume})
}

func (a *Audio) control(action string, payload map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.mounted {
		return errors.Newf("%s: nothing mounted", action)
	}
	payload["generation"] = float64(a.generation)
	return a.sendLocked(action, payload)
}

// NewSet creates one remote backend per kind.
func NewSet(broadcaster Broadcaster) backend.Set {
	return backend.NewSet(
		NewEmbed(backend.KindPrimaryEmbed, broadcaster),
		NewAudio(broadcaster),
		NewEmbed(backend.KindFallbackEmbed, broadcaster),
	)
}

// EmbedURL appends the embed player parameters to source.
// Parameters already present on source are kept.
func EmbedURL(source string) (string, error) {
	u, err := url.Parse(source)
	if err != nil {
		return "", errors.Wrapf(err, "invalid embed url %q", source)
	}
	q := u.Query()
	for _, p := range embedParams {
		if !q.Has(p[0]) {
			q.Set(p[0], p[1])
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
