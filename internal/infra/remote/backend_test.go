package remote

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/nextwave/internal/app/backend"
	"github.com/osa030/nextwave/internal/app/notification"
	"github.com/osa030/nextwave/internal/app/playback"
	"github.com/osa030/nextwave/internal/domain/track"
)

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []*notification.Notification
	err  error
}

func (b *recordingBroadcaster) Broadcast(n *notification.Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.sent = append(b.sent, n)
	return nil
}

func (b *recordingBroadcaster) SubscriberCount() int { return 1 }

func (b *recordingBroadcaster) actions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.sent))
	for i, n := range b.sent {
		out[i] = n.Payload["action"].(string) + ":" + n.Payload["backend"].(string)
	}
	return out
}

func (b *recordingBroadcaster) last() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sent[len(b.sent)-1].Payload
}

func TestEmbedURL(t *testing.T) {
	got, err := EmbedURL("https://www.youtube.com/embed/abc?start=30&autoplay=0")
	require.NoError(t, err)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/embed/abc", u.Path)
	q := u.Query()
	assert.Equal(t, "30", q.Get("start"))
	assert.Equal(t, "0", q.Get("autoplay"))
	assert.Equal(t, "0", q.Get("rel"))
	assert.Equal(t, "1", q.Get("modestbranding"))
	assert.Equal(t, "3", q.Get("iv_load_policy"))
	assert.Equal(t, "1", q.Get("disablekb"))
	assert.Equal(t, "1", q.Get("fs"))
}

func TestEmbed_MountUnmount(t *testing.T) {
	b := &recordingBroadcaster{}
	primary := NewEmbed(backend.KindPrimaryEmbed, b)
	fallback := NewEmbed(backend.KindFallbackEmbed, b)

	require.NoError(t, primary.Mount(context.Background(), backend.MountRequest{
		Source: "https://www.youtube.com/embed/abc", Generation: 3, Title: "Song",
	}))
	assert.True(t, primary.Mounted())
	payload := b.last()
	assert.Equal(t, float64(3), payload["generation"])
	assert.Equal(t, "Song", payload["title"])
	assert.Contains(t, payload["source"], "modestbranding=1")

	require.NoError(t, fallback.Mount(context.Background(), backend.MountRequest{Source: "https://yewtu.be/embed/abc", Generation: 4}))
	assert.Equal(t, "https://yewtu.be/embed/abc", b.last()["source"])

	require.NoError(t, primary.Unmount())
	require.NoError(t, primary.Unmount())
	assert.False(t, primary.Mounted())

	assert.Equal(t, []string{"mount:primary_embed", "mount:fallback_embed", "unmount:primary_embed"}, b.actions())
}

func TestEmbed_MountErrors(t *testing.T) {
	b := &recordingBroadcaster{}
	e := NewEmbed(backend.KindFallbackEmbed, b)

	assert.Error(t, e.Mount(context.Background(), backend.MountRequest{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, e.Mount(ctx, backend.MountRequest{Source: "https://yewtu.be/embed/a"}))

	b.err = errors.New("stream closed")
	assert.Error(t, e.Mount(context.Background(), backend.MountRequest{Source: "https://yewtu.be/embed/a"}))
	assert.False(t, e.Mounted())
}

func TestAudio_Controls(t *testing.T) {
	b := &recordingBroadcaster{}
	a := NewAudio(b)

	assert.Error(t, a.Play())

	require.NoError(t, a.Mount(context.Background(), backend.MountRequest{Source: "https://media.example.com/a.webm", Generation: 7}))
	assert.Equal(t, "https://media.example.com/a.webm", b.last()["source"])
	require.NoError(t, a.SetVolume(0.5))
	assert.Equal(t, 0.5, b.last()["volume"])
	require.NoError(t, a.Play())
	require.NoError(t, a.Seek(90*time.Second))
	assert.Equal(t, float64(90), b.last()["position_sec"])
	assert.Equal(t, float64(7), b.last()["generation"])
	require.NoError(t, a.Pause())
	require.NoError(t, a.Unmount())

	assert.Equal(t, []string{
		"mount:direct_audio",
		"volume:direct_audio",
		"play:direct_audio",
		"seek:direct_audio",
		"pause:direct_audio",
		"unmount:direct_audio",
	}, b.actions())
}

func TestNewSet_DrivesSession(t *testing.T) {
	b := &recordingBroadcaster{}
	s := playback.NewSession(NewSet(b), playback.Config{Volume: 1})
	defer s.Close()
	ctx := context.Background()

	_, err := s.Load(ctx, track.Track{ID: "a"}, &track.Descriptor{ID: "a", EmbedURL: "https://www.youtube.com/embed/a"})
	require.NoError(t, err)
	_, err = s.Load(ctx, track.Track{ID: "b"}, &track.Descriptor{ID: "b", AudioURL: "https://media.example.com/b.webm"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"mount:primary_embed",
		"unmount:primary_embed",
		"mount:direct_audio",
		"volume:direct_audio",
		"play:direct_audio",
	}, b.actions())
}
