package playback

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/nextwave/internal/app/backend"
	"github.com/osa030/nextwave/internal/app/backend/backendtest"
	"github.com/osa030/nextwave/internal/domain/track"
)

func newTestSession(t *testing.T) (*Session, *backendtest.Set) {
	t.Helper()
	fakes := backendtest.NewSet()
	s := NewSession(fakes.Backends(), Config{Volume: 0.8, EventBuffer: 64})
	t.Cleanup(s.Close)
	return s, fakes
}

func audioDescriptor(id string) *track.Descriptor {
	return &track.Descriptor{ID: id, Title: "Track " + id, Duration: 200 * time.Second, AudioURL: "audio-" + id}
}

func embedDescriptor(id string) *track.Descriptor {
	return &track.Descriptor{ID: id, Title: "Track " + id, Duration: 200 * time.Second, EmbedURL: "embed-" + id}
}

func TestSession_InitialState(t *testing.T) {
	s, _ := newTestSession(t)

	st := s.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, backend.KindNone, st.Kind)
	assert.Nil(t, st.Track)
	assert.Equal(t, 0.8, st.Volume)
	assert.ErrorIs(t, s.Play(), ErrNoTrack)
	assert.ErrorIs(t, s.Seek(time.Second), ErrNoTrack)
}

func TestSession_Load_DirectAudioWaitsForReady(t *testing.T) {
	s, fakes := newTestSession(t)

	res, err := s.Load(context.Background(), track.Track{ID: "a"}, audioDescriptor("a"))
	require.NoError(t, err)

	assert.Equal(t, backend.KindDirectAudio, res.Selection.Kind)
	assert.Equal(t, StateLoading, s.State())
	assert.True(t, fakes.Audio.Mounted())
	assert.True(t, fakes.Audio.Playing())
	assert.Equal(t, 0.8, fakes.Audio.Volume())

	require.NoError(t, s.Handle(backend.Event{Type: backend.EventReady, Generation: res.Generation}))
	assert.Equal(t, StatePlaying, s.State())
}

func TestSession_Load_EmbedIsPlayingImmediately(t *testing.T) {
	s, fakes := newTestSession(t)

	res, err := s.Load(context.Background(), track.Track{ID: "a"}, embedDescriptor("a"))
	require.NoError(t, err)

	st := s.Status()
	assert.Equal(t, backend.KindPrimaryEmbed, res.Selection.Kind)
	assert.Equal(t, StatePlaying, st.State)
	assert.True(t, st.SimulatedPlaying)
	assert.True(t, st.Playing())
	assert.True(t, fakes.Primary.Mounted())
	assert.Equal(t, "embed-a", fakes.Primary.Requests()[0].Source)
}

func TestSession_Load_UnmountsBeforeMount(t *testing.T) {
	tests := []struct {
		name     string
		first    *track.Descriptor
		second   *track.Descriptor
		expected []string
	}{
		{
			name:   "embed then audio",
			first:  embedDescriptor("a"),
			second: audioDescriptor("b"),
			expected: []string{
				"mount:primary_embed",
				"unmount:primary_embed",
				"mount:direct_audio",
				"volume:direct_audio:0.80",
				"play:direct_audio",
			},
		},
		{
			name:   "audio then audio",
			first:  audioDescriptor("a"),
			second: audioDescriptor("b"),
			expected: []string{
				"mount:direct_audio",
				"volume:direct_audio:0.80",
				"play:direct_audio",
				"unmount:direct_audio",
				"mount:direct_audio",
				"volume:direct_audio:0.80",
				"play:direct_audio",
			},
		},
		{
			name:   "fallback then primary",
			first:  &track.Descriptor{ID: "a", InvidiousURL: "inv"},
			second: embedDescriptor("b"),
			expected: []string{
				"mount:fallback_embed",
				"unmount:fallback_embed",
				"mount:primary_embed",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, fakes := newTestSession(t)
			ctx := context.Background()

			_, err := s.Load(ctx, track.Track{ID: tt.first.ID}, tt.first)
			require.NoError(t, err)
			_, err = s.Load(ctx, track.Track{ID: tt.second.ID}, tt.second)
			require.NoError(t, err)

			assert.Equal(t, tt.expected, fakes.Log.Calls())
		})
	}
}

func TestSession_Load_NoPlayableSource(t *testing.T) {
	s, fakes := newTestSession(t)
	ctx := context.Background()

	_, err := s.Load(ctx, track.Track{ID: "a"}, embedDescriptor("a"))
	require.NoError(t, err)

	_, err = s.Load(ctx, track.Track{ID: "b"}, &track.Descriptor{ID: "b"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrNoPlayableSource))

	st := s.Status()
	assert.Equal(t, StateError, st.State)
	assert.Equal(t, backend.KindNone, st.Kind)
	assert.Equal(t, "b", st.Track.ID)
	assert.True(t, errors.Is(st.Err, backend.ErrNoPlayableSource))
	assert.False(t, fakes.Primary.Mounted())

	// Error is not terminal.
	_, err = s.Load(ctx, track.Track{ID: "c"}, audioDescriptor("c"))
	require.NoError(t, err)
	assert.Equal(t, StateLoading, s.State())
	assert.Nil(t, s.Status().Err)
}

func TestSession_Load_MountFailure(t *testing.T) {
	s, fakes := newTestSession(t)
	fakes.Primary.MountErr = errors.New("iframe refused")

	_, err := s.Load(context.Background(), track.Track{ID: "a"}, embedDescriptor("a"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackendMount))
	assert.Equal(t, StateError, s.State())
	assert.Equal(t, backend.KindNone, s.Status().Kind)
}

func TestSession_Load_MissingBackend(t *testing.T) {
	fakes := backendtest.NewSet()
	s := NewSession(backend.NewSet(fakes.Audio), Config{Volume: 1})
	defer s.Close()

	_, err := s.Load(context.Background(), track.Track{ID: "a"}, embedDescriptor("a"))

	assert.True(t, errors.Is(err, ErrBackendMount))
	assert.Equal(t, StateError, s.State())
}

func TestSession_Fail(t *testing.T) {
	s, fakes := newTestSession(t)
	ctx := context.Background()
	_, err := s.Load(ctx, track.Track{ID: "a"}, audioDescriptor("a"))
	require.NoError(t, err)
	gen := s.Generation()

	err = s.Fail(track.Track{ID: "b"}, errors.Mark(errors.New("timeout"), ErrResolve))

	assert.True(t, errors.Is(err, ErrResolve))
	assert.Equal(t, StateError, s.State())
	assert.False(t, fakes.Audio.Mounted())
	assert.Greater(t, s.Generation(), gen)
}

func TestSession_EmbedControlsAreSimulated(t *testing.T) {
	s, fakes := newTestSession(t)
	_, err := s.Load(context.Background(), track.Track{ID: "a"}, embedDescriptor("a"))
	require.NoError(t, err)
	fakes.Log.Reset()

	require.NoError(t, s.Pause())
	assert.False(t, s.Status().SimulatedPlaying)
	assert.Equal(t, StatePlaying, s.State())

	require.NoError(t, s.Toggle())
	assert.True(t, s.Status().SimulatedPlaying)

	require.NoError(t, s.Seek(30*time.Second))
	require.NoError(t, s.Restart())
	v, err := s.SetVolume(0.3)
	require.NoError(t, err)
	assert.Equal(t, 0.3, v)

	assert.Empty(t, fakes.Log.Calls())
	assert.Equal(t, time.Duration(0), s.Status().Elapsed)
}

func TestSession_DirectAudioControls(t *testing.T) {
	s, fakes := newTestSession(t)
	res, err := s.Load(context.Background(), track.Track{ID: "a"}, audioDescriptor("a"))
	require.NoError(t, err)
	require.NoError(t, s.Handle(backend.Event{Type: backend.EventReady, Generation: res.Generation}))

	require.NoError(t, s.Toggle())
	assert.False(t, fakes.Audio.Playing())
	// State follows the backend confirmation.
	assert.Equal(t, StatePlaying, s.State())
	require.NoError(t, s.Handle(backend.Event{Type: backend.EventPaused, Generation: res.Generation}))
	assert.Equal(t, StatePaused, s.State())

	require.NoError(t, s.Toggle())
	assert.True(t, fakes.Audio.Playing())
	require.NoError(t, s.Handle(backend.Event{Type: backend.EventPlaying, Generation: res.Generation}))
	assert.Equal(t, StatePlaying, s.State())

	require.NoError(t, s.Seek(500*time.Second))
	assert.Equal(t, 200*time.Second, fakes.Audio.Position())
	require.NoError(t, s.Seek(-time.Second))
	assert.Equal(t, time.Duration(0), fakes.Audio.Position())

	v, err := s.SetVolume(1.7)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
	assert.Equal(t, 1.0, fakes.Audio.Volume())

	v, err = s.SetVolume(-2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestSession_Restart(t *testing.T) {
	s, fakes := newTestSession(t)
	res, err := s.Load(context.Background(), track.Track{ID: "a"}, audioDescriptor("a"))
	require.NoError(t, err)
	require.NoError(t, s.Handle(backend.Event{Type: backend.EventProgress, Generation: res.Generation, Position: 190 * time.Second, Duration: 200 * time.Second}))
	require.NoError(t, s.Handle(backend.Event{Type: backend.EventEnded, Generation: res.Generation}))
	assert.Equal(t, StateEnded, s.State())
	fakes.Log.Reset()

	require.NoError(t, s.Restart())

	assert.Equal(t, []string{"seek:direct_audio:0s", "play:direct_audio"}, fakes.Log.Calls())
	require.NoError(t, s.Handle(backend.Event{Type: backend.EventPlaying, Generation: res.Generation}))
	assert.Equal(t, StatePlaying, s.State())
	assert.Equal(t, time.Duration(0), s.Status().Elapsed)
}

func TestSession_EndedIgnoresPlayingWithoutRestart(t *testing.T) {
	tests := []struct {
		name       string
		generation func(res LoadResult) uint64
	}{
		{name: "current generation", generation: func(res LoadResult) uint64 { return res.Generation }},
		{name: "unversioned report", generation: func(LoadResult) uint64 { return 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t)
			res, err := s.Load(context.Background(), track.Track{ID: "a"}, audioDescriptor("a"))
			require.NoError(t, err)
			require.NoError(t, s.Handle(backend.Event{Type: backend.EventReady, Generation: res.Generation}))
			require.NoError(t, s.Handle(backend.Event{Type: backend.EventEnded, Generation: res.Generation}))
			require.Equal(t, StateEnded, s.State())

			require.NoError(t, s.Handle(backend.Event{Type: backend.EventPlaying, Generation: tt.generation(res)}))
			assert.Equal(t, StateEnded, s.State())

			// A restart lets the next playing report through, once.
			require.NoError(t, s.Restart())
			require.NoError(t, s.Handle(backend.Event{Type: backend.EventPlaying, Generation: tt.generation(res)}))
			assert.Equal(t, StatePlaying, s.State())

			require.NoError(t, s.Handle(backend.Event{Type: backend.EventEnded, Generation: res.Generation}))
			require.NoError(t, s.Handle(backend.Event{Type: backend.EventPlaying, Generation: tt.generation(res)}))
			assert.Equal(t, StateEnded, s.State())
		})
	}
}

func TestSession_Handle(t *testing.T) {
	s, _ := newTestSession(t)
	res, err := s.Load(context.Background(), track.Track{ID: "a"}, audioDescriptor("a"))
	require.NoError(t, err)
	gen := res.Generation

	require.NoError(t, s.Handle(backend.Event{Type: backend.EventProgress, Generation: gen, Position: 42 * time.Second, Duration: 180 * time.Second}))
	st := s.Status()
	assert.Equal(t, 42*time.Second, st.Elapsed)
	assert.Equal(t, 180*time.Second, st.Total)
	assert.Equal(t, 138*time.Second, st.Remaining())

	require.NoError(t, s.Handle(backend.Event{Type: backend.EventEnded, Generation: gen}))
	assert.Equal(t, StateEnded, s.State())

	err = s.Handle(backend.Event{Type: backend.EventError, Generation: gen, Err: errors.New("decode")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackend))
	assert.Equal(t, StateError, s.State())
}

func TestSession_Handle_DropsStaleGeneration(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()
	first, err := s.Load(ctx, track.Track{ID: "a"}, audioDescriptor("a"))
	require.NoError(t, err)
	_, err = s.Load(ctx, track.Track{ID: "b"}, audioDescriptor("b"))
	require.NoError(t, err)

	require.NoError(t, s.Handle(backend.Event{Type: backend.EventEnded, Generation: first.Generation}))
	require.NoError(t, s.Handle(backend.Event{Type: backend.EventError, Generation: first.Generation, Err: errors.New("old")}))

	assert.Equal(t, StateLoading, s.State())
	assert.Equal(t, "b", s.Status().Track.ID)
}

func TestSession_EmbedProgressIsIgnored(t *testing.T) {
	s, _ := newTestSession(t)
	res, err := s.Load(context.Background(), track.Track{ID: "a"}, embedDescriptor("a"))
	require.NoError(t, err)

	require.NoError(t, s.Handle(backend.Event{Type: backend.EventProgress, Generation: res.Generation, Position: 10 * time.Second, Duration: 200 * time.Second}))

	st := s.Status()
	assert.Equal(t, time.Duration(0), st.Elapsed)
	assert.Equal(t, time.Duration(0), st.Total)
}

func TestSession_Preload(t *testing.T) {
	s, fakes := newTestSession(t)
	ctx := context.Background()

	s.Preload("audio-b")
	assert.Equal(t, "audio-b", s.PendingSource())
	assert.False(t, fakes.Audio.Mounted())

	res, err := s.Load(ctx, track.Track{ID: "b"}, audioDescriptor("b"))
	require.NoError(t, err)
	assert.True(t, res.Preloaded)
	assert.Empty(t, s.PendingSource())

	s.Preload("audio-x")
	res, err = s.Load(ctx, track.Track{ID: "c"}, audioDescriptor("c"))
	require.NoError(t, err)
	assert.False(t, res.Preloaded)
	assert.Empty(t, s.PendingSource())
}

func TestSession_Events(t *testing.T) {
	s, _ := newTestSession(t)

	_, err := s.Load(context.Background(), track.Track{ID: "a"}, embedDescriptor("a"))
	require.NoError(t, err)

	ev := <-s.Events()
	assert.Equal(t, EventTrackLoaded, ev.Type)
	assert.Equal(t, "a", ev.Status.Track.ID)
	ev = <-s.Events()
	assert.Equal(t, EventStateChanged, ev.Type)
	assert.Equal(t, StatePlaying, ev.Status.State)
}

func TestSession_Reset(t *testing.T) {
	s, fakes := newTestSession(t)
	_, err := s.Load(context.Background(), track.Track{ID: "a"}, audioDescriptor("a"))
	require.NoError(t, err)

	s.Reset()

	st := s.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Nil(t, st.Track)
	assert.False(t, fakes.Audio.Mounted())
	assert.ErrorIs(t, s.Pause(), ErrNoTrack)
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	fakes := backendtest.NewSet()
	s := NewSession(fakes.Backends(), Config{Volume: 1})
	_, err := s.Load(context.Background(), track.Track{ID: "a"}, embedDescriptor("a"))
	require.NoError(t, err)

	s.Close()
	s.Close()

	assert.False(t, fakes.Primary.Mounted())
}
