package connect

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/nextwave/internal/app/backend/backendtest"
	"github.com/osa030/nextwave/internal/app/playback"
	"github.com/osa030/nextwave/internal/app/player"
	"github.com/osa030/nextwave/internal/app/queue"
	"github.com/osa030/nextwave/internal/app/resolve"
	"github.com/osa030/nextwave/internal/domain/track"
	"github.com/osa030/nextwave/internal/infra/config"
)

type stubResolver struct {
	descs map[string]*track.Descriptor
}

func (r *stubResolver) Resolve(_ context.Context, url string) (*track.Descriptor, error) {
	d, ok := r.descs[url]
	if !ok {
		return nil, errors.Newf("not found: %s", url)
	}
	c := *d
	return &c, nil
}

type stubSearcher struct{}

func (stubSearcher) Search(_ context.Context, query string, limit int) ([]track.Summary, error) {
	return []track.Summary{{ID: "s1", Title: query, Duration: 90 * time.Second}}, nil
}

func (stubSearcher) Health(context.Context) error { return nil }

type testServer struct {
	client *PlayerClient
	player *player.Manager
	fakes  *backendtest.Set
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()

	cfg, err := config.Parse([]byte("{}"))
	require.NoError(t, err)

	fakes := backendtest.NewSet()
	r := &stubResolver{descs: map[string]*track.Descriptor{
		"https://www.youtube.com/watch?v=a": {ID: "a", Duration: 200 * time.Second, AudioURL: "https://media.example.com/a"},
		"https://www.youtube.com/watch?v=b": {ID: "b", Duration: 200 * time.Second, EmbedURL: "https://www.youtube.com/embed/b"},
		"https://www.youtube.com/watch?v=x": {ID: "x"},
	}}
	p := player.NewManager(player.Config{}, player.Deps{
		Session:  playback.NewSession(fakes.Backends(), playback.Config{Volume: 1}),
		Queue:    queue.New(),
		Resolver: resolve.NewGroup(r),
		Searcher: stubSearcher{},
	})
	t.Cleanup(p.Close)

	var opts []connect.HandlerOption
	if token != "" {
		opts = append(opts, connect.WithInterceptors(NewAuthInterceptor(token)))
	}
	mux := http.NewServeMux()
	path, handler := NewPlayerServiceHandler(NewPlayerService(p, cfg), opts...)
	mux.Handle(path, handler)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testServer{
		client: NewPlayerClient(server.Client(), server.URL),
		player: p,
		fakes:  fakes,
	}
}

func TestPlayerService_EnqueueAndStatus(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	res, err := s.client.Call(ctx, PlayerServiceEnqueueProcedure, map[string]any{"id": "a", "title": "Song A", "duration_sec": 200}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res["added"])
	assert.Equal(t, true, res["started"])
	assert.Equal(t, "Added to queue", res["message"])

	res, err = s.client.Call(ctx, PlayerServiceEnqueueProcedure, map[string]any{"id": "a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, false, res["added"])
	assert.Equal(t, "already_queued", res["code"])
	assert.Equal(t, "Already in the queue", res["message"])

	status, err := s.client.Call(ctx, PlayerServiceGetStatusProcedure, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "loading", status["state"])
	assert.Equal(t, "direct_audio", status["backend"])
	assert.Equal(t, "a", status["track"].(map[string]any)["id"])
	assert.Len(t, status["queue"], 1)
}

func TestPlayerService_ReportDrivesPlayback(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	_, err := s.client.Call(ctx, PlayerServiceEnqueueProcedure, map[string]any{"id": "a"}, nil)
	require.NoError(t, err)
	_, err = s.client.Call(ctx, PlayerServiceEnqueueProcedure, map[string]any{"id": "b"}, nil)
	require.NoError(t, err)
	gen := s.player.GetStatus().Playback.Generation

	status, err := s.client.Call(ctx, PlayerServiceReportProcedure, map[string]any{"type": "ready", "generation": float64(gen)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "playing", status["state"])

	status, err = s.client.Call(ctx, PlayerServiceReportProcedure, map[string]any{
		"type": "progress", "generation": float64(gen), "position_sec": 42.5, "duration_sec": 200,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42.5, status["elapsed_sec"])

	status, err = s.client.Call(ctx, PlayerServiceReportProcedure, map[string]any{"type": "ended", "generation": float64(gen)}, nil)
	require.NoError(t, err)
	assert.Equal(t, "primary_embed", status["backend"])
	assert.Equal(t, "b", status["track"].(map[string]any)["id"])

	status, err = s.client.Call(ctx, PlayerServiceReportProcedure, map[string]any{
		"type": "error", "generation": status["generation"], "error": "embed blocked",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "error", status["state"])
	assert.Contains(t, status["error"], "embed blocked")
}

func TestPlayerService_ErrorCodes(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	tests := []struct {
		name      string
		procedure string
		msg       map[string]any
		code      connect.Code
	}{
		{name: "play empty queue", procedure: PlayerServicePlayProcedure, code: connect.CodeFailedPrecondition},
		{name: "pause nothing loaded", procedure: PlayerServicePauseProcedure, code: connect.CodeFailedPrecondition},
		{name: "enqueue without id", procedure: PlayerServiceEnqueueProcedure, msg: map[string]any{"title": "x"}, code: connect.CodeInvalidArgument},
		{name: "select out of range", procedure: PlayerServiceSelectProcedure, msg: map[string]any{"index": 5}, code: connect.CodeInvalidArgument},
		{name: "seek without position", procedure: PlayerServiceSeekProcedure, code: connect.CodeInvalidArgument},
		{name: "bad repeat mode", procedure: PlayerServiceSetRepeatModeProcedure, msg: map[string]any{"mode": "twice"}, code: connect.CodeInvalidArgument},
		{name: "unknown event", procedure: PlayerServiceReportProcedure, msg: map[string]any{"type": "buffering"}, code: connect.CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.client.Call(ctx, tt.procedure, tt.msg, nil)
			require.Error(t, err)
			assert.Equal(t, tt.code, connect.CodeOf(err))
		})
	}
}

func TestPlayerService_NoPlayableSource(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	res, err := s.client.Call(ctx, PlayerServiceEnqueueProcedure, map[string]any{"id": "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res["added"])
	assert.Contains(t, res["error"], "no playable source")

	_, err = s.client.Call(ctx, PlayerServicePlayProcedure, nil, nil)
	require.Error(t, err)
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
	assert.Equal(t, playback.StateError, s.player.GetStatus().Playback.State)
}

func TestPlayerService_QueueControls(t *testing.T) {
	s := newTestServer(t, "")
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		_, err := s.client.Call(ctx, PlayerServiceEnqueueProcedure, map[string]any{"id": id}, nil)
		require.NoError(t, err)
	}

	status, err := s.client.Call(ctx, PlayerServiceSetRepeatModeProcedure, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "all", status["repeat_mode"])
	status, err = s.client.Call(ctx, PlayerServiceSetRepeatModeProcedure, map[string]any{"mode": "one"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "one", status["repeat_mode"])

	status, err = s.client.Call(ctx, PlayerServiceSelectProcedure, map[string]any{"index": 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(1), status["current_index"])
	assert.Equal(t, "primary_embed", status["backend"])

	status, err = s.client.Call(ctx, PlayerServiceSetShuffleProcedure, map[string]any{"enabled": true}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, status["shuffle"])

	status, err = s.client.Call(ctx, PlayerServiceSetVolumeProcedure, map[string]any{"volume": 3}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, status["volume"])

	res, err := s.client.Call(ctx, PlayerServiceRemoveProcedure, map[string]any{"id": "a"}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, res["removed"])
}

func TestPlayerService_Search(t *testing.T) {
	s := newTestServer(t, "")

	res, err := s.client.Call(context.Background(), PlayerServiceSearchProcedure, map[string]any{"query": "lofi"}, nil)
	require.NoError(t, err)
	results := res["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, "lofi", results[0].(map[string]any)["title"])
	assert.Equal(t, float64(90), results[0].(map[string]any)["duration_sec"])

	res, err = s.client.Call(context.Background(), PlayerServiceHealthProcedure, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "healthy", res["status"])
}

func TestPlayerService_Auth(t *testing.T) {
	s := newTestServer(t, "secret")
	ctx := context.Background()

	_, err := s.client.Call(ctx, PlayerServiceGetStatusProcedure, nil, nil)
	require.Error(t, err)
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = s.client.Call(ctx, PlayerServiceGetStatusProcedure, nil, http.Header{PlayerTokenHeader: []string{"wrong"}})
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = s.client.Call(ctx, PlayerServiceGetStatusProcedure, nil, http.Header{PlayerTokenHeader: []string{"secret"}})
	assert.NoError(t, err)
}

func TestPlayerService_SubscribeNotifications(t *testing.T) {
	s := newTestServer(t, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := s.client.Subscribe(ctx, map[string]any{"types": []any{"status", "command"}}, nil)
	require.NoError(t, err)
	defer stream.Close()

	require.True(t, stream.Receive())
	first := stream.Msg().AsMap()
	assert.Equal(t, "status", first["type"])
	assert.Equal(t, true, first["payload"].(map[string]any)["initial"])

	require.Eventually(t, func() bool {
		return s.player.GetNotificationManager().SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	_, err = s.client.Call(ctx, PlayerServiceEnqueueProcedure, map[string]any{"id": "a"}, nil)
	require.NoError(t, err)

	sawLoading := false
	for !sawLoading && stream.Receive() {
		msg := stream.Msg().AsMap()
		payload := msg["payload"].(map[string]any)
		if msg["type"] == "status" && payload["state"] == "loading" {
			sawLoading = true
			assert.Equal(t, "direct_audio", payload["backend"])
		}
	}
	assert.True(t, sawLoading)
	assert.Equal(t, []string{"mount:direct_audio", "volume:direct_audio:1.00", "play:direct_audio"}, s.fakes.Log.Calls())
}
