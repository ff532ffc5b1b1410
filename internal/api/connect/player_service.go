package connect

import (
	"context"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/osa030/nextwave/internal/app/backend"
	"github.com/osa030/nextwave/internal/app/filter"
	"github.com/osa030/nextwave/internal/app/notification"
	"github.com/osa030/nextwave/internal/app/player"
	"github.com/osa030/nextwave/internal/app/queue"
	"github.com/osa030/nextwave/internal/domain/track"
	"github.com/osa030/nextwave/internal/infra/config"
)

var validate = validator.New()

type statusRequest struct {
	CheckResolver bool `mapstructure:"check_resolver"`
}

type seekRequest struct {
	PositionSec *float64 `mapstructure:"position_sec" validate:"required,gte=0"`
}

type volumeRequest struct {
	Volume *float64 `mapstructure:"volume" validate:"required"`
}

type enqueueRequest struct {
	ID           string  `mapstructure:"id" validate:"required"`
	Title        string  `mapstructure:"title"`
	Artist       string  `mapstructure:"artist"`
	DurationSec  float64 `mapstructure:"duration_sec" validate:"gte=0"`
	ThumbnailURL string  `mapstructure:"thumbnail_url" validate:"omitempty,url"`
	URL          string  `mapstructure:"url" validate:"omitempty,url"`
	Origin       string  `mapstructure:"origin" validate:"omitempty,oneof=user playlist related"`
}

type selectRequest struct {
	Index *int `mapstructure:"index" validate:"required,gte=0"`
}

type removeRequest struct {
	ID string `mapstructure:"id" validate:"required"`
}

type shuffleRequest struct {
	Enabled *bool `mapstructure:"enabled" validate:"required"`
}

type repeatRequest struct {
	Mode string `mapstructure:"mode" validate:"omitempty,oneof=none off all one"` // Empty cycles
}

type searchRequest struct {
	Query string `mapstructure:"query" validate:"required"`
	Limit int    `mapstructure:"limit" validate:"gte=0,lte=50"`
}

type reportRequest struct {
	Type        string  `mapstructure:"type" validate:"required"`
	Generation  uint64  `mapstructure:"generation"`
	PositionSec float64 `mapstructure:"position_sec" validate:"gte=0"`
	DurationSec float64 `mapstructure:"duration_sec" validate:"gte=0"`
	Error       string  `mapstructure:"error"`
}

type subscribeRequest struct {
	Types []string `mapstructure:"types" validate:"dive,oneof=status command error"`
}

// PlayerService implements the PlayerService RPC.
type PlayerService struct {
	player *player.Manager
	config *config.Config
}

// NewPlayerService creates a new PlayerService.
func NewPlayerService(p *player.Manager, cfg *config.Config) *PlayerService {
	return &PlayerService{
		player: p,
		config: cfg,
	}
}

// Ensure PlayerService implements the interface.
var _ PlayerServiceHandler = (*PlayerService)(nil)

// Unary returns the unary procedures keyed by path.
func (s *PlayerService) Unary() map[string]UnaryFunc {
	return map[string]UnaryFunc{
		PlayerServiceGetStatusProcedure:     s.GetStatus,
		PlayerServicePlayProcedure:          s.Play,
		PlayerServicePauseProcedure:         s.Pause,
		PlayerServiceToggleProcedure:        s.Toggle,
		PlayerServiceNextProcedure:          s.Next,
		PlayerServicePreviousProcedure:      s.Previous,
		PlayerServiceSeekProcedure:          s.Seek,
		PlayerServiceSetVolumeProcedure:     s.SetVolume,
		PlayerServiceEnqueueProcedure:       s.Enqueue,
		PlayerServiceSelectProcedure:        s.Select,
		PlayerServiceRemoveProcedure:        s.Remove,
		PlayerServiceSetShuffleProcedure:    s.SetShuffle,
		PlayerServiceSetRepeatModeProcedure: s.SetRepeatMode,
		PlayerServiceSearchProcedure:        s.Search,
		PlayerServiceHealthProcedure:        s.Health,
		PlayerServiceReportProcedure:        s.Report,
	}
}

// GetStatus returns the current player status.
func (s *PlayerService) GetStatus(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var r statusRequest
	if err := decode(req.Msg, &r); err != nil {
		return nil, toConnectError(err)
	}

	status := s.player.GetStatus().Map()
	if r.CheckResolver {
		status["resolver"] = "healthy"
		if err := s.player.Health(ctx); err != nil {
			status["resolver"] = err.Error()
		}
	}
	return respond(status)
}

// Play starts or resumes playback.
func (s *PlayerService) Play(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	return s.action(s.player.Play(ctx))
}

// Pause pauses playback.
func (s *PlayerService) Pause(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	return s.action(s.player.Pause(ctx))
}

// Toggle toggles between play and pause.
func (s *PlayerService) Toggle(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	return s.action(s.player.Toggle(ctx))
}

// Next advances to the next track.
func (s *PlayerService) Next(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	return s.action(s.player.Next(ctx))
}

// Previous steps back, or restarts the current track.
func (s *PlayerService) Previous(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	return s.action(s.player.Previous(ctx))
}

// Seek moves the playback position.
func (s *PlayerService) Seek(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var r seekRequest
	if err := decode(req.Msg, &r); err != nil {
		return nil, toConnectError(err)
	}
	return s.action(s.player.Seek(ctx, time.Duration(*r.PositionSec*float64(time.Second))))
}

// SetVolume sets the volume.
func (s *PlayerService) SetVolume(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var r volumeRequest
	if err := decode(req.Msg, &r); err != nil {
		return nil, toConnectError(err)
	}
	_, err := s.player.SetVolume(ctx, *r.Volume)
	return s.action(err)
}

// Enqueue adds a track to the queue.
func (s *PlayerService) Enqueue(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var r enqueueRequest
	if err := decode(req.Msg, &r); err != nil {
		return nil, toConnectError(err)
	}
	origin := filter.OriginUser
	if r.Origin != "" {
		origin = filter.Origin(r.Origin)
	}

	t := track.Track{
		ID:           r.ID,
		Title:        r.Title,
		Artist:       r.Artist,
		Duration:     time.Duration(r.DurationSec * float64(time.Second)),
		ThumbnailURL: r.ThumbnailURL,
		URL:          r.URL,
	}
	res, err := s.player.Enqueue(ctx, t, origin)

	message := s.config.GetMessage("success")
	if !res.Added {
		message = s.config.GetMessage(res.Code)
	}
	out := map[string]any{
		"added":   res.Added,
		"started": res.Started,
		"code":    res.Code,
		"message": message,
	}
	if err != nil {
		// The track was queued; only starting it failed.
		if !res.Added {
			return nil, toConnectError(err)
		}
		out["error"] = err.Error()
	}
	return respond(out)
}

// Select plays the track at the given queue index.
func (s *PlayerService) Select(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var r selectRequest
	if err := decode(req.Msg, &r); err != nil {
		return nil, toConnectError(err)
	}
	return s.action(s.player.Select(ctx, *r.Index))
}

// Remove removes a track from the queue.
func (s *PlayerService) Remove(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var r removeRequest
	if err := decode(req.Msg, &r); err != nil {
		return nil, toConnectError(err)
	}
	removed, err := s.player.Remove(ctx, r.ID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return respond(map[string]any{"removed": removed})
}

// SetShuffle enables or disables shuffle.
func (s *PlayerService) SetShuffle(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var r shuffleRequest
	if err := decode(req.Msg, &r); err != nil {
		return nil, toConnectError(err)
	}
	s.player.SetShuffle(ctx, *r.Enabled)
	return s.action(nil)
}

// SetRepeatMode sets the repeat mode. An empty mode cycles.
func (s *PlayerService) SetRepeatMode(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var r repeatRequest
	if err := decode(req.Msg, &r); err != nil {
		return nil, toConnectError(err)
	}
	if r.Mode == "" {
		s.player.CycleRepeatMode(ctx)
		return s.action(nil)
	}
	mode, _ := queue.ParseRepeatMode(r.Mode)
	s.player.SetRepeatMode(ctx, mode)
	return s.action(nil)
}

// Search searches tracks through the resolver.
func (s *PlayerService) Search(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var r searchRequest
	if err := decode(req.Msg, &r); err != nil {
		return nil, toConnectError(err)
	}
	results, err := s.player.Search(ctx, r.Query, r.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}

	items := make([]any, len(results))
	for i, res := range results {
		items[i] = map[string]any{
			"id":            res.ID,
			"title":         res.Title,
			"duration_sec":  res.Duration.Seconds(),
			"thumbnail_url": res.ThumbnailURL,
		}
	}
	return respond(map[string]any{"query": r.Query, "results": items})
}

// Health checks the resolver.
func (s *PlayerService) Health(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	if err := s.player.Health(ctx); err != nil {
		return nil, toConnectError(err)
	}
	return respond(map[string]any{"status": "healthy"})
}

// Report delivers a backend event from the rendering client.
// Failures caused by the event are returned in the response, not as an RPC error.
func (s *PlayerService) Report(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	var r reportRequest
	if err := decode(req.Msg, &r); err != nil {
		return nil, toConnectError(err)
	}
	typ, ok := backend.ParseEventType(r.Type)
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.Newf("unknown event type %q", r.Type))
	}

	ev := backend.Event{
		Type:       typ,
		Generation: r.Generation,
		Position:   time.Duration(r.PositionSec * float64(time.Second)),
		Duration:   time.Duration(r.DurationSec * float64(time.Second)),
	}
	if typ == backend.EventError {
		msg := r.Error
		if msg == "" {
			msg = "backend reported an error"
		}
		ev.Err = errors.New(msg)
	}

	if err := s.player.HandleBackendEvent(ctx, ev); err != nil {
		out := s.player.GetStatus().Map()
		out["error"] = err.Error()
		return respond(out)
	}
	return respond(s.player.GetStatus().Map())
}

// SubscribeNotifications streams notifications, starting with the current status.
func (s *PlayerService) SubscribeNotifications(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
	stream *connect.ServerStream[structpb.Struct],
) error {
	var r subscribeRequest
	if err := decode(req.Msg, &r); err != nil {
		return toConnectError(err)
	}
	types := make([]notification.Type, len(r.Types))
	for i, t := range r.Types {
		types[i] = notification.Type(t)
	}

	notifManager := s.player.GetNotificationManager()
	adapter := &notificationStreamAdapter{stream: stream}

	// Send the initial state before subscribing.
	initial := &notification.Notification{
		Type:       notification.TypeStatus,
		SequenceNo: notifManager.NextSequenceNo(),
		Time:       time.Now(),
		Payload:    s.player.GetStatus().Map(),
	}
	initial.Payload["initial"] = true
	if err := adapter.Send(initial); err != nil {
		return err
	}

	subscriptionID := notifManager.Subscribe(adapter, types...)
	zlog.Info().Msgf("subscriber connected: subscription_id=%s types=%v", subscriptionID, r.Types)

	// Wait for context cancellation or player shutdown
	select {
	case <-ctx.Done():
	case <-s.player.Done():
	}

	notifManager.Unsubscribe(subscriptionID)
	zlog.Info().Msgf("subscriber disconnected: subscription_id=%s", subscriptionID)
	return nil
}

func (s *PlayerService) action(err error) (*connect.Response[structpb.Struct], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return respond(s.player.GetStatus().Map())
}

// notificationStreamAdapter adapts connect.ServerStream to notification.Stream.
type notificationStreamAdapter struct {
	mu     sync.Mutex
	stream *connect.ServerStream[structpb.Struct]
}

func (a *notificationStreamAdapter) Send(n *notification.Notification) error {
	msg, err := structpb.NewStruct(map[string]any{
		"type":        string(n.Type),
		"sequence_no": float64(n.SequenceNo),
		"time":        n.Time.Format(time.RFC3339Nano),
		"payload":     n.Payload,
	})
	if err != nil {
		return errors.Wrap(err, "encode notification")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stream.Send(msg)
}

func decode(msg *structpb.Struct, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(msg.AsMap()); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to decode request"), errInvalidRequest)
	}
	if err := validate.Struct(out); err != nil {
		return errors.Mark(errors.Wrap(err, "validation failed"), errInvalidRequest)
	}
	return nil
}

func respond(m map[string]any) (*connect.Response[structpb.Struct], error) {
	msg, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, errors.Wrap(err, "encode response"))
	}
	return connect.NewResponse(msg), nil
}
