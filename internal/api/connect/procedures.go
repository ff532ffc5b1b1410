// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

// PlayerServiceName is the fully-qualified name of the player service.
const PlayerServiceName = "nextwave.player.v1.PlayerService"

// Procedure paths of the player service.
const (
	PlayerServiceGetStatusProcedure              = "/" + PlayerServiceName + "/GetStatus"
	PlayerServicePlayProcedure                   = "/" + PlayerServiceName + "/Play"
	PlayerServicePauseProcedure                  = "/" + PlayerServiceName + "/Pause"
	PlayerServiceToggleProcedure                 = "/" + PlayerServiceName + "/Toggle"
	PlayerServiceNextProcedure                   = "/" + PlayerServiceName + "/Next"
	PlayerServicePreviousProcedure               = "/" + PlayerServiceName + "/Previous"
	PlayerServiceSeekProcedure                   = "/" + PlayerServiceName + "/Seek"
	PlayerServiceSetVolumeProcedure              = "/" + PlayerServiceName + "/SetVolume"
	PlayerServiceEnqueueProcedure                = "/" + PlayerServiceName + "/Enqueue"
	PlayerServiceSelectProcedure                 = "/" + PlayerServiceName + "/Select"
	PlayerServiceRemoveProcedure                 = "/" + PlayerServiceName + "/Remove"
	PlayerServiceSetShuffleProcedure             = "/" + PlayerServiceName + "/SetShuffle"
	PlayerServiceSetRepeatModeProcedure          = "/" + PlayerServiceName + "/SetRepeatMode"
	PlayerServiceSearchProcedure                 = "/" + PlayerServiceName + "/Search"
	PlayerServiceHealthProcedure                 = "/" + PlayerServiceName + "/Health"
	PlayerServiceReportProcedure                 = "/" + PlayerServiceName + "/Report"
	PlayerServiceSubscribeNotificationsProcedure = "/" + PlayerServiceName + "/SubscribeNotifications"
)

// UnaryFunc is the handler shape shared by every unary procedure.
// Requests and responses are free-form structs.
type UnaryFunc func(context.Context, *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error)

// PlayerServiceHandler is implemented by the player service.
type PlayerServiceHandler interface {
	Unary() map[string]UnaryFunc
	SubscribeNotifications(context.Context, *connect.Request[structpb.Struct], *connect.ServerStream[structpb.Struct]) error
}

// NewPlayerServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewPlayerServiceHandler(svc PlayerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	for procedure, fn := range svc.Unary() {
		mux.Handle(procedure, connect.NewUnaryHandler[structpb.Struct, structpb.Struct](procedure, fn, opts...))
	}
	mux.Handle(PlayerServiceSubscribeNotificationsProcedure, connect.NewServerStreamHandler[structpb.Struct, structpb.Struct](
		PlayerServiceSubscribeNotificationsProcedure,
		svc.SubscribeNotifications,
		opts...,
	))
	return "/" + PlayerServiceName + "/", mux
}

// PlayerClient is a client for the player service.
type PlayerClient struct {
	httpClient connect.HTTPClient
	baseURL    string
	opts       []connect.ClientOption
	subscribe  *connect.Client[structpb.Struct, structpb.Struct]
}

// NewPlayerClient creates a client for the service at baseURL.
func NewPlayerClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *PlayerClient {
	baseURL = strings.TrimRight(baseURL, "/")
	return &PlayerClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		opts:       opts,
		subscribe: connect.NewClient[structpb.Struct, structpb.Struct](
			httpClient, baseURL+PlayerServiceSubscribeNotificationsProcedure, opts...),
	}
}

// Call invokes a unary procedure with a free-form request.
// header, if set, is applied to the request.
func (c *PlayerClient) Call(ctx context.Context, procedure string, msg map[string]any, header http.Header) (map[string]any, error) {
	if msg == nil {
		msg = map[string]any{}
	}
	body, err := structpb.NewStruct(msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	req := connect.NewRequest(body)
	for k, vs := range header {
		for _, v := range vs {
			req.Header().Add(k, v)
		}
	}

	client := connect.NewClient[structpb.Struct, structpb.Struct](c.httpClient, c.baseURL+procedure, c.opts...)
	resp, err := client.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Msg.AsMap(), nil
}

// Subscribe opens the notification stream.
func (c *PlayerClient) Subscribe(ctx context.Context, msg map[string]any, header http.Header) (*connect.ServerStreamForClient[structpb.Struct], error) {
	if msg == nil {
		msg = map[string]any{}
	}
	body, err := structpb.NewStruct(msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	req := connect.NewRequest(body)
	for k, vs := range header {
		for _, v := range vs {
			req.Header().Add(k, v)
		}
	}
	return c.subscribe.CallServerStream(ctx, req)
}
