package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

const (
	// PlayerTokenHeader is the header name for the player access token.
	PlayerTokenHeader = "X-Player-Token"
)

var errInvalidToken = errors.New("invalid or missing player token")

// AuthInterceptor validates the player token on unary and streaming calls.
type AuthInterceptor struct {
	token string
}

var _ connect.Interceptor = (*AuthInterceptor)(nil)

// NewAuthInterceptor creates an interceptor that requires token on every
// request of the player service.
func NewAuthInterceptor(token string) *AuthInterceptor {
	return &AuthInterceptor{token: token}
}

func (i *AuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			req.Header().Set(PlayerTokenHeader, i.token)
			return next(ctx, req)
		}
		if !i.valid(req.Header().Get(PlayerTokenHeader)) {
			return nil, connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
		}
		return next(ctx, req)
	}
}

func (i *AuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		conn.RequestHeader().Set(PlayerTokenHeader, i.token)
		return conn
	}
}

func (i *AuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if !i.valid(conn.RequestHeader().Get(PlayerTokenHeader)) {
			return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
		}
		return next(ctx, conn)
	}
}

func (i *AuthInterceptor) valid(token string) bool {
	if token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) == 1
}
