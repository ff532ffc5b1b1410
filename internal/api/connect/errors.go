package connect

import (
	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/nextwave/internal/app/backend"
	"github.com/osa030/nextwave/internal/app/playback"
	"github.com/osa030/nextwave/internal/app/player"
	"github.com/osa030/nextwave/internal/infra/resolver"
)

var errInvalidRequest = errors.New("invalid request")

// toConnectError maps domain errors to connect codes.
func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return cerr
	}

	code := connect.CodeInternal
	switch {
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, player.ErrInvalidIndex),
		errors.Is(err, resolver.ErrBadRequest):
		code = connect.CodeInvalidArgument
	case errors.Is(err, backend.ErrNoPlayableSource),
		errors.Is(err, playback.ErrNoTrack),
		errors.Is(err, player.ErrEmptyQueue):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, playback.ErrResolve),
		errors.Is(err, resolver.ErrUnavailable),
		errors.Is(err, player.ErrNoSearcher):
		code = connect.CodeUnavailable
	case errors.Is(err, playback.ErrBackend),
		errors.Is(err, playback.ErrBackendMount):
		code = connect.CodeAborted
	}
	return connect.NewError(code, err)
}
