package query

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/constellation-router/internal/emit"
)

var (
	// ErrNotFound is returned when a pair or node has no entries.
	ErrNotFound = errors.New("not found")
	// ErrInvalidRequest is returned for malformed request fields.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNotReady is returned before the first step has been emitted.
	ErrNotReady = errors.New("no forwarding state yet")
)

// ToStatusError maps query errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrNotReady),
		errors.Is(err, emit.ErrNoStep):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
