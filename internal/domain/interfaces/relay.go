package interfaces

import (
	"context"

	domaintypes "murmur/internal/domain/types"
)

// RelayConn is one live transport connection to the relay broker.
type RelayConn interface {
	ReadFrame(ctx context.Context) (domaintypes.Frame, error)
	WriteFrame(ctx context.Context, frame domaintypes.Frame) error
	// Ping sends a liveness probe and waits for the answer.
	Ping(ctx context.Context) error
	Close() error
}

// RelayDialer opens relay connections.
type RelayDialer interface {
	Dial(ctx context.Context, url string) (RelayConn, error)
}
