package dialogue

import (
	"context"
	"errors"

	"murmur/internal/session"
)

var (
	// ErrTurnTimeout is reported when no answer arrives in time.
	ErrTurnTimeout = errors.New("turn timed out")
	// ErrConnectionLost is reported when the partner goes away mid-turn.
	ErrConnectionLost = errors.New("connection lost")
	// ErrInterrupted marks a turn abandoned by barge-in.
	ErrInterrupted = errors.New("interrupted")
)

// UserMessage renders err as a sentence that can be spoken or displayed.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, session.ErrNotPaired):
		return "I'm not connected to your computer right now."
	case errors.Is(err, session.ErrPairingFailed):
		return "Pairing with your computer failed. Please pair again."
	case errors.Is(err, ErrTurnTimeout), errors.Is(err, context.DeadlineExceeded):
		return "That took too long, so I stopped waiting. Please try again."
	case errors.Is(err, ErrConnectionLost), errors.Is(err, session.ErrClosed):
		return "I lost the connection to your computer."
	default:
		return "Something went wrong. Please try again."
	}
}
