// Package backend adapts command-execution engines to the executor.
//
// A Backend answers one prompt at a time. Partial output is reported
// sentence by sentence through the onPartial callback so the initiator can
// start speaking before the answer is complete.
package backend

import (
	"context"
	"errors"

	"murmur/internal/domain"
)

// ErrEmptyPrompt is returned for a blank request.
var ErrEmptyPrompt = errors.New("backend: empty prompt")

// Request is one invocation.
type Request struct {
	Prompt string
	// SessionID resumes a previous conversation when set.
	SessionID domain.SessionID
}

// Result is the terminal output of an invocation.
type Result struct {
	Text      string
	Usage     *domain.Usage
	SessionID domain.SessionID
}

// Backend runs prompts.
type Backend interface {
	Name() string
	Run(ctx context.Context, req Request, onPartial func(sentence string)) (Result, error)
}
