package backend

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"murmur/internal/domain"
)

// Echo answers every prompt by repeating it. It is useful for trying out a
// pairing without a real engine.
type Echo struct{}

var _ Backend = Echo{}

func (Echo) Name() string { return "echo" }

func (Echo) Run(ctx context.Context, req Request, onPartial func(string)) (Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return Result{}, ErrEmptyPrompt
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	answer := "You said: " + prompt
	split := NewSplitter(onPartial)
	split.Write(answer)
	split.Flush()

	sid := req.SessionID
	if sid == "" {
		sid = domain.SessionID(uuid.NewString())
	}
	return Result{
		Text:      answer,
		Usage:     &domain.Usage{InputTokens: len(strings.Fields(prompt)), OutputTokens: len(strings.Fields(answer))},
		SessionID: sid,
	}, nil
}
