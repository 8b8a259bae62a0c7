package dialogue

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"murmur/internal/domain"
)

// Speaker delivers answer text to the user. Speak blocks until the text has
// been delivered or ctx is cancelled.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Summarizer condenses a conversation for compaction. previous is the summary
// produced by the last compaction, if any.
type Summarizer interface {
	Summarize(ctx context.Context, previous string, turns []domain.Turn) (string, error)
}

// WriterSpeaker prints each sentence on its own line.
type WriterSpeaker struct {
	mu sync.Mutex
	W  io.Writer
}

func (s *WriterSpeaker) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.W, text)
	return err
}

// CommandSpeaker runs a system text-to-speech command such as espeak-ng.
type CommandSpeaker struct {
	command string
	voice   string
	rate    int
}

// NewCommandSpeaker resolves cmd on PATH.
func NewCommandSpeaker(cmd, voice string, rate int) (*CommandSpeaker, error) {
	if cmd == "" {
		cmd = "espeak-ng"
	}
	resolved, err := exec.LookPath(cmd)
	if err != nil {
		return nil, err
	}
	return &CommandSpeaker{command: resolved, voice: voice, rate: rate}, nil
}

func (s *CommandSpeaker) Speak(ctx context.Context, text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	args := []string{}
	if s.voice != "" {
		args = append(args, "-v", s.voice)
	}
	if s.rate > 0 {
		args = append(args, "-s", strconv.Itoa(s.rate))
	}
	args = append(args, trimmed)
	cmd := exec.CommandContext(ctx, s.command, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run()
}

// TranscriptSummarizer builds a plain summary from the most recent turns,
// bounded by MaxChars.
type TranscriptSummarizer struct {
	MaxChars int
}

func (s TranscriptSummarizer) Summarize(_ context.Context, previous string, turns []domain.Turn) (string, error) {
	limit := s.MaxChars
	if limit <= 0 {
		limit = 4000
	}
	var lines []string
	for _, t := range turns {
		if t.Err != "" || strings.TrimSpace(t.Answer) == "" {
			continue
		}
		lines = append(lines, "User: "+strings.TrimSpace(t.Utterance.Text), "Assistant: "+strings.TrimSpace(t.Answer))
	}
	if len(previous) > limit {
		previous = previous[len(previous)-limit:]
	}
	// Keep the newest lines that fit.
	size := len(previous)
	start := len(lines)
	for start > 0 {
		n := len(lines[start-1]) + 1
		if size+n > limit {
			break
		}
		size += n
		start--
	}
	var b strings.Builder
	if previous != "" {
		b.WriteString(previous)
	}
	for _, l := range lines[start:] {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(l)
	}
	return b.String(), nil
}
