package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"murmur/internal/domain"
)

const (
	// waitDelay bounds how long Run waits for output after the command is
	// killed, in case something outside its process group holds the pipes.
	waitDelay = 2 * time.Second
	maxLine   = 8 * 1024 * 1024
)

// CommandConfig describes an external CLI that reads the prompt on stdin and
// writes its answer on stdout.
type CommandConfig struct {
	Command string
	Args    []string
	// ResumeFlag precedes the session id when resuming, e.g. "--resume".
	ResumeFlag string
}

// CommandBackend runs an external command per prompt.
//
// Stdout is read line by line. A line that parses as a JSON event of type
// "result" supplies the final text, session id and usage; JSON text events
// are treated as partial output; any other line is plain answer text.
type CommandBackend struct {
	cfg CommandConfig
}

// NewCommand returns a backend for cfg.
func NewCommand(cfg CommandConfig) *CommandBackend {
	return &CommandBackend{cfg: cfg}
}

var _ Backend = (*CommandBackend)(nil)

func (b *CommandBackend) Name() string {
	cmd := strings.TrimSpace(b.cfg.Command)
	if len(b.cfg.Args) == 0 {
		return cmd
	}
	return fmt.Sprintf("%s %s", cmd, strings.Join(b.cfg.Args, " "))
}

func (b *CommandBackend) Run(ctx context.Context, req Request, onPartial func(string)) (Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return Result{}, ErrEmptyPrompt
	}
	cmdPath := strings.TrimSpace(b.cfg.Command)
	if cmdPath == "" {
		return Result{}, errors.New("backend: no command configured")
	}
	args := append([]string(nil), b.cfg.Args...)
	if req.SessionID != "" && b.cfg.ResumeFlag != "" {
		args = append(args, b.cfg.ResumeFlag, string(req.SessionID))
	}

	cmd := exec.CommandContext(ctx, cmdPath, args...)
	cmd.Stdin = strings.NewReader(req.Prompt)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		return Result{}, fmt.Errorf("start %s: %w", cmdPath, err)
	}
	waited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		_ = pw.Close()
		waited <- err
	}()

	var (
		streamed strings.Builder
		final    *streamEvent
	)
	split := NewSplitter(onPartial)
	write := func(text string) {
		streamed.WriteString(text)
		split.Write(text)
	}
	readErr := readLines(stdout, func(line string) {
		evt, ok := parseLine(line)
		switch {
		case ok && evt.Type == "result":
			final = &evt
		case ok:
			if t := evt.text(); t != "" {
				write(t)
			}
		default:
			write(line + "\n")
		}
	})
	split.Flush()

	if err := <-waited; err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%s: %w: %s", cmdPath, err, lastLine(stderr.String()))
	}
	if readErr != nil {
		return Result{}, fmt.Errorf("read %s output: %w", cmdPath, readErr)
	}

	res := Result{Text: strings.TrimSpace(streamed.String())}
	if final != nil {
		if final.IsError {
			return Result{}, fmt.Errorf("%s: %s", cmdPath, strings.TrimSpace(final.Result))
		}
		if t := strings.TrimSpace(final.Result); t != "" {
			res.Text = t
		}
		res.Usage = final.Usage
		res.SessionID = domain.SessionID(final.SessionID)
	}
	return res, nil
}

type streamEvent struct {
	Type      string        `json:"type"`
	Result    string        `json:"result"`
	Text      string        `json:"text"`
	Delta     string        `json:"delta"`
	SessionID string        `json:"session_id"`
	IsError   bool          `json:"is_error"`
	Usage     *domain.Usage `json:"usage"`
}

// text is the output an event adds to the answer. Whole text blocks end a
// line; deltas are appended as they come.
func (e streamEvent) text() string {
	if t := strings.TrimSpace(e.Text); t != "" {
		return t + "\n"
	}
	return e.Delta
}

// parseLine decodes a JSON event line. ok is false for plain text.
func parseLine(line string) (streamEvent, bool) {
	var evt streamEvent
	if !strings.HasPrefix(line, "{") {
		return evt, false
	}
	if err := json.Unmarshal([]byte(line), &evt); err != nil || evt.Type == "" {
		return streamEvent{}, false
	}
	return evt, true
}

// readLines calls fn for every non-blank line of r. On a scan error the rest
// of r is discarded so the writer is never left blocked.
func readLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
