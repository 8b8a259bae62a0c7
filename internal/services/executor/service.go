package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"murmur/internal/backend"
	"murmur/internal/domain"
	"murmur/internal/queue"
)

// DefaultCompactThreshold is the input token count above which the initiator
// is asked to compact the conversation.
const DefaultCompactThreshold = 150_000

const summaryPreamble = "Context from earlier in this conversation:\n"

// ErrUnknownMessage is reported for message types the executor does not serve.
var ErrUnknownMessage = errors.New("executor: unexpected message type")

// Config tunes the executor.
type Config struct {
	Name             string
	Version          string
	CompactThreshold int
	BackendTimeout   time.Duration
	SessionTTL       time.Duration
	QueueSize        int
}

// Service serves ask_text and session lifecycle messages.
type Service struct {
	backend backend.Backend
	out     domain.MessageChannel
	reg     *registry
	jobs    *queue.Queue
	cfg     Config
	log     logrus.FieldLogger
}

// New constructs a Service. Replies are sent through out.
func New(b backend.Backend, out domain.MessageChannel, cfg Config, log logrus.FieldLogger) *Service {
	if cfg.CompactThreshold <= 0 {
		cfg.CompactThreshold = DefaultCompactThreshold
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = 120 * time.Second
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	s := &Service{
		backend: b,
		out:     out,
		reg:     newRegistry(cfg.SessionTTL),
		cfg:     cfg,
		log:     log,
	}
	s.jobs = queue.New(cfg.QueueSize, func(err error) {
		s.log.WithError(err).Warn("job failed")
	})
	return s
}

// Run processes queued jobs until ctx is done or Close is called.
func (s *Service) Run(ctx context.Context) {
	s.jobs.Start(ctx)
}

// Close stops accepting work. Jobs already queued still run.
func (s *Service) Close() { s.jobs.Close() }

// Handle queues msg for processing in arrival order.
func (s *Service) Handle(ctx context.Context, msg domain.Message) error {
	switch msg.Type {
	case domain.AskText, domain.SessionClear, domain.SessionEnd, domain.SessionCompact:
	default:
		s.log.WithField("type", msg.Type).Warn("ignoring message")
		return fmt.Errorf("%w: %s", ErrUnknownMessage, msg.Type)
	}
	return s.jobs.Enqueue(ctx, func(ctx context.Context) error {
		return s.process(ctx, msg)
	})
}

// Paired announces the executor to a freshly paired initiator.
func (s *Service) Paired(ctx context.Context) error {
	return s.out.Send(ctx, domain.Message{
		Type:    domain.ServerInfo,
		Name:    s.cfg.Name,
		Version: s.cfg.Version,
		Backend: s.backend.Name(),
	})
}

// Shutdown tells the initiator that the executor is going away.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.out.Send(ctx, domain.Message{Type: domain.ServerShutdown})
}

func (s *Service) process(ctx context.Context, msg domain.Message) error {
	log := s.log.WithFields(logrus.Fields{"type": msg.Type, "session_id": msg.SessionID, "turn_id": msg.TurnID})
	switch msg.Type {
	case domain.AskText:
		return s.ask(ctx, msg, log)
	case domain.SessionClear:
		conv, _ := s.reg.get(msg.SessionID)
		conv.Initialized, conv.Backend, conv.Summary = false, "", ""
		conv.Active = true
		s.reg.put(msg.SessionID, conv)
		log.Info("session cleared")
	case domain.SessionEnd:
		conv, _ := s.reg.get(msg.SessionID)
		conv.Initialized, conv.Active, conv.Backend = false, false, ""
		s.reg.put(msg.SessionID, conv)
		log.Info("session ended")
	case domain.SessionCompact:
		conv, _ := s.reg.get(msg.SessionID)
		conv.Initialized, conv.Backend = false, ""
		conv.Active = true
		conv.Summary = strings.TrimSpace(msg.Summary)
		s.reg.put(msg.SessionID, conv)
		log.Info("session compacted")
	}
	return nil
}

func (s *Service) ask(ctx context.Context, msg domain.Message, log logrus.FieldLogger) error {
	sid := msg.SessionID
	if sid == "" {
		sid = domain.SessionID(uuid.NewString())
	}
	conv, known := s.reg.get(sid)
	if !known || !conv.Active {
		conv = conversation{Active: true, Summary: conv.Summary}
	}

	prompt := msg.Text
	if conv.Summary != "" {
		prompt = summaryPreamble + conv.Summary + "\n\n" + msg.Text
		conv.Summary = ""
	}
	req := backend.Request{Prompt: prompt}
	if conv.Initialized {
		req.SessionID = conv.Backend
	}

	stream := &answer{send: func(index int, text string) {
		err := s.out.Send(ctx, domain.Message{
			Type:      domain.TextStream,
			SessionID: sid,
			TurnID:    msg.TurnID,
			Index:     index,
			Text:      text,
		})
		if err != nil {
			log.WithError(err).Debug("stream chunk not delivered")
		}
	}}

	res, err := s.run(ctx, req, stream.add)
	if err != nil && req.SessionID != "" {
		if len(stream.chunks) == 0 {
			log.WithError(err).Warn("resume failed, retrying without session")
			req.SessionID = ""
			res, err = s.run(ctx, req, stream.add)
		} else {
			// Part of this answer has been heard already; a second one
			// would talk over it.
			log.WithError(err).Warn("backend failed mid-answer, not retrying")
		}
	}

	done := domain.Message{Type: domain.TextDone, SessionID: sid, TurnID: msg.TurnID}
	final := res.Text
	if err != nil {
		log.WithError(err).Error("backend failed")
		final = answerForError(err)
		conv.Initialized, conv.Backend = false, ""
	} else {
		done.Usage = res.Usage
		conv.Initialized = true
		conv.Backend = res.SessionID
		if conv.Backend == "" {
			conv.Backend = req.SessionID
		}
		if conv.Backend == "" {
			conv.Initialized = false
		}
	}
	done.Text = stream.finish(final)
	s.reg.put(sid, conv)

	if err := s.out.Send(ctx, done); err != nil {
		return fmt.Errorf("send text_done: %w", err)
	}
	if done.Usage != nil && done.Usage.InputTokens > s.cfg.CompactThreshold {
		log.WithField("input_tokens", done.Usage.InputTokens).Info("conversation needs compaction")
		return s.out.Send(ctx, domain.Message{Type: domain.CompactNeeded, SessionID: sid, Usage: done.Usage})
	}
	return nil
}

func (s *Service) run(ctx context.Context, req backend.Request, onPartial func(string)) (backend.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()
	return s.backend.Run(ctx, req, onPartial)
}

// answer numbers the text_stream chunks of one turn and keeps them so that
// text_done can repeat exactly what was streamed.
type answer struct {
	send   func(index int, text string)
	chunks []string
}

func (a *answer) add(text string) {
	a.send(len(a.chunks), text)
	a.chunks = append(a.chunks, text)
}

// finish returns the text_done text for a turn whose result is final. When
// chunks were streamed, any part of final they do not already end with is
// streamed too, and the result is the trimmed concatenation of all chunks.
func (a *answer) finish(final string) string {
	final = strings.TrimSpace(final)
	if len(a.chunks) == 0 {
		return final
	}
	heard := strings.Join(a.chunks, "")
	if final != "" && !strings.HasSuffix(words(heard), words(final)) {
		split := backend.NewSplitter(a.add)
		split.Write("\n" + final)
		split.Flush()
		heard = strings.Join(a.chunks, "")
	}
	return strings.TrimSpace(heard)
}

func words(s string) string { return strings.Join(strings.Fields(s), " ") }

// answerForError renders a backend failure as something worth saying aloud.
func answerForError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Sorry, that took too long and I gave up."
	}
	return "Sorry, I couldn't do that: " + err.Error()
}
