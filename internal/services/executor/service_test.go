package executor_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/backend"
	"murmur/internal/domain"
	"murmur/internal/services/executor"
)

type channel struct {
	msgs chan domain.Message
}

func (c *channel) Send(_ context.Context, msg domain.Message) error {
	c.msgs <- msg
	return nil
}

func (c *channel) next(t *testing.T) domain.Message {
	t.Helper()
	select {
	case m := <-c.msgs:
		return m
	case <-time.After(3 * time.Second):
		t.Fatal("no message sent")
		return domain.Message{}
	}
}

func (c *channel) quiet(t *testing.T) {
	t.Helper()
	select {
	case m := <-c.msgs:
		t.Fatalf("unexpected message %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

type scripted struct {
	mu    sync.Mutex
	calls []backend.Request
	fn    func(ctx context.Context, req backend.Request, onPartial func(string)) (backend.Result, error)
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Run(ctx context.Context, req backend.Request, onPartial func(string)) (backend.Result, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.fn(ctx, req, onPartial)
}

func (s *scripted) requests() []backend.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]backend.Request(nil), s.calls...)
}

func start(t *testing.T, b backend.Backend, cfg executor.Config) (*executor.Service, *channel) {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	out := &channel{msgs: make(chan domain.Message, 64)}
	svc := executor.New(b, out, cfg, log)
	ctx, cancel := context.WithCancel(context.Background())
	go svc.Run(ctx)
	t.Cleanup(func() {
		svc.Close()
		cancel()
	})
	return svc, out
}

func ask(t *testing.T, svc *executor.Service, sid domain.SessionID, turn domain.TurnID, text string) {
	t.Helper()
	require.NoError(t, svc.Handle(context.Background(), domain.Message{
		Type: domain.AskText, SessionID: sid, TurnID: turn, Text: text,
	}))
}

func answering(sessionID domain.SessionID, text string, tokens int) *scripted {
	return &scripted{fn: func(_ context.Context, _ backend.Request, _ func(string)) (backend.Result, error) {
		return backend.Result{Text: text, SessionID: sessionID, Usage: &domain.Usage{InputTokens: tokens}}, nil
	}}
}

func TestAsk_StreamsThenDone(t *testing.T) {
	b := &scripted{fn: func(_ context.Context, _ backend.Request, onPartial func(string)) (backend.Result, error) {
		for _, s := range []string{"Hello there. ", "How are you? ", "Bye."} {
			onPartial(s)
		}
		return backend.Result{Text: "  Hello there. How are you? Bye.\n", SessionID: "b1", Usage: &domain.Usage{InputTokens: 10}}, nil
	}}
	svc, out := start(t, b, executor.Config{})

	ask(t, svc, "", "t1", "hello")
	var sid domain.SessionID
	for i, want := range []string{"Hello there. ", "How are you? ", "Bye."} {
		m := out.next(t)
		assert.Equal(t, domain.TextStream, m.Type)
		assert.Equal(t, i, m.Index)
		assert.Equal(t, want, m.Text)
		assert.Equal(t, domain.TurnID("t1"), m.TurnID)
		sid = m.SessionID
	}
	assert.NotEmpty(t, sid)

	done := out.next(t)
	assert.Equal(t, domain.TextDone, done.Type)
	assert.Equal(t, "Hello there. How are you? Bye.", done.Text)
	assert.Equal(t, sid, done.SessionID)
	assert.Equal(t, 10, done.Usage.InputTokens)
	out.quiet(t)

	// The next turn in the same conversation resumes the backend session.
	ask(t, svc, sid, "t2", "again")
	for i := 0; i < 4; i++ {
		out.next(t)
	}
	reqs := b.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, domain.SessionID(""), reqs[0].SessionID)
	assert.Equal(t, domain.SessionID("b1"), reqs[1].SessionID)
	assert.Equal(t, "again", reqs[1].Prompt)
}

func TestAsk_RetriesWithoutSession(t *testing.T) {
	b := &scripted{fn: func(_ context.Context, req backend.Request, _ func(string)) (backend.Result, error) {
		if req.SessionID != "" {
			return backend.Result{}, errors.New("session expired")
		}
		return backend.Result{Text: "fresh", SessionID: "b2"}, nil
	}}
	svc, out := start(t, b, executor.Config{})

	ask(t, svc, "conv", "t1", "one")
	out.next(t)
	ask(t, svc, "conv", "t2", "two")
	done := out.next(t)
	assert.Equal(t, "fresh", done.Text)

	reqs := b.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, domain.SessionID("b2"), reqs[1].SessionID)
	assert.Equal(t, domain.SessionID(""), reqs[2].SessionID)
}

func streamed(t *testing.T, out *channel) ([]string, domain.Message) {
	t.Helper()
	var chunks []string
	for {
		m := out.next(t)
		if m.Type != domain.TextStream {
			return chunks, m
		}
		require.Equal(t, len(chunks), m.Index)
		chunks = append(chunks, m.Text)
	}
}

func TestAsk_DoneIsTrimmedConcatenationOfChunks(t *testing.T) {
	svc, out := start(t, backend.Echo{}, executor.Config{})

	ask(t, svc, "", "t1", "Open the door. Then close it.")
	chunks, done := streamed(t, out)
	require.Len(t, chunks, 2)
	assert.Equal(t, domain.TextDone, done.Type)
	assert.Equal(t, "You said: Open the door. Then close it.", done.Text)
	assert.Equal(t, done.Text, strings.TrimSpace(strings.Join(chunks, "")))
}

func TestAsk_ResultBeyondStreamedTextIsStreamed(t *testing.T) {
	b := &scripted{fn: func(_ context.Context, _ backend.Request, onPartial func(string)) (backend.Result, error) {
		onPartial("Working on it.")
		return backend.Result{Text: "All done."}, nil
	}}
	svc, out := start(t, b, executor.Config{})

	ask(t, svc, "", "t1", "go")
	chunks, done := streamed(t, out)
	assert.Equal(t, []string{"Working on it.", "\nAll done."}, chunks)
	assert.Equal(t, "Working on it.\nAll done.", done.Text)
}

func TestAsk_NoRetryAfterPartialAnswer(t *testing.T) {
	b := &scripted{fn: func(_ context.Context, req backend.Request, onPartial func(string)) (backend.Result, error) {
		if req.SessionID == "" {
			return backend.Result{Text: "ok", SessionID: "b1"}, nil
		}
		onPartial("Half an answer. ")
		return backend.Result{}, errors.New("engine crashed")
	}}
	svc, out := start(t, b, executor.Config{})

	ask(t, svc, "c1", "t1", "one")
	out.next(t)
	ask(t, svc, "c1", "t2", "two")
	chunks, done := streamed(t, out)
	require.Len(t, chunks, 2)
	assert.Equal(t, "Half an answer. ", chunks[0])
	assert.Contains(t, chunks[1], "engine crashed")
	assert.Equal(t, strings.TrimSpace(strings.Join(chunks, "")), done.Text)
	assert.Len(t, b.requests(), 2, "a streamed answer is not retried")
	out.quiet(t)
}

func TestAsk_HardFailureIsAnswerShaped(t *testing.T) {
	b := &scripted{fn: func(context.Context, backend.Request, func(string)) (backend.Result, error) {
		return backend.Result{}, errors.New("engine exploded")
	}}
	svc, out := start(t, b, executor.Config{})

	ask(t, svc, "", "t1", "hi")
	done := out.next(t)
	assert.Equal(t, domain.TextDone, done.Type)
	assert.Contains(t, done.Text, "engine exploded")
	assert.Len(t, b.requests(), 1, "no retry without a session")
}

func TestAsk_BackendTimeout(t *testing.T) {
	b := &scripted{fn: func(ctx context.Context, _ backend.Request, _ func(string)) (backend.Result, error) {
		<-ctx.Done()
		return backend.Result{}, ctx.Err()
	}}
	svc, out := start(t, b, executor.Config{BackendTimeout: 30 * time.Millisecond})

	ask(t, svc, "", "t1", "slow")
	done := out.next(t)
	assert.Equal(t, domain.TextDone, done.Type)
	assert.Contains(t, done.Text, "too long")
}

func TestAsk_CompactNeededOncePerTurn(t *testing.T) {
	svc, out := start(t, answering("b", "big", 151_000), executor.Config{})

	ask(t, svc, "c1", "t1", "hi")
	assert.Equal(t, domain.TextDone, out.next(t).Type)
	need := out.next(t)
	assert.Equal(t, domain.CompactNeeded, need.Type)
	assert.Equal(t, domain.SessionID("c1"), need.SessionID)
	assert.Equal(t, 151_000, need.Usage.InputTokens)
	out.quiet(t)
}

func TestAsk_UnderThresholdNoCompaction(t *testing.T) {
	svc, out := start(t, answering("b", "small", 150_000), executor.Config{})
	ask(t, svc, "c1", "t1", "hi")
	assert.Equal(t, domain.TextDone, out.next(t).Type)
	out.quiet(t)
}

func TestCompact_SummaryInjectedOnce(t *testing.T) {
	b := answering("b", "ok", 5)
	svc, out := start(t, b, executor.Config{})

	ask(t, svc, "c1", "t1", "first")
	out.next(t)
	require.NoError(t, svc.Handle(context.Background(), domain.Message{
		Type: domain.SessionCompact, SessionID: "c1", Summary: "We talked about lamps.",
	}))
	ask(t, svc, "c1", "t2", "second")
	out.next(t)
	ask(t, svc, "c1", "t3", "third")
	out.next(t)

	reqs := b.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "Context from earlier in this conversation:\nWe talked about lamps.\n\nsecond", reqs[1].Prompt)
	assert.Equal(t, domain.SessionID(""), reqs[1].SessionID, "compaction starts a fresh backend session")
	assert.Equal(t, "third", reqs[2].Prompt)
	assert.Equal(t, domain.SessionID("b"), reqs[2].SessionID)
}

func TestClearAndEnd(t *testing.T) {
	b := answering("b", "ok", 5)
	svc, out := start(t, b, executor.Config{})

	ask(t, svc, "c1", "t1", "one")
	out.next(t)
	require.NoError(t, svc.Handle(context.Background(), domain.Message{Type: domain.SessionClear, SessionID: "c1"}))
	ask(t, svc, "c1", "t2", "two")
	out.next(t)
	require.NoError(t, svc.Handle(context.Background(), domain.Message{Type: domain.SessionEnd, SessionID: "c1"}))
	ask(t, svc, "c1", "t3", "three")
	out.next(t)
	ask(t, svc, "c1", "t4", "four")
	out.next(t)

	var sessions []domain.SessionID
	for _, r := range b.requests() {
		sessions = append(sessions, r.SessionID)
	}
	assert.Equal(t, []domain.SessionID{"", "", "", "b"}, sessions)
}

func TestQueue_OneInvocationAtATimeAcrossSessions(t *testing.T) {
	var running, peak atomic.Int32
	b := &scripted{fn: func(context.Context, backend.Request, func(string)) (backend.Result, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return backend.Result{Text: "ok"}, nil
	}}
	svc, out := start(t, b, executor.Config{})

	for i, sid := range []domain.SessionID{"a", "b", "c", "a"} {
		ask(t, svc, sid, domain.TurnID(rune('0'+i)), "q")
	}
	var order []domain.SessionID
	for i := 0; i < 4; i++ {
		order = append(order, out.next(t).SessionID)
	}
	assert.Equal(t, []domain.SessionID{"a", "b", "c", "a"}, order)
	assert.Equal(t, int32(1), peak.Load())
}

func TestPairedAndShutdown(t *testing.T) {
	svc, out := start(t, answering("", "", 0), executor.Config{Name: "desk", Version: "1.2.3"})

	require.NoError(t, svc.Paired(context.Background()))
	info := out.next(t)
	assert.Equal(t, domain.ServerInfo, info.Type)
	assert.Equal(t, "desk", info.Name)
	assert.Equal(t, "1.2.3", info.Version)
	assert.Equal(t, "scripted", info.Backend)

	require.NoError(t, svc.Shutdown(context.Background()))
	assert.Equal(t, domain.ServerShutdown, out.next(t).Type)
}

func TestHandle_RejectsUnexpectedTypes(t *testing.T) {
	svc, out := start(t, answering("", "", 0), executor.Config{})
	err := svc.Handle(context.Background(), domain.Message{Type: domain.TextDone})
	assert.ErrorIs(t, err, executor.ErrUnknownMessage)
	out.quiet(t)
}
