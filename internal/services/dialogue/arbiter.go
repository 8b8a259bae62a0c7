package dialogue

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"murmur/internal/domain"
)

// State is what the presentation layer should show.
type State string

const (
	Listening State = "listening"
	Thinking  State = "thinking"
	Speaking  State = "speaking"
)

// Event is published to the presentation layer.
type Event struct {
	State    State
	TurnID   domain.TurnID
	Fragment string
	Answer   string
	Err      error
}

// Config tunes an Arbiter.
type Config struct {
	TurnTimeout time.Duration
}

// Arbiter serialises turns against the paired executor.
type Arbiter struct {
	ch         domain.MessageChannel
	speaker    Speaker
	summarizer Summarizer
	cfg        Config
	log        logrus.FieldLogger

	wake   chan struct{}
	inbox  chan domain.Message
	abort  chan error
	events chan Event

	mu             sync.Mutex
	queue          []domain.Utterance
	seq            uint64
	current        domain.TurnID
	delivering     bool
	cancelDelivery context.CancelFunc
	sessionID      domain.SessionID
	transcript     []domain.Turn
	summary        string
	compactPending bool
	info           domain.Message
}

// NewArbiter constructs an arbiter sending through ch and speaking through
// speaker. summarizer may be nil, in which case a TranscriptSummarizer is
// used.
func NewArbiter(ch domain.MessageChannel, speaker Speaker, summarizer Summarizer, cfg Config, log logrus.FieldLogger) *Arbiter {
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 120 * time.Second
	}
	if summarizer == nil {
		summarizer = TranscriptSummarizer{}
	}
	return &Arbiter{
		ch:         ch,
		speaker:    speaker,
		summarizer: summarizer,
		cfg:        cfg,
		log:        log,
		wake:       make(chan struct{}, 1),
		inbox:      make(chan domain.Message, 256),
		abort:      make(chan error, 1),
		events:     make(chan Event, 256),
	}
}

// Events yields presentation updates. Events are dropped when the buffer is
// full.
func (a *Arbiter) Events() <-chan Event { return a.events }

// Submit queues an utterance. If an answer is being spoken it is cut off.
func (a *Arbiter) Submit(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.mu.Lock()
	a.seq++
	a.queue = append(a.queue, domain.Utterance{Seq: a.seq, Text: text, At: time.Now()})
	if a.delivering && a.cancelDelivery != nil {
		a.log.Debug("barge-in: cancelling delivery")
		a.cancelDelivery()
	}
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// Handle routes a message received from the executor.
func (a *Arbiter) Handle(msg domain.Message) {
	switch msg.Type {
	case domain.TextStream, domain.TextDone, domain.TextAnswer:
		a.mu.Lock()
		current := a.current
		a.mu.Unlock()
		if current == "" || (msg.TurnID != "" && msg.TurnID != current) {
			a.log.WithFields(logrus.Fields{"type": msg.Type, "turn_id": msg.TurnID}).Debug("dropping message for superseded turn")
			return
		}
		select {
		case a.inbox <- msg:
		default:
			a.log.WithField("type", msg.Type).Warn("inbox full, dropping message")
		}
	case domain.CompactNeeded:
		a.mu.Lock()
		if a.sessionID == "" || msg.SessionID == "" || msg.SessionID == a.sessionID {
			a.compactPending = true
		}
		a.mu.Unlock()
		a.log.WithField("session_id", msg.SessionID).Info("executor asked for compaction")
	case domain.ServerInfo:
		a.mu.Lock()
		a.info = msg
		a.mu.Unlock()
		a.log.WithFields(logrus.Fields{"name": msg.Name, "version": msg.Version, "backend": msg.Backend}).Info("executor info")
	default:
		a.log.WithField("type", msg.Type).Debug("ignoring message")
	}
}

// ServerInfo returns the last server_info received.
func (a *Arbiter) ServerInfo() domain.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info
}

// SessionID returns the active conversation id, empty before the first turn.
func (a *Arbiter) SessionID() domain.SessionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessionID
}

// Transcript returns a copy of the completed turns.
func (a *Arbiter) Transcript() []domain.Turn {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.Turn(nil), a.transcript...)
}

// Reset forgets the conversation after the pairing went away. A turn in
// flight is abandoned.
func (a *Arbiter) Reset() {
	a.mu.Lock()
	a.sessionID = ""
	a.transcript = nil
	a.summary = ""
	a.compactPending = false
	inFlight := a.current != ""
	a.mu.Unlock()
	if inFlight {
		select {
		case a.abort <- ErrConnectionLost:
		default:
		}
	}
}

// Clear asks the executor to forget the conversation context.
func (a *Arbiter) Clear(ctx context.Context) error {
	return a.lifecycle(ctx, domain.SessionClear)
}

// End closes the conversation on the executor.
func (a *Arbiter) End(ctx context.Context) error {
	return a.lifecycle(ctx, domain.SessionEnd)
}

// Compact sends summary to replace the executor's context for this
// conversation.
func (a *Arbiter) Compact(ctx context.Context, summary string) error {
	a.mu.Lock()
	sid := a.sessionID
	a.mu.Unlock()
	if sid == "" {
		return nil
	}
	if err := a.ch.Send(ctx, domain.Message{Type: domain.SessionCompact, SessionID: sid, Summary: summary}); err != nil {
		return err
	}
	a.mu.Lock()
	a.summary = summary
	a.transcript = nil
	a.compactPending = false
	a.mu.Unlock()
	return nil
}

func (a *Arbiter) lifecycle(ctx context.Context, t domain.EnvelopeType) error {
	a.mu.Lock()
	sid := a.sessionID
	a.mu.Unlock()
	if sid == "" {
		return nil
	}
	if err := a.ch.Send(ctx, domain.Message{Type: t, SessionID: sid}); err != nil {
		return err
	}
	a.mu.Lock()
	if a.sessionID == sid {
		a.sessionID = ""
		a.transcript = nil
		a.summary = ""
		a.compactPending = false
	}
	a.mu.Unlock()
	return nil
}

// Run processes queued utterances until ctx is done.
func (a *Arbiter) Run(ctx context.Context) error {
	for {
		u, ok := a.next()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-a.wake:
				continue
			}
		}
		a.compactIfNeeded(ctx)
		a.turn(ctx, u)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (a *Arbiter) next() (domain.Utterance, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return domain.Utterance{}, false
	}
	u := a.queue[0]
	a.queue = a.queue[1:]
	return u, true
}

func (a *Arbiter) queued() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

func (a *Arbiter) compactIfNeeded(ctx context.Context) {
	a.mu.Lock()
	pending, sid, previous := a.compactPending, a.sessionID, a.summary
	turns := append([]domain.Turn(nil), a.transcript...)
	a.mu.Unlock()
	if !pending || sid == "" {
		return
	}
	summary, err := a.summarizer.Summarize(ctx, previous, turns)
	if err != nil {
		a.log.WithError(err).Warn("summarizing conversation failed")
		return
	}
	if err := a.Compact(ctx, summary); err != nil {
		a.log.WithError(err).Warn("sending compaction failed")
	}
}

// turn runs one utterance to completion, timeout or interruption.
func (a *Arbiter) turn(ctx context.Context, u domain.Utterance) {
	t := domain.Turn{ID: domain.TurnID(uuid.NewString()), Utterance: u}
	log := a.log.WithFields(logrus.Fields{"turn_id": t.ID, "seq": u.Seq})

	a.mu.Lock()
	a.current = t.ID
	sid := a.sessionID
	a.mu.Unlock()
	a.drain()
	defer a.finish(&t)

	a.emit(Event{State: Thinking, TurnID: t.ID})
	err := a.ch.Send(ctx, domain.Message{Type: domain.AskText, Text: u.Text, SessionID: sid, TurnID: t.ID})
	if err != nil {
		log.WithError(err).Warn("ask not sent")
		a.fail(ctx, &t, err)
		return
	}

	timer := time.NewTimer(a.cfg.TurnTimeout)
	defer timer.Stop()

	var (
		d       *delivery
		next    int
		pending = map[int]string{}
	)
	push := func(text string) {
		if d == nil {
			d = a.startDelivery(ctx, t.ID)
		}
		d.push(text)
	}

	for {
		select {
		case <-ctx.Done():
			if d != nil {
				d.cancel()
			}
			return

		case err := <-a.abort:
			if d != nil {
				d.cancel()
			}
			a.fail(ctx, &t, err)
			return

		case <-timer.C:
			log.Warn("turn timed out")
			if d != nil {
				d.cancel()
			}
			a.fail(ctx, &t, ErrTurnTimeout)
			return

		case <-d.cancelled():
			log.Info("turn interrupted")
			t.Err = ErrInterrupted.Error()
			return

		case msg := <-a.inbox:
			switch msg.Type {
			case domain.TextStream:
				if msg.Index < next {
					continue
				}
				if _, dup := pending[msg.Index]; dup {
					continue
				}
				pending[msg.Index] = msg.Text
				for {
					text, ok := pending[next]
					if !ok {
						break
					}
					delete(pending, next)
					t.Chunks = append(t.Chunks, text)
					push(text)
					next++
				}

			case domain.TextDone, domain.TextAnswer:
				// Chunks that arrived out of order but never closed the gap.
				for _, idx := range sortedKeys(pending) {
					t.Chunks = append(t.Chunks, pending[idx])
					push(pending[idx])
				}
				final := strings.TrimSpace(msg.Text)
				if final == "" {
					final = strings.TrimSpace(strings.Join(t.Chunks, ""))
				}
				if len(t.Chunks) == 0 && final != "" {
					push(final)
				}
				t.Answer = final
				t.Usage = msg.Usage
				if msg.SessionID != "" {
					a.mu.Lock()
					a.sessionID = msg.SessionID
					a.mu.Unlock()
				}
				a.emit(Event{State: Speaking, TurnID: t.ID, Answer: final})
				a.complete(ctx, d)
				return
			}
		}
	}
}

// complete lets the remaining speech play out unless someone is already
// waiting to talk.
func (a *Arbiter) complete(ctx context.Context, d *delivery) {
	if d == nil {
		return
	}
	d.close()
	if a.queued() > 0 {
		d.cancel()
		return
	}
	select {
	case <-d.done:
	case <-d.ctx.Done():
	case <-ctx.Done():
	}
}

// fail records err on the turn and tells the user.
func (a *Arbiter) fail(ctx context.Context, t *domain.Turn, err error) {
	t.Err = err.Error()
	a.emit(Event{State: Speaking, TurnID: t.ID, Err: err})
	msg := UserMessage(err)
	if msg == "" || ctx.Err() != nil {
		return
	}
	d := a.startDelivery(ctx, t.ID)
	d.push(msg)
	d.close()
	select {
	case <-d.done:
	case <-d.ctx.Done():
	case <-ctx.Done():
	}
}

func (a *Arbiter) finish(t *domain.Turn) {
	a.mu.Lock()
	a.current = ""
	if a.cancelDelivery != nil {
		a.cancelDelivery()
	}
	a.delivering = false
	a.cancelDelivery = nil
	if t.Err == "" {
		a.transcript = append(a.transcript, *t)
	}
	idle := len(a.queue) == 0
	a.mu.Unlock()

	state := Thinking
	if idle {
		state = Listening
	}
	a.emit(Event{State: state, TurnID: t.ID})
}

// drain discards anything left over from a previous turn.
func (a *Arbiter) drain() {
	for {
		select {
		case <-a.inbox:
		case <-a.abort:
		default:
			return
		}
	}
}

func (a *Arbiter) emit(ev Event) {
	select {
	case a.events <- ev:
	default:
		a.log.WithField("state", ev.State).Debug("event dropped")
	}
}

// delivery plays one answer. It is cancelled by barge-in.
type delivery struct {
	ctx    context.Context
	cancel context.CancelFunc
	lines  chan string
	done   chan struct{}
	closed bool
}

func (a *Arbiter) startDelivery(ctx context.Context, turn domain.TurnID) *delivery {
	dctx, cancel := context.WithCancel(ctx)
	d := &delivery{
		ctx:    dctx,
		cancel: cancel,
		lines:  make(chan string, 256),
		done:   make(chan struct{}),
	}
	a.mu.Lock()
	if a.cancelDelivery != nil {
		a.cancelDelivery()
	}
	a.delivering = true
	a.cancelDelivery = cancel
	a.mu.Unlock()

	go func() {
		defer close(d.done)
		for {
			select {
			case <-dctx.Done():
				return
			case line, ok := <-d.lines:
				if !ok {
					return
				}
				a.emit(Event{State: Speaking, TurnID: turn, Fragment: line})
				if err := a.speaker.Speak(dctx, line); err != nil && dctx.Err() == nil {
					a.log.WithError(err).Warn("speaking failed")
				}
			}
		}
	}()
	return d
}

func (d *delivery) push(text string) {
	text = strings.TrimSpace(text)
	if d.closed || text == "" {
		return
	}
	select {
	case d.lines <- text:
	case <-d.ctx.Done():
	}
}

func (d *delivery) close() {
	if !d.closed {
		d.closed = true
		close(d.lines)
	}
}

// cancelled is nil-safe so the turn loop can select on a delivery that has
// not started yet.
func (d *delivery) cancelled() <-chan struct{} {
	if d == nil {
		return nil
	}
	return d.ctx.Done()
}

func sortedKeys(m map[int]string) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// String implements fmt.Stringer for log fields.
func (e Event) String() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.State, e.Err)
	}
	return string(e.State)
}
