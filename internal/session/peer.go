package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"murmur/internal/domain"
)

// Peer drives a Machine against a real relay connection. All protocol state
// lives on the Run goroutine; other goroutines only post events.
type Peer struct {
	m      *Machine
	cfg    Config
	dialer domain.RelayDialer
	log    logrus.FieldLogger

	events   chan Event
	messages chan domain.Message
	status   chan Status
	done     chan struct{}
	state    atomic.Int32

	ctx  context.Context
	conn domain.RelayConn
}

// Compile-time assertion that Peer can carry application messages.
var _ domain.MessageChannel = (*Peer)(nil)

// NewPeer constructs a peer. Call Run to start it, then Start to connect.
func NewPeer(cfg Config, dialer domain.RelayDialer, log logrus.FieldLogger) *Peer {
	cfg = cfg.WithDefaults()
	return &Peer{
		m:        NewMachine(cfg, log),
		cfg:      cfg,
		dialer:   dialer,
		log:      log,
		events:   make(chan Event, 64),
		messages: make(chan domain.Message, 64),
		status:   make(chan Status, 64),
		done:     make(chan struct{}),
	}
}

// Messages yields decrypted application messages from the partner.
func (p *Peer) Messages() <-chan domain.Message { return p.messages }

// Status yields lifecycle notifications. Notifications are dropped when the
// buffer is full; State is always authoritative.
func (p *Peer) Status() <-chan Status { return p.status }

// State returns a snapshot of the lifecycle state.
func (p *Peer) State() State { return State(p.state.Load()) }

// Start begins (or restarts) connecting. A restart invalidates any attempt
// still in flight.
func (p *Peer) Start() { p.post(Event{Kind: EventStart}) }

// Close disconnects and stops Run.
func (p *Peer) Close() { p.post(Event{Kind: EventClose}) }

// Send encrypts msg under the session key and forwards it to the partner. It
// fails fast with ErrNotPaired when no key is established.
func (p *Peer) Send(ctx context.Context, msg domain.Message) error {
	reply := make(chan error, 1)
	if !p.postCtx(ctx, Event{Kind: EventSend, Message: msg, Reply: reply}) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrClosed
	}
}

// Run processes events until Close is called or ctx is cancelled.
func (p *Peer) Run(ctx context.Context) error {
	p.ctx = ctx
	defer close(p.done)
	defer close(p.messages)

	tick := time.NewTicker(p.cfg.TickInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			p.apply(Event{Kind: EventClose})
			return ctx.Err()
		case now := <-tick.C:
			p.apply(Event{Kind: EventTick, Now: now})
		case ev := <-p.events:
			if p.apply(ev) {
				return nil
			}
		}
	}
}

// apply steps the machine and executes the actions. It reports whether the
// driver must stop.
func (p *Peer) apply(ev Event) bool {
	if ev.Now.IsZero() {
		ev.Now = time.Now()
	}
	if ev.Kind == EventTransportOpen {
		if ev.Gen != p.m.Gen() || p.m.State() != StateConnecting {
			_ = ev.Conn.Close()
			return false
		}
		p.conn = ev.Conn
		go p.read(ev.Conn, ev.Gen)
	}

	stop := false
	acts := p.m.Step(ev)
	gen := p.m.Gen()
	for i, a := range acts {
		if p.m.Gen() != gen {
			// A failed write already moved the machine on.
			p.abandon(acts[i:])
			break
		}
		if p.execute(a) {
			stop = true
		}
	}
	p.state.Store(int32(p.m.State()))
	return stop
}

func (p *Peer) execute(a Action) bool {
	switch a.Kind {
	case ActionDial:
		go p.dial(a.Gen, a.Delay)
	case ActionWrite:
		err := p.write(a.Frame)
		if a.Reply != nil {
			a.Reply <- err
		}
		if err != nil {
			p.apply(Event{Kind: EventTransportLost, Gen: p.m.Gen(), Err: err})
		}
	case ActionProbe:
		if p.conn != nil {
			go p.probe(p.conn, a.Gen)
		}
	case ActionCloseConn:
		if p.conn != nil {
			_ = p.conn.Close()
			p.conn = nil
		}
	case ActionDeliver:
		select {
		case p.messages <- a.Message:
		case <-p.ctx.Done():
		}
	case ActionNotify:
		select {
		case p.status <- a.Status:
		default:
			p.log.WithField("status", a.Status.Kind).Warn("status dropped")
		}
	case ActionReply:
		if a.Reply != nil {
			a.Reply <- a.Err
		}
	case ActionStop:
		return true
	}
	return false
}

// abandon answers the callers waiting on actions that will not run.
func (p *Peer) abandon(acts []Action) {
	for _, a := range acts {
		if (a.Kind == ActionWrite || a.Kind == ActionReply) && a.Reply != nil {
			a.Reply <- ErrNotPaired
		}
	}
}

func (p *Peer) write(f domain.Frame) error {
	if p.conn == nil {
		return fmt.Errorf("write %s: %w", f.Type, ErrNotPaired)
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.HandshakeTimeout)
	defer cancel()
	return p.conn.WriteFrame(ctx, f)
}

func (p *Peer) dial(gen uint64, delay time.Duration) {
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-p.done:
			return
		}
	}
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.HandshakeTimeout)
	defer cancel()
	conn, err := p.dialer.Dial(ctx, p.cfg.RelayURL)
	if err != nil {
		p.post(Event{Kind: EventDialFailed, Gen: gen, Err: err})
		return
	}
	if !p.post(Event{Kind: EventTransportOpen, Gen: gen, Conn: conn}) {
		_ = conn.Close()
	}
}

func (p *Peer) read(conn domain.RelayConn, gen uint64) {
	for {
		f, err := conn.ReadFrame(p.ctx)
		if err != nil {
			p.post(Event{Kind: EventTransportLost, Gen: gen, Err: err})
			return
		}
		if !p.post(Event{Kind: EventFrame, Gen: gen, Frame: f}) {
			return
		}
	}
}

func (p *Peer) probe(conn domain.RelayConn, gen uint64) {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.ProbeTimeout)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		if errors.Is(err, context.Canceled) && p.ctx.Err() != nil {
			return
		}
		p.post(Event{Kind: EventProbeFailed, Gen: gen, Err: err})
	}
}

func (p *Peer) post(ev Event) bool {
	select {
	case p.events <- ev:
		return true
	case <-p.done:
		return false
	}
}

func (p *Peer) postCtx(ctx context.Context, ev Event) bool {
	select {
	case p.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-p.done:
		return false
	}
}
