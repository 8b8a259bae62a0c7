package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"murmur/internal/domain"
	"murmur/internal/protocol/envelope"
	"murmur/internal/protocol/handshake"
	"murmur/internal/util/memzero"
)

// Machine is the connection and pairing state of one peer. It performs no
// I/O: Step consumes one Event and returns the Actions the driver must carry
// out. All methods must be called from a single goroutine.
type Machine struct {
	cfg Config
	log logrus.FieldLogger

	state   State
	gen     uint64
	stopped bool
	backoff time.Duration

	key     domain.SessionKey
	hasKey  bool
	pending *domain.SessionKey // offered by the initiator, awaiting ack

	// deadline bounds the current join or handshake; zero when none.
	deadline  time.Time
	nextProbe time.Time
	transport bool
}

// NewMachine returns a disconnected machine.
func NewMachine(cfg Config, log logrus.FieldLogger) *Machine {
	cfg = cfg.WithDefaults()
	return &Machine{
		cfg:     cfg,
		log:     log.WithFields(logrus.Fields{"role": cfg.Role, "room": cfg.Room}),
		backoff: cfg.BackoffMin,
	}
}

// State returns the current lifecycle state.
func (m *Machine) State() State { return m.state }

// Gen returns the current connection generation.
func (m *Machine) Gen() uint64 { return m.gen }

// Step applies ev and returns the resulting side effects.
func (m *Machine) Step(ev Event) []Action {
	switch ev.Kind {
	case EventStart:
		return m.start()
	case EventClose:
		return m.close()
	case EventSend:
		return m.send(ev)
	case EventTick:
		return m.tick(ev.Now)
	}

	if ev.Gen != m.gen || m.stopped {
		m.log.WithFields(logrus.Fields{"gen": ev.Gen, "current": m.gen}).Debug("stale event ignored")
		return nil
	}

	switch ev.Kind {
	case EventTransportOpen:
		if m.state != StateConnecting {
			return nil
		}
		m.transport = true
		m.deadline = ev.Now.Add(m.cfg.HandshakeTimeout)
		return []Action{{Kind: ActionWrite, Frame: domain.Frame{Type: domain.FrameJoin, Room: m.cfg.Room}}}
	case EventDialFailed:
		m.log.WithError(ev.Err).Info("dial failed")
		return m.lose()
	case EventTransportLost:
		m.log.WithError(ev.Err).Info("transport lost")
		return m.lose()
	case EventProbeFailed:
		m.log.WithError(ev.Err).Info("liveness probe failed")
		return m.lose()
	case EventFrame:
		return m.frame(ev.Frame, ev.Now)
	}
	return nil
}

func (m *Machine) start() []Action {
	var acts []Action
	if m.transport {
		acts = append(acts, Action{Kind: ActionCloseConn})
		m.transport = false
	}
	acts = append(acts, m.dropKey()...)
	m.stopped = false
	m.backoff = m.cfg.BackoffMin
	m.deadline = time.Time{}
	m.gen++
	acts = append(acts, m.setState(StateConnecting)...)
	return append(acts, Action{Kind: ActionDial, Gen: m.gen})
}

func (m *Machine) close() []Action {
	var acts []Action
	if m.transport {
		acts = append(acts, Action{Kind: ActionCloseConn})
		m.transport = false
	}
	acts = append(acts, m.dropKey()...)
	m.stopped = true
	m.gen++
	m.deadline = time.Time{}
	acts = append(acts, m.setState(StateDisconnected)...)
	return append(acts, Action{Kind: ActionStop})
}

// lose handles any transport failure: drop the key and redial with backoff.
func (m *Machine) lose() []Action {
	var acts []Action
	if m.transport {
		acts = append(acts, Action{Kind: ActionCloseConn})
		m.transport = false
	}
	acts = append(acts, m.dropKey()...)
	acts = append(acts, m.setState(StateConnecting)...)
	return append(acts, m.redial())
}

func (m *Machine) redial() Action {
	m.gen++
	m.deadline = time.Time{}
	delay := m.backoff
	m.backoff *= 2
	if m.backoff > m.cfg.BackoffMax {
		m.backoff = m.cfg.BackoffMax
	}
	m.log.WithFields(logrus.Fields{"gen": m.gen, "delay": delay}).Debug("scheduling reconnect")
	return Action{Kind: ActionDial, Gen: m.gen, Delay: delay}
}

// disconnect abandons the connection without scheduling a reconnect.
func (m *Machine) disconnect() []Action {
	var acts []Action
	if m.transport {
		acts = append(acts, Action{Kind: ActionCloseConn})
		m.transport = false
	}
	acts = append(acts, m.dropKey()...)
	m.gen++
	m.deadline = time.Time{}
	return append(acts, m.setState(StateDisconnected)...)
}

func (m *Machine) tick(now time.Time) []Action {
	if m.stopped || m.state == StateDisconnected {
		return nil
	}
	if !m.deadline.IsZero() && !now.Before(m.deadline) {
		if m.pending != nil {
			m.log.Warn("handshake not acknowledged in time")
			acts := m.disconnect()
			return append(acts, notify(Status{Kind: StatusFailed, State: m.state, Err: ErrPairingFailed}))
		}
		if m.state == StateConnecting {
			m.log.Info("join not acknowledged in time")
			return m.lose()
		}
	}
	if m.state >= StateConnected && !now.Before(m.nextProbe) {
		m.nextProbe = now.Add(m.cfg.HeartbeatInterval)
		return []Action{{Kind: ActionProbe, Gen: m.gen}}
	}
	return nil
}

func (m *Machine) send(ev Event) []Action {
	if m.state != StatePaired || !m.hasKey {
		return []Action{{Kind: ActionReply, Reply: ev.Reply, Err: ErrNotPaired}}
	}
	env, err := envelope.Wrap(m.key, ev.Message)
	if err != nil {
		return []Action{{Kind: ActionReply, Reply: ev.Reply, Err: err}}
	}
	f, err := messageFrame(env)
	if err != nil {
		return []Action{{Kind: ActionReply, Reply: ev.Reply, Err: err}}
	}
	return []Action{{Kind: ActionWrite, Frame: f, Reply: ev.Reply}}
}

func (m *Machine) frame(f domain.Frame, now time.Time) []Action {
	switch f.Type {
	case domain.FrameJoined:
		if m.state != StateConnecting {
			return nil
		}
		m.deadline = time.Time{}
		m.backoff = m.cfg.BackoffMin
		m.nextProbe = now.Add(m.cfg.HeartbeatInterval)
		return m.setState(StateConnected)

	case domain.FramePeerJoined:
		if m.cfg.Role != RoleInitiator || m.state < StateConnected {
			return nil
		}
		// A partner (re)appeared: any key we hold belongs to a previous pairing.
		acts := m.dropKey()
		acts = append(acts, m.setState(StateConnected)...)
		return append(acts, m.initiate(now)...)

	case domain.FramePeerLeft:
		if m.state < StateConnected {
			return nil
		}
		if m.cfg.Role == RoleExecutor {
			acts := m.dropKey()
			return append(acts, m.setState(StateConnected)...)
		}
		return m.lose()

	case domain.FrameError:
		m.log.WithField("message", f.Message).Warn("relay error")
		if m.state == StateConnecting {
			return m.lose()
		}
		return nil

	case domain.FrameMessage:
		return m.payload(f.Payload, now)
	}
	m.log.WithField("type", f.Type).Warn("unexpected relay frame")
	return nil
}

func (m *Machine) initiate(now time.Time) []Action {
	offer, err := handshake.Initiate(m.cfg.PeerKey)
	if err != nil {
		m.log.WithError(err).Error("cannot start handshake")
		acts := m.disconnect()
		return append(acts, notify(Status{Kind: StatusFailed, State: m.state, Err: ErrPairingFailed}))
	}
	f, err := messageFrame(offer.Envelope)
	if err != nil {
		return nil
	}
	sk := offer.SessionKey
	m.pending = &sk
	m.deadline = now.Add(m.cfg.HandshakeTimeout)
	m.log.WithField("gen", m.gen).Debug("key exchange sent")
	return []Action{{Kind: ActionWrite, Frame: f}}
}

func (m *Machine) payload(raw json.RawMessage, now time.Time) []Action {
	if m.state < StateConnected {
		return nil
	}
	env, err := envelope.Parse(raw)
	if err != nil {
		m.log.WithError(err).Warn("dropping malformed payload")
		return nil
	}

	switch env.Type {
	case domain.KeyExchange:
		if m.cfg.Role != RoleExecutor {
			return nil
		}
		sk, err := handshake.Accept(m.cfg.Static, env)
		if err != nil {
			m.log.WithError(err).Warn("key exchange rejected")
			return nil
		}
		acts := m.dropKey()
		m.key, m.hasKey = sk, true
		f, err := messageFrame(handshake.Ack())
		if err != nil {
			return acts
		}
		acts = append(acts, Action{Kind: ActionWrite, Frame: f})
		acts = append(acts, m.setState(StatePaired)...)
		return append(acts, notify(Status{Kind: StatusPaired, State: StatePaired}))

	case domain.KeyExchangeAck:
		if m.cfg.Role != RoleInitiator || m.pending == nil {
			return nil
		}
		m.key, m.hasKey = *m.pending, true
		memzero.Zero(m.pending[:])
		m.pending = nil
		m.deadline = time.Time{}
		acts := m.setState(StatePaired)
		return append(acts, notify(Status{Kind: StatusPaired, State: StatePaired}))
	}

	if !m.hasKey {
		m.log.WithField("type", env.Type).Debug("dropping payload before pairing")
		return nil
	}
	msg, err := envelope.Unwrap(m.key, env)
	if err != nil {
		m.log.WithError(err).WithField("type", env.Type).Debug("dropping undecryptable payload")
		return nil
	}
	if msg.Type == domain.ServerShutdown && m.cfg.Role == RoleInitiator {
		m.log.Info("executor shut down")
		acts := m.disconnect()
		return append(acts, notify(Status{Kind: StatusShutdown, State: m.state}))
	}
	return []Action{{Kind: ActionDeliver, Message: msg}}
}

// dropKey discards the session key and any pending offer.
func (m *Machine) dropKey() []Action {
	if m.pending != nil {
		memzero.Zero(m.pending[:])
		m.pending = nil
	}
	if !m.hasKey {
		return nil
	}
	memzero.Zero(m.key[:])
	m.hasKey = false
	return []Action{notify(Status{Kind: StatusUnpaired, State: m.state})}
}

func (m *Machine) setState(s State) []Action {
	if m.state == s {
		return nil
	}
	m.log.WithFields(logrus.Fields{"gen": m.gen, "from": m.state, "state": s}).Debug("state change")
	m.state = s
	return []Action{notify(Status{Kind: StatusState, State: s})}
}

func notify(s Status) Action { return Action{Kind: ActionNotify, Status: s} }

func messageFrame(env domain.Envelope) (domain.Frame, error) {
	raw, err := envelope.Marshal(env)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("encode envelope: %w", err)
	}
	return domain.Frame{Type: domain.FrameMessage, Payload: raw}, nil
}
