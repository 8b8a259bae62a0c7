package session

import (
	"errors"
	"time"

	"murmur/internal/domain"
)

var (
	// ErrNotPaired is returned when an application message is sent before a
	// session key exists.
	ErrNotPaired = errors.New("not paired")
	// ErrPairingFailed reports a handshake that was not acknowledged in time.
	ErrPairingFailed = errors.New("pairing failed")
	// ErrClosed is returned once the peer has been shut down.
	ErrClosed = errors.New("session closed")
)

// State is the connection lifecycle position of a peer.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StatePaired
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StatePaired:
		return "paired"
	default:
		return "unknown"
	}
}

// Role selects which side of the handshake a peer plays.
type Role int

const (
	// RoleInitiator holds the executor's static public key and starts the
	// handshake.
	RoleInitiator Role = iota
	// RoleExecutor holds the static private key and answers it.
	RoleExecutor
)

func (r Role) String() string {
	if r == RoleExecutor {
		return "executor"
	}
	return "initiator"
}

// Config is everything a peer needs to reach and pair with its partner.
type Config struct {
	Role     Role
	RelayURL string
	Room     domain.RoomID

	// PeerKey is the executor's static public key (initiator only).
	PeerKey domain.X25519Public
	// Static is the executor's static private key (executor only).
	Static domain.X25519Private

	HandshakeTimeout  time.Duration
	HeartbeatInterval time.Duration
	ProbeTimeout      time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	TickInterval      time.Duration
}

// WithDefaults fills unset durations with the production tuning.
func (c Config) WithDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 10 * time.Second
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 250 * time.Millisecond
	}
	return c
}

// EventKind enumerates the inputs of the state machine.
type EventKind int

const (
	EventStart EventKind = iota
	EventTransportOpen
	EventDialFailed
	EventFrame
	EventTransportLost
	EventProbeFailed
	EventTick
	EventSend
	EventClose
)

// Event is one input to Machine.Step. Gen is the generation the event was
// issued under; events from an older generation are ignored.
type Event struct {
	Kind  EventKind
	Gen   uint64
	Now   time.Time
	Frame domain.Frame
	Err   error

	// EventSend
	Message domain.Message
	Reply   chan<- error

	// EventTransportOpen; consumed by the driver.
	Conn domain.RelayConn
}

// ActionKind enumerates the side effects requested by the state machine.
type ActionKind int

const (
	// ActionDial opens a new transport for Gen after Delay.
	ActionDial ActionKind = iota
	// ActionWrite sends Frame on the current transport, answering Reply.
	ActionWrite
	// ActionProbe performs a liveness round trip on the current transport.
	ActionProbe
	// ActionCloseConn drops the current transport.
	ActionCloseConn
	// ActionDeliver hands a decrypted Message to the application.
	ActionDeliver
	// ActionNotify publishes Status.
	ActionNotify
	// ActionReply answers an EventSend without touching the transport.
	ActionReply
	// ActionStop ends the driver loop.
	ActionStop
)

// Action is one side effect returned by Machine.Step.
type Action struct {
	Kind    ActionKind
	Gen     uint64
	Delay   time.Duration
	Frame   domain.Frame
	Message domain.Message
	Status  Status
	Reply   chan<- error
	Err     error
}

// StatusKind classifies a Status notification.
type StatusKind int

const (
	// StatusState reports a lifecycle transition.
	StatusState StatusKind = iota
	// StatusPaired reports a fresh session key.
	StatusPaired
	// StatusUnpaired reports that the session key was discarded.
	StatusUnpaired
	// StatusFailed reports a user-visible failure in Err.
	StatusFailed
	// StatusShutdown reports that the executor announced a graceful exit.
	StatusShutdown
)

// Status is published to the application as the session evolves.
type Status struct {
	Kind  StatusKind
	State State
	Err   error
}
