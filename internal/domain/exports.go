package domain

import (
	interfaces "murmur/internal/domain/interfaces"
	types "murmur/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	RoomID        = types.RoomID
	SessionID     = types.SessionID
	TurnID        = types.TurnID
	Fingerprint   = types.Fingerprint
	X25519Public  = types.X25519Public
	X25519Private = types.X25519Private
	SessionKey    = types.SessionKey
	Identity      = types.Identity
	Pairing       = types.Pairing
	FrameType     = types.FrameType
	Frame         = types.Frame
	EnvelopeType  = types.EnvelopeType
	Envelope      = types.Envelope
	Message       = types.Message
	Usage         = types.Usage
	Utterance     = types.Utterance
	Turn          = types.Turn
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	IdentityStore   = interfaces.IdentityStore
	PairingStore    = interfaces.PairingStore
	IdentityService = interfaces.IdentityService
	RelayConn       = interfaces.RelayConn
	RelayDialer     = interfaces.RelayDialer
	MessageChannel  = interfaces.MessageChannel
	Capture         = interfaces.Capture
)

// Relay frame types.
const (
	FrameJoin       = types.FrameJoin
	FrameJoined     = types.FrameJoined
	FramePeerJoined = types.FramePeerJoined
	FramePeerLeft   = types.FramePeerLeft
	FrameMessage    = types.FrameMessage
	FrameError      = types.FrameError
)

// Envelope types.
const (
	KeyExchange    = types.KeyExchange
	KeyExchangeAck = types.KeyExchangeAck
	ServerInfo     = types.ServerInfo
	AskText        = types.AskText
	TextStream     = types.TextStream
	TextDone       = types.TextDone
	TextAnswer     = types.TextAnswer
	SessionEnd     = types.SessionEnd
	SessionClear   = types.SessionClear
	SessionCompact = types.SessionCompact
	CompactNeeded  = types.CompactNeeded
	ServerShutdown = types.ServerShutdown
)
