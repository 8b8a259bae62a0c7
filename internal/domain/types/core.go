package types

// RoomID is the opaque random rendezvous token shared by both peers.
type RoomID string

// String returns the string form of the room identifier.
func (id RoomID) String() string { return string(id) }

// SessionID identifies a conversation session with the executor's backend.
type SessionID string

// String returns the string form of the session identifier.
func (id SessionID) String() string { return string(id) }

// TurnID identifies one request/response pair within a conversation.
type TurnID string

// String returns the string form of the turn identifier.
func (id TurnID) String() string { return string(id) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }
