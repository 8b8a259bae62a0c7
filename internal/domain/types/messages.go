package types

import "encoding/json"

// FrameType selects a relay-level frame. These are the only types the broker
// understands; everything else travels opaquely inside a message payload.
type FrameType string

const (
	FrameJoin       FrameType = "join"
	FrameJoined     FrameType = "joined"
	FramePeerJoined FrameType = "peer_joined"
	FramePeerLeft   FrameType = "peer_left"
	FrameMessage    FrameType = "message"
	FrameError      FrameType = "error"
)

// Frame is one JSON text message exchanged with the relay broker.
type Frame struct {
	Type    FrameType       `json:"type"`
	Room    RoomID          `json:"room,omitempty"`
	Peers   int             `json:"peers,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// EnvelopeType selects the application message kind carried in a forwarded
// payload.
type EnvelopeType string

const (
	KeyExchange    EnvelopeType = "key_exchange"
	KeyExchangeAck EnvelopeType = "key_exchange_ack"
	ServerInfo     EnvelopeType = "server_info"
	AskText        EnvelopeType = "ask_text"
	TextStream     EnvelopeType = "text_stream"
	TextDone       EnvelopeType = "text_done"
	TextAnswer     EnvelopeType = "text_answer" // non-streaming peers
	SessionEnd     EnvelopeType = "session_end"
	SessionClear   EnvelopeType = "session_clear"
	SessionCompact EnvelopeType = "session_compact"
	CompactNeeded  EnvelopeType = "compact_needed"
	ServerShutdown EnvelopeType = "server_shutdown"
)

// IsHandshake reports whether t may travel without a session key.
func (t EnvelopeType) IsHandshake() bool {
	return t == KeyExchange || t == KeyExchangeAck
}

// Envelope is the forwarded payload. Encrypted is nonce‖ciphertext‖tag under
// the session key and is opaque to the relay.
type Envelope struct {
	Type                EnvelopeType `json:"type"`
	Encrypted           []byte       `json:"encrypted,omitempty"`
	EphemeralPublicKey  []byte       `json:"ephemeral_public_key,omitempty"`
	EncryptedSessionKey []byte       `json:"encrypted_session_key,omitempty"`
}

// Usage is the backend's resource accounting for one turn.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Message is the plaintext sealed inside an Envelope.
type Message struct {
	Type      EnvelopeType `json:"type"`
	SessionID SessionID    `json:"session_id,omitempty"`
	TurnID    TurnID       `json:"turn_id,omitempty"`
	Text      string       `json:"text,omitempty"`
	Index     int          `json:"index"`
	Summary   string       `json:"summary,omitempty"`
	Usage     *Usage       `json:"usage,omitempty"`

	// server_info fields.
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
	Backend string `json:"backend,omitempty"`
}
