package envelope

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"murmur/internal/domain"
)

const (
	// NonceSize is the per-message nonce length.
	NonceSize = chacha20poly1305.NonceSize
	// Overhead is the total bytes added to a plaintext by Seal.
	Overhead = NonceSize + chacha20poly1305.Overhead
)

var (
	// ErrDecrypt reports a message that could not be authenticated.
	ErrDecrypt = errors.New("envelope: decryption failed")
	// ErrTypeMismatch reports a clear envelope type that differs from the
	// sealed message type.
	ErrTypeMismatch = errors.New("envelope: type mismatch")
	// ErrPlaintextType reports a non-handshake type sent without encryption.
	ErrPlaintextType = errors.New("envelope: unencrypted payload type")
)

// Seal encrypts plaintext under key and returns nonce‖ciphertext‖tag.
func Seal(key domain.SessionKey, plaintext, ad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key.Slice())
	if err != nil {
		return nil, err
	}
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	return aead.Seal(out, out[:NonceSize], plaintext, ad), nil
}

// Open reverses Seal. Any failure is reported as ErrDecrypt.
func Open(key domain.SessionKey, wire, ad []byte) ([]byte, error) {
	if len(wire) < Overhead {
		return nil, ErrDecrypt
	}
	aead, err := chacha20poly1305.New(key.Slice())
	if err != nil {
		return nil, ErrDecrypt
	}
	pt, err := aead.Open(nil, wire[:NonceSize], wire[NonceSize:], ad)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

// Wrap encodes msg as JSON and seals it into an envelope of the same type.
func Wrap(key domain.SessionKey, msg domain.Message) (domain.Envelope, error) {
	if msg.Type.IsHandshake() {
		return domain.Envelope{}, fmt.Errorf("wrap %s: %w", msg.Type, ErrPlaintextType)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return domain.Envelope{}, fmt.Errorf("encode message: %w", err)
	}
	ct, err := Seal(key, raw, nil)
	if err != nil {
		return domain.Envelope{}, err
	}
	return domain.Envelope{Type: msg.Type, Encrypted: ct}, nil
}

// Unwrap opens env and decodes the sealed message.
func Unwrap(key domain.SessionKey, env domain.Envelope) (domain.Message, error) {
	if len(env.Encrypted) == 0 {
		return domain.Message{}, ErrPlaintextType
	}
	raw, err := Open(key, env.Encrypted, nil)
	if err != nil {
		return domain.Message{}, err
	}
	var msg domain.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	if msg.Type != env.Type {
		return domain.Message{}, ErrTypeMismatch
	}
	return msg, nil
}

// Marshal renders env as a relay payload.
func Marshal(env domain.Envelope) (json.RawMessage, error) {
	return json.Marshal(env)
}

// Parse decodes a relay payload into an envelope.
func Parse(payload json.RawMessage) (domain.Envelope, error) {
	var env domain.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return env, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Type == "" {
		return env, errors.New("parse envelope: missing type")
	}
	return env, nil
}
