package handshake

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"murmur/internal/crypto"
	"murmur/internal/domain"
	"murmur/internal/protocol/envelope"
	"murmur/internal/util/memzero"
)

var (
	salt = []byte("murmur/handshake/salt/v1")
	info = []byte("murmur/handshake/session-key-wrap")
)

// ErrBadOffer is returned for a key_exchange envelope with missing or
// mis-sized fields.
var ErrBadOffer = errors.New("handshake: malformed key exchange")

// Offer is the initiator's half of one attempt. The ephemeral private key is
// wiped once the offer is built.
type Offer struct {
	Envelope   domain.Envelope
	SessionKey domain.SessionKey
}

// Initiate builds a key_exchange envelope for the executor identified by
// executorPub.
func Initiate(executorPub domain.X25519Public) (Offer, error) {
	if executorPub.IsZero() {
		return Offer{}, fmt.Errorf("%w: empty executor key", ErrBadOffer)
	}
	ephPriv, ephPub, err := crypto.GenerateX25519()
	if err != nil {
		return Offer{}, fmt.Errorf("ephemeral key: %w", err)
	}
	defer memzero.Zero(ephPriv[:])

	wrap, err := deriveWrapKey(ephPriv, executorPub)
	if err != nil {
		return Offer{}, err
	}
	defer memzero.Zero(wrap[:])

	var sk domain.SessionKey
	if _, err := rand.Read(sk[:]); err != nil {
		return Offer{}, fmt.Errorf("session key: %w", err)
	}
	sealed, err := envelope.Seal(wrap, sk[:], nil)
	if err != nil {
		return Offer{}, err
	}
	return Offer{
		Envelope: domain.Envelope{
			Type:                domain.KeyExchange,
			EphemeralPublicKey:  append([]byte(nil), ephPub[:]...),
			EncryptedSessionKey: sealed,
		},
		SessionKey: sk,
	}, nil
}

// Accept recovers the session key from a key_exchange envelope using the
// executor's static private key.
func Accept(static domain.X25519Private, env domain.Envelope) (domain.SessionKey, error) {
	var sk domain.SessionKey
	if env.Type != domain.KeyExchange || len(env.EphemeralPublicKey) != 32 || len(env.EncryptedSessionKey) == 0 {
		return sk, ErrBadOffer
	}
	var ephPub domain.X25519Public
	copy(ephPub[:], env.EphemeralPublicKey)

	wrap, err := deriveWrapKey(static, ephPub)
	if err != nil {
		return sk, err
	}
	defer memzero.Zero(wrap[:])

	raw, err := envelope.Open(wrap, env.EncryptedSessionKey, nil)
	if err != nil {
		return sk, fmt.Errorf("open session key: %w", err)
	}
	defer memzero.Zero(raw)
	if len(raw) != len(sk) {
		return sk, fmt.Errorf("%w: session key is %d bytes", ErrBadOffer, len(raw))
	}
	copy(sk[:], raw)
	return sk, nil
}

// Ack is the executor's reply once the session key has been recovered.
func Ack() domain.Envelope {
	return domain.Envelope{Type: domain.KeyExchangeAck}
}

// deriveWrapKey runs X25519 and HKDF-SHA256 to produce the key that wraps the
// session key.
func deriveWrapKey(priv domain.X25519Private, pub domain.X25519Public) (domain.SessionKey, error) {
	var out domain.SessionKey
	shared, err := crypto.DH(priv, pub)
	if err != nil {
		return out, fmt.Errorf("key agreement: %w", err)
	}
	defer memzero.Zero(shared[:])

	r := hkdf.New(sha256.New, shared[:], salt, info)
	if _, err := io.ReadFull(r, out[:]); err != nil {
		return out, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}
