package identity

import (
	"errors"
	"fmt"
	"unicode"

	"murmur/internal/crypto"
	"murmur/internal/domain"
)

const minPassphraseLength = 12

var (
	// ErrWeakPassphrase is returned when the passphrase fails the strength policy.
	ErrWeakPassphrase = fmt.Errorf(
		"passphrase is too weak (must be at least %d characters and include upper, lower, "+
			"number, and symbol)",
		minPassphraseLength,
	)
	// ErrInconsistent is returned when the stored private key does not
	// produce the stored public key.
	ErrInconsistent = errors.New("identity: private key does not match stored public key")
)

// Service manages the executor identity using a backing store.
//
// The identity is a single X25519 key pair. Its public half is handed to the
// initiator in the pairing token; the private half opens key_exchange offers.
type Service struct {
	store domain.IdentityStore
}

// New returns an identity service backed by the given store.
func New(s domain.IdentityStore) *Service { return &Service{store: s} }

// GenerateIdentity creates a new identity, saves it encrypted with the
// passphrase and returns it with its fingerprint.
func (s *Service) GenerateIdentity(passphrase string) (domain.Identity, domain.Fingerprint, error) {
	if !isSecurePassphrase(passphrase) {
		return domain.Identity{}, "", ErrWeakPassphrase
	}
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		return domain.Identity{}, "", err
	}
	id := domain.Identity{XPub: pub, XPriv: priv}
	if err := s.store.SaveIdentity(passphrase, id); err != nil {
		return domain.Identity{}, "", err
	}
	return id, crypto.FingerprintX25519(pub), nil
}

// LoadIdentity decrypts the identity and checks that the stored halves match.
func (s *Service) LoadIdentity(passphrase string) (domain.Identity, error) {
	id, err := s.store.LoadIdentity(passphrase)
	if err != nil {
		return domain.Identity{}, err
	}
	pub, err := crypto.PublicFromPrivate(id.XPriv)
	if err != nil {
		return domain.Identity{}, err
	}
	if pub != id.XPub {
		return domain.Identity{}, ErrInconsistent
	}
	return id, nil
}

// FingerprintIdentity returns the short fingerprint of the identity's public key.
func (s *Service) FingerprintIdentity(passphrase string) (domain.Fingerprint, error) {
	id, err := s.LoadIdentity(passphrase)
	if err != nil {
		return "", err
	}
	return crypto.FingerprintX25519(id.XPub), nil
}

func isSecurePassphrase(passphrase string) bool {
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	if len(passphrase) < minPassphraseLength {
		return false
	}
	for _, r := range passphrase {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}

var _ domain.IdentityService = (*Service)(nil)
