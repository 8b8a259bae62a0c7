package types

// X25519Public is a Curve25519 public key.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is unset.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// SessionKey is the symmetric key protecting all application traffic of one
// pairing. It is replaced on every pairing and never updated in place.
type SessionKey [32]byte

// Slice returns the key as a []byte.
func (k SessionKey) Slice() []byte { return k[:] }
