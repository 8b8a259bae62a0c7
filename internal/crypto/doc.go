// Package crypto exposes the minimal primitives used by murmur.
//
// Contents
//
//   - X25519 key generation, clamping and Diffie–Hellman (GenerateX25519,
//     PublicFromPrivate, DH)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//   - Public key text encoding for pairing tokens (EncodePublic, DecodePublic)
//
// # Notes
//
// All functions return fixed-size array types defined in internal/domain to
// avoid accidental reallocations. Secrets derived from these keys are wiped
// with internal/util/memzero once they are no longer needed.
package crypto
