// Package envelope seals application messages under a session key.
//
// # Wire form
//
// Every payload-bearing envelope carries nonce‖ciphertext‖tag produced by
// ChaCha20-Poly1305 with a fresh random 96-bit nonce. JSON encoding of the
// surrounding domain.Envelope renders the bytes as standard base64.
//
// # Failure semantics
//
// Open returns ErrDecrypt for any authentication failure, truncated input or
// wrong key. Callers drop the message and continue: during reconnection a
// stale key on either side is expected and is never fatal.
//
// # Type binding
//
// Wrap seals the whole domain.Message, including its type, and Unwrap rejects
// an envelope whose clear type disagrees with the sealed one. The relay sees
// only the clear type.
package envelope
