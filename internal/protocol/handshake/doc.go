// Package handshake bootstraps a session key between an initiator and an
// executor that have never talked before.
//
// # Overview
//
// The initiator knows the executor's static X25519 public key out of band
// (from a pairing token). Per attempt it:
//  1. Generates an ephemeral X25519 key pair.
//  2. Computes DH(ephemeral, executor static).
//  3. Runs HKDF-SHA256 over the shared secret with a protocol salt and info
//     label to obtain a 256-bit wrapping key. The wrapping key never leaves
//     the process.
//  4. Generates a random 256-bit session key and seals it under the wrapping
//     key (ChaCha20-Poly1305, nonce‖ciphertext‖tag).
//  5. Sends key_exchange{ephemeral_public_key, encrypted_session_key}.
//
// The executor repeats steps 2 and 3 with its static private key and the
// received ephemeral public key, opens the session key and answers with
// key_exchange_ack.
//
// # Errors
//
// Accept returns ErrBadOffer for malformed offers and wraps envelope.ErrDecrypt
// when the session key cannot be authenticated. Either way no ack is sent and
// the initiator times out.
//
// # Security notes
//
// A fresh ephemeral pair and session key are drawn for every attempt, so
// re-running after a mid-handshake disconnect never reuses key material.
package handshake
