// Package store provides file-based persistence for murmur.
//
// The executor's long-term identity is kept encrypted under a passphrase
// (scrypt + ChaCha20-Poly1305). The initiator's pairing is plain JSON: it
// holds only public material and an opaque room id. Every write goes through
// a temp file and rename so a crash never leaves a truncated file behind.
package store
