// Package pairing encodes and decodes the out-of-band token that introduces
// an initiator to an executor.
//
// A token carries the relay URL, the room both peers join and the executor's
// static X25519 public key:
//
//	murmur://pair?relay=wss://relay.example/ws&room=<id>&key=<base64url>
//
// It is typically shown as text or a QR code by `murmur pair-code` and
// consumed by `murmur pair`.
package pairing
