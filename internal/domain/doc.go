// Package domain defines core data models and interfaces shared across the app.
// It contains plain types (wire/state) and contracts (interfaces) only.
//
// Relay frames (join, joined, peer_joined, peer_left, message, error) are the
// broker's vocabulary. Envelopes ride inside message frames; their Encrypted
// field is sealed with the session key and never read by the relay.
package domain
