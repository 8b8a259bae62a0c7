// Package identity manages creation, encryption and loading of the executor's
// static X25519 identity.
//
// It enforces a passphrase policy and persists the key pair via a
// domain.IdentityStore.
package identity
