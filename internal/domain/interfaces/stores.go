package interfaces

import domaintypes "murmur/internal/domain/types"

// IdentityStore persists the executor's long-term identity keys.
type IdentityStore interface {
	SaveIdentity(passphrase string, id domaintypes.Identity) error
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
}

// PairingStore persists what the initiator learned from a pairing token.
type PairingStore interface {
	SavePairing(pairing domaintypes.Pairing) error
	LoadPairing() (domaintypes.Pairing, bool, error)
	ClearPairing() error
}
