package interfaces

import (
	"context"

	domaintypes "murmur/internal/domain/types"
)

// IdentityService creates, retrieves, and inspects the executor identity.
type IdentityService interface {
	GenerateIdentity(passphrase string) (
		domaintypes.Identity,
		domaintypes.Fingerprint,
		error,
	)
	LoadIdentity(passphrase string) (domaintypes.Identity, error)
	FingerprintIdentity(passphrase string) (domaintypes.Fingerprint, error)
}

// MessageChannel sends application messages over the paired, encrypted
// channel. Send fails fast when no session key is established.
type MessageChannel interface {
	Send(ctx context.Context, msg domaintypes.Message) error
}

// Capture produces utterance text from an input device.
type Capture interface {
	Name() string
	Start(ctx context.Context) (<-chan string, error)
}
