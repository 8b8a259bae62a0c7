package crypto

import (
	"encoding/base64"
	"fmt"

	"murmur/internal/domain"
)

// EncodePublic renders a public key as unpadded URL-safe base64, the form used
// in pairing tokens.
func EncodePublic(pub domain.X25519Public) string {
	return base64.RawURLEncoding.EncodeToString(pub[:])
}

// DecodePublic parses a key rendered by EncodePublic. Padded and standard
// alphabets are accepted as well.
func DecodePublic(s string) (domain.X25519Public, error) {
	var out domain.X25519Public
	var (
		raw []byte
		err error
	)
	for _, enc := range []*base64.Encoding{
		base64.RawURLEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.StdEncoding,
	} {
		raw, err = enc.DecodeString(s)
		if err == nil {
			break
		}
	}
	if err != nil {
		return out, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("public key: want %d bytes, got %d", len(out), len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
