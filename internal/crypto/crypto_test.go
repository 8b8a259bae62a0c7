package crypto_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/crypto"
	"murmur/internal/domain"
)

func TestDH_Agrees(t *testing.T) {
	aPriv, aPub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	ab, err := crypto.DH(aPriv, bPub)
	require.NoError(t, err)
	ba, err := crypto.DH(bPriv, aPub)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)

	pub, err := crypto.PublicFromPrivate(aPriv)
	require.NoError(t, err)
	assert.Equal(t, aPub, pub)
}

func TestDH_RejectsLowOrderPoint(t *testing.T) {
	priv, _, err := crypto.GenerateX25519()
	require.NoError(t, err)
	_, err = crypto.DH(priv, domain.X25519Public{})
	assert.ErrorIs(t, err, crypto.ErrLowOrderPoint)
}

func TestPublicKeyEncoding(t *testing.T) {
	_, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	text := crypto.EncodePublic(pub)
	assert.NotContains(t, text, "=")
	got, err := crypto.DecodePublic(text)
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	// Padded standard base64 is accepted too.
	got, err = crypto.DecodePublic(base64.StdEncoding.EncodeToString(pub[:]))
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	_, err = crypto.DecodePublic("not base64!")
	assert.Error(t, err)
	_, err = crypto.DecodePublic(base64.RawURLEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	fp := crypto.FingerprintX25519(domain.X25519Public{1})
	assert.Len(t, fp.String(), 20)
	assert.Equal(t, fp, crypto.FingerprintX25519(domain.X25519Public{1}))
	assert.NotEqual(t, fp, crypto.FingerprintX25519(domain.X25519Public{2}))
}
