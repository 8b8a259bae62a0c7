package pairing_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"murmur/internal/crypto"
	"murmur/internal/domain"
	"murmur/internal/pairing"
)

func TestFormatParse(t *testing.T) {
	_, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)

	in := domain.Pairing{RelayURL: "wss://relay.example.com/ws", Room: pairing.NewRoomID(), ExecutorKey: pub}
	token := pairing.Format(in)
	assert.True(t, strings.HasPrefix(token, "murmur://pair?"))

	out, err := pairing.Parse("  " + token + "\n")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestNewRoomID(t *testing.T) {
	a, b := pairing.NewRoomID(), pairing.NewRoomID()
	assert.Len(t, a.String(), 32)
	assert.NotEqual(t, a, b)
}

func TestParse_Rejects(t *testing.T) {
	_, pub, err := crypto.GenerateX25519()
	require.NoError(t, err)
	key := crypto.EncodePublic(pub)

	cases := map[string]string{
		"garbage":       "::not a url",
		"wrong scheme":  "https://pair?relay=ws://r/ws&room=abc&key=" + key,
		"wrong host":    "murmur://join?relay=ws://r/ws&room=abc&key=" + key,
		"missing room":  "murmur://pair?relay=ws://r/ws&key=" + key,
		"missing relay": "murmur://pair?room=abc&key=" + key,
		"http relay":    "murmur://pair?relay=http://r/ws&room=abc&key=" + key,
		"short key":     "murmur://pair?relay=ws://r/ws&room=abc&key=AAAA",
		"zero key":      "murmur://pair?relay=ws://r/ws&room=abc&key=" + crypto.EncodePublic(domain.X25519Public{}),
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pairing.Parse(token)
			assert.ErrorIs(t, err, pairing.ErrInvalidToken)
		})
	}
}
