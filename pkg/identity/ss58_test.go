package identity_test

import (
	"crypto/rand"
	"testing"

	"github.com/caster-hub/caster/pkg/identity"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, identity.PublicKeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	key := randomKey(t)

	address, err := identity.Encode(key, identity.DefaultPrefix)
	require.NoError(t, err)

	decoded, err := identity.Decode(address)
	require.NoError(t, err)
	assert.Equal(t, key, decoded)
}

func TestDecodeRejectsCorruptChecksum(t *testing.T) {
	key := randomKey(t)
	address, err := identity.Encode(key, identity.DefaultPrefix)
	require.NoError(t, err)

	raw, err := base58.Decode(address)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff

	_, err = identity.Decode(base58.Encode(raw))
	assert.ErrorIs(t, err, identity.ErrInvalidAddress)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	cases := []string{
		"",
		"not-base58-!!!",
		base58.Encode([]byte{1, 2, 3}),
	}
	for _, address := range cases {
		_, err := identity.Decode(address)
		assert.ErrorIs(t, err, identity.ErrInvalidAddress, "address %q", address)
	}
}

func TestEncodeRejectsBadInputs(t *testing.T) {
	_, err := identity.Encode([]byte{1, 2, 3}, identity.DefaultPrefix)
	assert.ErrorIs(t, err, identity.ErrInvalidAddress)

	_, err = identity.Encode(randomKey(t), 200)
	assert.ErrorIs(t, err, identity.ErrInvalidAddress)
}
