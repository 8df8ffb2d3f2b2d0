package signature

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	pub, priv, err := NewEd25519Keypair()
	require.NoError(t, err)

	msg := []byte("challenge")
	sig := ED25519Sign(priv, msg)

	assert.True(t, ED25519Verify(pub, msg, sig))
	assert.False(t, ED25519Verify(pub, []byte("other"), sig))
	assert.False(t, ED25519Verify(pub[:10], msg, sig))
}

func TestVerifyHex(t *testing.T) {
	pub, priv, err := NewEd25519Keypair()
	require.NoError(t, err)
	msg := []byte("challenge")
	sigHex := hex.EncodeToString(ED25519Sign(priv, msg))

	ok, err := VerifyHex(hex.EncodeToString(pub), msg, sigHex)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyHex(hex.EncodeToString(pub), []byte("tampered"), sigHex)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyHex("zz", msg, sigHex)
	assert.Error(t, err)

	_, err = VerifyHex("abcd", msg, sigHex)
	assert.Error(t, err)

	_, err = VerifyHex(hex.EncodeToString(pub), msg, "not-hex")
	assert.Error(t, err)
}

func TestParsePublicKeyHex(t *testing.T) {
	pub, _, err := NewEd25519Keypair()
	require.NoError(t, err)

	got, err := ParsePublicKeyHex(hex.EncodeToString(pub))
	require.NoError(t, err)
	assert.Equal(t, pub, got)

	for _, bad := range []string{"", "zz", "abcd", hex.EncodeToString(append(pub, 0))} {
		_, err := ParsePublicKeyHex(bad)
		assert.Error(t, err, bad)
	}
}
