package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyHexRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.Equal(t, pub, priv.Public())

	gotPriv, err := PrivKeyFromHex(priv.Hex())
	require.NoError(t, err)
	assert.Equal(t, priv, gotPriv)
	gotPub, err := PubKeyFromHex(pub.Hex())
	require.NoError(t, err)
	assert.Equal(t, pub, gotPub)
}

func TestKeyFromHexRejects(t *testing.T) {
	_, pub, err := GenerateKeyPair()
	require.NoError(t, err)

	_, err = PrivKeyFromHex(pub.Hex())
	assert.ErrorIs(t, err, ErrInvalidKey, "public key is too short for a private key")
	_, err = PubKeyFromHex("zz")
	assert.ErrorIs(t, err, ErrInvalidKey)
	_, err = PubKeyFromHex(pub.Hex()[:62])
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSignVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	require.NoError(t, err)
	_, other, err := GenerateKeyPair()
	require.NoError(t, err)

	sig := Sign(priv, []byte("commit_move"))
	require.NoError(t, Verify(pub, []byte("commit_move"), sig))
	assert.ErrorIs(t, Verify(pub, []byte("reveal_move"), sig), ErrBadSignature)
	assert.ErrorIs(t, Verify(other, []byte("commit_move"), sig), ErrBadSignature)
	assert.ErrorIs(t, Verify(pub, []byte("commit_move"), "not-hex"), ErrBadSignature)
	assert.ErrorIs(t, Verify(PublicKey{1, 2}, []byte("commit_move"), sig), ErrBadSignature)
}
