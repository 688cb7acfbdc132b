package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/duelchain/config"
	"github.com/tolelom/duelchain/crypto"
	"github.com/tolelom/duelchain/wallet"
)

func TestGenKeyImportsHexKey(t *testing.T) {
	t.Setenv(config.EnvPassword, "pw")
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "imported.key")

	require.NoError(t, cmdGenKey([]string{"-key", path, "-key-hex", priv.Hex()}))
	got, err := wallet.LoadKey(path, "pw")
	require.NoError(t, err)
	assert.Equal(t, priv, got)

	err = cmdGenKey([]string{"-key", filepath.Join(t.TempDir(), "bad.key"), "-key-hex", "abcd"})
	assert.ErrorIs(t, err, crypto.ErrInvalidKey)
}
