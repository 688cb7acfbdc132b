package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolelom/duelchain/crypto"
)

func signedTx(t *testing.T, priv crypto.PrivateKey, chainID string, nonce uint64) *Transaction {
	t.Helper()
	tx, err := NewTransaction(chainID, TxRegisterPlayer, priv.Public().Hex(), nonce, 0, RegisterPlayerPayload{})
	require.NoError(t, err)
	tx.Sign(priv)
	return tx
}

func TestMempoolOrderAndRemove(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	mp := NewMempool("c")

	var ids []string
	for n := uint64(0); n < 3; n++ {
		tx := signedTx(t, priv, "c", n)
		require.NoError(t, mp.Add(tx))
		ids = append(ids, tx.ID)
	}
	assert.Equal(t, 3, mp.Size())

	pending := mp.Pending(2)
	require.Len(t, pending, 2)
	assert.Equal(t, ids[0], pending[0].ID)
	assert.Equal(t, ids[1], pending[1].ID)

	mp.Remove(ids[:1])
	assert.Equal(t, ids[1], mp.Pending(10)[0].ID)
	_, ok := mp.Get(ids[0])
	assert.False(t, ok)
}

func TestMempoolRejects(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	mp := NewMempool("c")

	assert.ErrorIs(t, mp.Add(signedTx(t, priv, "other", 0)), ErrWrongChainID)

	tx := signedTx(t, priv, "c", 0)
	require.NoError(t, mp.Add(tx))
	assert.ErrorIs(t, mp.Add(tx), ErrDuplicateTx)

	old := signedTx(t, priv, "c", 1)
	old.Timestamp -= 2 * maxTxAge
	old.Sign(priv)
	assert.ErrorIs(t, mp.Add(old), ErrTxExpired)

	forged := signedTx(t, priv, "c", 2)
	forged.Fee = 99
	assert.Error(t, mp.Add(forged))
}
