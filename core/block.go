package core

import (
	"encoding/json"
	"time"

	"github.com/tolelom/duelchain/crypto"
)

// BlockHeader contains the block metadata that is hashed and signed.
type BlockHeader struct {
	Height    int64  `json:"height"`
	PrevHash  string `json:"prev_hash"`
	StateRoot string `json:"state_root"` // state after executing this block
	TxRoot    string `json:"tx_root"`
	Timestamp int64  `json:"timestamp"` // unix nanoseconds; duel records use it as their clock
	Proposer  string `json:"proposer"`
}

// Block is an ordered batch of executed transactions with a signed header.
type Block struct {
	Header       BlockHeader    `json:"header"`
	Transactions []*Transaction `json:"transactions"`
	Hash         string         `json:"hash"`
	Signature    string         `json:"signature"`
}

// ComputeHash returns the SHA-256 hash of the serialised header.
func (b *Block) ComputeHash() string {
	data, err := json.Marshal(b.Header)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign sets Hash and signs the block with the proposer's key.
func (b *Block) Sign(priv crypto.PrivateKey) {
	b.Hash = b.ComputeHash()
	b.Signature = crypto.Sign(priv, []byte(b.Hash))
}

// Verify checks the block signature against pub.
func (b *Block) Verify(pub crypto.PublicKey) error {
	return crypto.Verify(pub, []byte(b.Hash), b.Signature)
}

// ComputeTxRoot hashes the concatenated transaction IDs in block order.
func ComputeTxRoot(txs []*Transaction) string {
	if len(txs) == 0 {
		return crypto.Hash([]byte("empty"))
	}
	var ids []byte
	for _, tx := range txs {
		ids = append(ids, tx.ID...)
	}
	return crypto.Hash(ids)
}

// NewBlock creates an unsigned block stamped with the current time. The tx
// root is filled in by Seal once the executed transaction set is known.
func NewBlock(height int64, prevHash, proposer string) *Block {
	return &Block{
		Header: BlockHeader{
			Height:    height,
			PrevHash:  prevHash,
			Timestamp: time.Now().UnixNano(),
			Proposer:  proposer,
		},
	}
}

// Seal fixes the transaction list, tx root and state root, then signs.
func (b *Block) Seal(txs []*Transaction, stateRoot string, priv crypto.PrivateKey) {
	b.Transactions = txs
	b.Header.TxRoot = ComputeTxRoot(txs)
	b.Header.StateRoot = stateRoot
	b.Sign(priv)
}
