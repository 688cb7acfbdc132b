package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tolelom/duelchain/crypto"
)

// TxType identifies the kind of operation a transaction performs.
type TxType string

const (
	TxTransfer       TxType = "transfer"
	TxRegisterPlayer TxType = "register_player"
	TxCreateGame     TxType = "create_game"
	TxJoinGame       TxType = "join_game"
	TxCommitMove     TxType = "commit_move"
	TxRevealMove     TxType = "reveal_move"
	TxFinalizeGame   TxType = "finalize_game"
)

// Transaction is the atomic unit of work on the chain.
// From holds the sender's full hex-encoded ed25519 public key (64 chars);
// a verified signature is what proves the caller is From.
type Transaction struct {
	ID        string          `json:"id"`
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields covered by the signature.
type signingBody struct {
	ChainID   string          `json:"chain_id"`
	Type      TxType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Fee       uint64          `json:"fee"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the transaction (sans Signature).
func (tx *Transaction) Hash() string {
	data, err := json.Marshal(signingBody{
		ChainID:   tx.ChainID,
		Type:      tx.Type,
		From:      tx.From,
		Nonce:     tx.Nonce,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
		Payload:   tx.Payload,
	})
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (tx *Transaction) Sign(priv crypto.PrivateKey) {
	hash := tx.Hash()
	tx.Signature = crypto.Sign(priv, []byte(hash))
	tx.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (tx *Transaction) Verify() error {
	if tx.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(tx.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(tx.Hash()), tx.Signature)
}

// NewTransaction creates an unsigned transaction with the current timestamp.
func NewTransaction(chainID string, typ TxType, from string, nonce, fee uint64, payload any) (*Transaction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Transaction{
		ChainID:   chainID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: time.Now().UnixNano(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves tokens between accounts. Empty Token means native.
type TransferPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
	Token  string `json:"token,omitempty"`
}

// RegisterPlayerPayload registers the sender as a duel player.
type RegisterPlayerPayload struct{}

// CreateGamePayload opens a game and escrows the creator's stake.
type CreateGamePayload struct {
	Stake uint64 `json:"stake"`
	Token string `json:"token,omitempty"`
}

// JoinGamePayload takes the second seat and escrows the matching stake.
type JoinGamePayload struct {
	GameID uint64 `json:"game_id"`
	Token  string `json:"token,omitempty"`
}

// CommitMovePayload submits a hiding commitment to a move.
type CommitMovePayload struct {
	GameID     uint64     `json:"game_id"`
	Commitment Commitment `json:"commitment"`
}

// RevealMovePayload opens a previously committed move.
type RevealMovePayload struct {
	GameID uint64 `json:"game_id"`
	Move   Move   `json:"move"`
	Salt   Salt   `json:"salt"`
}

// FinalizeGamePayload resolves a fully revealed game and pays out.
type FinalizeGamePayload struct {
	GameID uint64 `json:"game_id"`
	Token  string `json:"token,omitempty"`
}
