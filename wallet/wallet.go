package wallet

import (
	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
)

// Wallet holds a key pair and provides transaction-building helpers for one
// chain.
type Wallet struct {
	priv    crypto.PrivateKey
	pub     crypto.PublicKey
	chainID string
}

// New creates a Wallet from an existing private key.
func New(priv crypto.PrivateKey, chainID string) *Wallet {
	return &Wallet{priv: priv, pub: priv.Public(), chainID: chainID}
}

// Generate creates a Wallet with a freshly generated key pair.
func Generate(chainID string) (*Wallet, error) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return New(priv, chainID), nil
}

// PrivKey returns the raw private key (handle with care).
func (w *Wallet) PrivKey() crypto.PrivateKey {
	return w.priv
}

// PubKey returns the hex-encoded ed25519 public key (used as "from" address).
func (w *Wallet) PubKey() string {
	return w.pub.Hex()
}

// ChainID returns the chain the wallet signs for.
func (w *Wallet) ChainID() string {
	return w.chainID
}

// NewTx creates a signed transaction. nonce should match the account's
// current nonce.
func (w *Wallet) NewTx(typ core.TxType, nonce, fee uint64, payload any) (*core.Transaction, error) {
	tx, err := core.NewTransaction(w.chainID, typ, w.pub.Hex(), nonce, fee, payload)
	if err != nil {
		return nil, err
	}
	tx.Sign(w.priv)
	return tx, nil
}

// Transfer creates a signed transfer transaction. Empty token means native.
func (w *Wallet) Transfer(to, token string, amount, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxTransfer, nonce, fee, core.TransferPayload{
		To:     to,
		Amount: amount,
		Token:  token,
	})
}

// RegisterPlayer creates a signed register_player transaction.
func (w *Wallet) RegisterPlayer(nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxRegisterPlayer, nonce, fee, core.RegisterPlayerPayload{})
}

// CreateGame creates a signed create_game transaction.
func (w *Wallet) CreateGame(stake uint64, token string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxCreateGame, nonce, fee, core.CreateGamePayload{Stake: stake, Token: token})
}

// JoinGame creates a signed join_game transaction.
func (w *Wallet) JoinGame(gameID uint64, token string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxJoinGame, nonce, fee, core.JoinGamePayload{GameID: gameID, Token: token})
}

// CommitMove creates a signed commit_move transaction for secret. Keep
// secret until the reveal.
func (w *Wallet) CommitMove(gameID uint64, secret *SecretMove, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxCommitMove, nonce, fee, core.CommitMovePayload{
		GameID:     gameID,
		Commitment: secret.Commitment,
	})
}

// RevealMove creates a signed reveal_move transaction opening secret.
func (w *Wallet) RevealMove(gameID uint64, secret *SecretMove, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxRevealMove, nonce, fee, core.RevealMovePayload{
		GameID: gameID,
		Move:   secret.Move,
		Salt:   secret.Salt,
	})
}

// FinalizeGame creates a signed finalize_game transaction.
func (w *Wallet) FinalizeGame(gameID uint64, token string, nonce, fee uint64) (*core.Transaction, error) {
	return w.NewTx(core.TxFinalizeGame, nonce, fee, core.FinalizeGamePayload{GameID: gameID, Token: token})
}
