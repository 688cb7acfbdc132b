package core

import "encoding/json"

// NativeToken is the chain's fee and default stake denomination.
const NativeToken = "tol"

// NormalizeToken maps the empty token name to NativeToken.
func NormalizeToken(token string) string {
	if token == "" {
		return NativeToken
	}
	return token
}

// EscrowAddress holds staked funds between join and settlement. It is not a
// public key, so no signed transaction can spend from it.
const EscrowAddress = "escrow:duel"

// Account holds a participant's balances and replay-protection nonce.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string            `json:"address"` // pubkey hex
	Balance uint64            `json:"balance"` // native token
	Tokens  map[string]uint64 `json:"tokens,omitempty"`
	Nonce   uint64            `json:"nonce"`
}

// BalanceOf returns the balance held in token. Empty token means native.
func (a *Account) BalanceOf(token string) uint64 {
	if token == "" || token == NativeToken {
		return a.Balance
	}
	return a.Tokens[token]
}

// SetBalanceOf overwrites the balance held in token.
func (a *Account) SetBalanceOf(token string, amount uint64) {
	if token == "" || token == NativeToken {
		a.Balance = amount
		return
	}
	if a.Tokens == nil {
		a.Tokens = make(map[string]uint64)
	}
	if amount == 0 {
		delete(a.Tokens, token)
		return
	}
	a.Tokens[token] = amount
}

// Receipt records how a submitted transaction ended. Error carries the
// handler's message verbatim when Success is false.
//
// Result holds what the operation returned on success: the player for
// register_player, the game for create/join/commit/reveal, and the game with
// its settlement for finalize_game.
type Receipt struct {
	TxID        string          `json:"tx_id"`
	Type        TxType          `json:"type"`
	From        string          `json:"from"`
	BlockHeight int64           `json:"block_height"`
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// State is the full chain state interface. Implementations must be
// snapshot-able so the executor can roll back failed transactions.
type State interface {
	// Accounts
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Players
	GetPlayer(address string) (*Player, error)
	SetPlayer(p *Player) error
	HasPlayer(address string) (bool, error)

	// Games
	GetGame(id uint64) (*Game, error)
	SetGame(g *Game) error
	// NextGameID returns the next unused game id (starting at 1) and advances
	// the persistent counter.
	NextGameID() (uint64, error)
	ActiveGames() ([]uint64, error)
	AddActiveGame(id uint64) error
	RemoveActiveGame(id uint64) error

	// Receipts are bookkeeping and are not part of the state root.
	GetReceipt(txID string) (*Receipt, error)
	SetReceipt(r *Receipt) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// DiscardSnapshot closes a snapshot after success, keeping its writes.
	DiscardSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current write
	// buffer without flushing. Call this before signing a block.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
