package wallet

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tolelom/duelchain/core"
	"github.com/tolelom/duelchain/crypto"
)

// SecretMove is a move together with the salt that hides it. Only the
// Commitment is published before the reveal.
type SecretMove struct {
	GameID     uint64          `json:"game_id,omitempty"`
	Move       core.Move       `json:"move"`
	Salt       core.Salt       `json:"salt"`
	Commitment core.Commitment `json:"commitment"`
}

// NewSecretMove draws a fresh random salt and commits to move with c. A nil
// c selects SHA-256, the chain default.
func NewSecretMove(move core.Move, c *crypto.Committer) (*SecretMove, error) {
	if !move.Valid() {
		return nil, fmt.Errorf("%w: %d", core.ErrInvalidMove, uint32(move))
	}
	if c == nil {
		c = crypto.NewCommitter(nil)
	}
	var salt core.Salt
	if _, err := io.ReadFull(rand.Reader, salt[:]); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	return &SecretMove{
		Move:       move,
		Salt:       salt,
		Commitment: core.Commitment(c.Commit(uint32(move), salt)),
	}, nil
}

// SaveSecret writes s to path readable only by the owner.
func SaveSecret(path string, s *SecretMove) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadSecret reads a secret written by SaveSecret and checks that its
// commitment still matches under c.
func LoadSecret(path string, c *crypto.Committer) (*SecretMove, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s SecretMove
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse secret %s: %w", path, err)
	}
	if c == nil {
		c = crypto.NewCommitter(nil)
	}
	if !c.Verify(uint32(s.Move), s.Salt, s.Commitment) {
		return nil, fmt.Errorf("secret %s: %w", path, core.ErrCommitmentMismatch)
	}
	return &s, nil
}
