package crypto

import (
	"crypto/subtle"
	"encoding/binary"
)

const (
	// SaltSize is the length of the secret salt mixed into a commitment.
	SaltSize = 32
	// CommitInputSize is the fixed preimage length: 4-byte move id plus salt.
	CommitInputSize = 4 + SaltSize
)

// Committer binds a move identifier to a secret salt. The preimage layout is
// BE32(move) || salt with no length prefixes; both segments are fixed width.
type Committer struct {
	hash HashFunc
}

// NewCommitter returns a Committer using h. A nil h selects SHA-256.
func NewCommitter(h HashFunc) *Committer {
	if h == nil {
		h = SHA256
	}
	return &Committer{hash: h}
}

// Commit returns the digest for (move, salt).
func (c *Committer) Commit(move uint32, salt [SaltSize]byte) [32]byte {
	var buf [CommitInputSize]byte
	binary.BigEndian.PutUint32(buf[:4], move)
	copy(buf[4:], salt[:])
	return c.hash(buf[:])
}

// Verify reports whether expected is exactly the commitment of (move, salt).
func (c *Committer) Verify(move uint32, salt [SaltSize]byte, expected [32]byte) bool {
	got := c.Commit(move, salt)
	return subtle.ConstantTimeCompare(got[:], expected[:]) == 1
}
