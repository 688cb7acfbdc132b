package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Hash returns the SHA-256 hash of data as a lowercase hex string.
func Hash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashBytes returns the raw SHA-256 bytes of data.
func HashBytes(data []byte) []byte {
	h := sha256.Sum256(data)
	return h[:]
}

// HashFunc is a collision-resistant hash with a 32-byte digest.
type HashFunc func(data []byte) [32]byte

// Supported commitment hashes. SHA256 is the default.
var (
	SHA256     HashFunc = sha256.Sum256
	BLAKE2b256 HashFunc = blake2b.Sum256
)

// HashByName resolves a configured hash name. An empty name selects SHA-256.
func HashByName(name string) (HashFunc, error) {
	switch name {
	case "", "sha256":
		return SHA256, nil
	case "blake2b", "blake2b-256":
		return BLAKE2b256, nil
	default:
		return nil, fmt.Errorf("unknown hash %q", name)
	}
}
