package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrInvalidKey reports a key that is not valid hex or has the wrong size.
var ErrInvalidKey = errors.New("invalid key")

// PrivateKey is an ed25519 private key. Players, and the block authority,
// sign with it.
type PrivateKey []byte

// PublicKey is an ed25519 public key. Its hex form is the account and player
// address everywhere on chain.
type PublicKey []byte

// GenerateKeyPair draws a fresh ed25519 key pair from crypto/rand.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

// Hex is the address form of pub.
func (pub PublicKey) Hex() string { return hex.EncodeToString(pub) }

func (priv PrivateKey) Hex() string { return hex.EncodeToString(priv) }

// Public returns the address key belonging to priv.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// PubKeyFromHex parses an address.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := decodeKey(s, ed25519.PublicKeySize, "public")
	return PublicKey(b), err
}

// PrivKeyFromHex parses a raw hex private key, as printed by an exported
// wallet.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := decodeKey(s, ed25519.PrivateKeySize, "private")
	return PrivateKey(b), err
}

func decodeKey(s string, size int, kind string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s key hex: %v", ErrInvalidKey, kind, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("%w: %s key is %d bytes, want %d", ErrInvalidKey, kind, len(b), size)
	}
	return b, nil
}
