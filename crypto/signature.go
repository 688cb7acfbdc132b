package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrBadSignature is returned when a signature does not match its signer.
var ErrBadSignature = errors.New("bad signature")

// Sign signs data and returns the signature hex, the form carried in
// transactions and block headers.
func Sign(priv PrivateKey, data []byte) string {
	return hex.EncodeToString(ed25519.Sign(ed25519.PrivateKey(priv), data))
}

// Verify checks sigHex over data against pub.
func Verify(pub PublicKey, data []byte, sigHex string) error {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return fmt.Errorf("%w: signature hex: %v", ErrBadSignature, err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: signer key is %d bytes", ErrBadSignature, len(pub))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, sig) {
		return ErrBadSignature
	}
	return nil
}
