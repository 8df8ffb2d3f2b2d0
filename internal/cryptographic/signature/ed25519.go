package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

func NewEd25519Keypair() ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func ED25519Sign(privKeyBytes []byte, message []byte) []byte {
	privKey := ed25519.PrivateKey(privKeyBytes)
	return ed25519.Sign(privKey, message)
}

// ED25519Verify reports false for keys of the wrong size instead of
// panicking.
func ED25519Verify(pubKeyBytes []byte, message []byte, signature []byte) bool {
	if len(pubKeyBytes) != ed25519.PublicKeySize {
		return false
	}
	pubKey := ed25519.PublicKey(pubKeyBytes)
	return ed25519.Verify(pubKey, message, signature)
}

// ParsePublicKeyHex decodes a hex encoded ed25519 public key.
func ParsePublicKeyHex(pubKeyHex string) ([]byte, error) {
	pub, err := hex.DecodeString(pubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key is %d bytes, want %d", len(pub), ed25519.PublicKeySize)
	}
	return pub, nil
}

// VerifyHex checks a hex encoded signature of message against a hex encoded
// public key. Malformed hex is an error; a well formed but wrong signature is
// just false.
func VerifyHex(pubKeyHex string, message []byte, signatureHex string) (bool, error) {
	pub, err := ParsePublicKeyHex(pubKeyHex)
	if err != nil {
		return false, err
	}

	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	return ED25519Verify(pub, message, sig), nil
}
