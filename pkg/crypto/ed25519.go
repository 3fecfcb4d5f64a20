package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Ed25519Signer is the asymmetric counterpart to HMACSigner: same narrow
// Sign(data []byte) (string, error) shape, so a SigningRing can hold a mix
// of both behind ContentSigner without the rest of the pipeline caring
// which one produced a given signature.
type Ed25519Signer struct {
	KeyID      string
	privateKey ed25519.PrivateKey
}

// NewEd25519Signer generates a fresh Ed25519 keypair for keyID.
func NewEd25519Signer(keyID string) (*Ed25519Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ed25519 signer: generate key: %w", err)
	}
	return &Ed25519Signer{KeyID: keyID, privateKey: priv}, nil
}

// NewEd25519SignerFromSeed reconstructs a signer from a 32-byte seed, for
// loading a key persisted outside the process.
func NewEd25519SignerFromSeed(keyID string, seed []byte) (*Ed25519Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("ed25519 signer: seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return &Ed25519Signer{KeyID: keyID, privateKey: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKey returns the public half of the keypair, needed by Verify.
func (s *Ed25519Signer) PublicKey() ed25519.PublicKey {
	return s.privateKey.Public().(ed25519.PublicKey)
}

// Sign returns the hex-encoded Ed25519 signature of data.
func (s *Ed25519Signer) Sign(data []byte) (string, error) {
	sig := ed25519.Sign(s.privateKey, data)
	return hex.EncodeToString(sig), nil
}

// Verify checks an Ed25519 signature against a public key. Unlike
// HMACSigner.Verify, this is a package-level function because verification
// only ever needs the public key, never a full signer.
func Verify(pub ed25519.PublicKey, sigHex string, data []byte) (bool, error) {
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("ed25519 verify: invalid signature hex: %w", err)
	}
	return ed25519.Verify(pub, data, sig), nil
}
