package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// HMACSigner signs arbitrary byte payloads with a shared symmetric key.
// It is the default signer for trusted intents (§9: "a correct
// implementation uses HMAC-SHA-256 or Ed25519"); Ed25519Signer above is the
// asymmetric substitute and shares its Sign(data []byte) (string, error)
// shape so the two are interchangeable behind a narrow signer interface.
type HMACSigner struct {
	KeyID string
	key   []byte
}

// NewHMACSigner builds a signer from a symmetric key. The key should carry
// at least 256 bits of entropy; callers loading it from the environment are
// responsible for that guarantee.
func NewHMACSigner(keyID string, key []byte) (*HMACSigner, error) {
	if len(key) < 32 {
		return nil, fmt.Errorf("hmac signer: key must be at least 32 bytes, got %d", len(key))
	}
	return &HMACSigner{KeyID: keyID, key: key}, nil
}

// Sign returns the hex-encoded HMAC-SHA-256 MAC of data.
func (s *HMACSigner) Sign(data []byte) (string, error) {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether sigHex is a valid HMAC-SHA-256 MAC of data under
// this key, using constant-time comparison.
func (s *HMACSigner) Verify(data []byte, sigHex string) (bool, error) {
	want, err := s.Sign(data)
	if err != nil {
		return false, err
	}
	wantBytes, err := hex.DecodeString(want)
	if err != nil {
		return false, err
	}
	gotBytes, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("hmac signer: invalid signature hex: %w", err)
	}
	return hmac.Equal(wantBytes, gotBytes), nil
}
