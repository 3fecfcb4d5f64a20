package crypto

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ContentSigner signs arbitrary byte payloads. Both *Ed25519Signer and
// *HMACSigner satisfy it; verification is done by SigningRing, not through
// this interface.
type ContentSigner interface {
	Sign(data []byte) (string, error)
}

// SigningRing holds a rotating set of content signers keyed by opaque key
// id, the way KeyRing holds Signer values for contracts.DecisionRecord but
// generalized to plain byte payloads (trusted-intent content hashes do not
// carry a contracts.DecisionRecord shape). Active-key selection is
// deterministic: the lexicographically last key id is treated as current,
// matching KeyRing's rotation rule.
type SigningRing struct {
	mu      sync.RWMutex
	signers map[string]ContentSigner
}

// NewSigningRing returns an empty ring.
func NewSigningRing() *SigningRing {
	return &SigningRing{signers: make(map[string]ContentSigner)}
}

// AddKey registers a signer under keyID. Rotation is: add the new key, keep
// signing with the lexicographically last id, then RevokeKey the old one
// once every outstanding signature made with it has had time to be
// verified.
func (r *SigningRing) AddKey(keyID string, signer ContentSigner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signers[keyID] = signer
}

// RevokeKey removes a key from the ring. Signatures produced under a
// revoked key id no longer verify.
func (r *SigningRing) RevokeKey(keyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.signers, keyID)
}

// activeKeyID returns the lexicographically last registered key id.
func (r *SigningRing) activeKeyID() (string, error) {
	if len(r.signers) == 0 {
		return "", fmt.Errorf("signing ring: no keys registered")
	}
	ids := make([]string, 0, len(r.signers))
	for id := range r.signers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids[len(ids)-1], nil
}

// Sign signs data with the active key and returns "keyID:signature" so a
// verifier can locate the right key without trying all of them. Signatures
// are still accepted by Verify without an embedded id, tolerant of records
// produced before this convention existed.
func (r *SigningRing) Sign(data []byte) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keyID, err := r.activeKeyID()
	if err != nil {
		return "", err
	}
	sig, err := r.signers[keyID].Sign(data)
	if err != nil {
		return "", fmt.Errorf("signing ring: sign with key %s: %w", keyID, err)
	}
	return keyID + ":" + sig, nil
}

// Verify checks a signature produced by Sign. It tries the embedded key id
// first; if the signature carries no recognizable id (or that key has been
// revoked), it falls back to trying every registered key so verification
// stays tolerant of acceptable keys during rotation, per §6.
func (r *SigningRing) Verify(data []byte, signature string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.signers) == 0 {
		return false, fmt.Errorf("signing ring: no keys registered")
	}

	if keyID, sig, ok := strings.Cut(signature, ":"); ok {
		if signer, exists := r.signers[keyID]; exists {
			if ok, err := verifyWith(signer, data, sig); err == nil {
				return ok, nil
			}
		}
	}

	for _, signer := range r.signers {
		if ok, err := verifyWith(signer, data, signature); err == nil && ok {
			return true, nil
		}
	}
	return false, nil
}

func verifyWith(signer ContentSigner, data []byte, sig string) (bool, error) {
	switch s := signer.(type) {
	case *HMACSigner:
		return s.Verify(data, sig)
	case *Ed25519Signer:
		return Verify(s.PublicKey(), sig, data)
	default:
		return false, fmt.Errorf("signing ring: unsupported signer type %T", signer)
	}
}
