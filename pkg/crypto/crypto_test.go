package crypto

import "testing"

func TestHMACSignerSignVerify(t *testing.T) {
	s, err := NewHMACSigner("k1", []byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewHMACSigner: %v", err)
	}
	sig, err := s.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := s.Verify([]byte("payload"), sig)
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v, want true, nil", ok, err)
	}
	ok, err = s.Verify([]byte("tampered"), sig)
	if err != nil || ok {
		t.Fatalf("Verify of tampered payload = %v, %v, want false, nil", ok, err)
	}
}

func TestHMACSignerRejectsShortKey(t *testing.T) {
	if _, err := NewHMACSigner("k1", []byte("too-short")); err == nil {
		t.Fatal("expected an error for a key under 32 bytes")
	}
}

func TestEd25519SignerSignVerify(t *testing.T) {
	s, err := NewEd25519Signer("k1")
	if err != nil {
		t.Fatalf("NewEd25519Signer: %v", err)
	}
	sig, err := s.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	ok, err := Verify(s.PublicKey(), sig, []byte("payload"))
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v, want true, nil", ok, err)
	}
	ok, err = Verify(s.PublicKey(), sig, []byte("tampered"))
	if err != nil || ok {
		t.Fatalf("Verify of tampered payload = %v, %v, want false, nil", ok, err)
	}
}

func TestSigningRingPrefersLexicographicallyLastKey(t *testing.T) {
	a, _ := NewHMACSigner("a", []byte("0123456789abcdef0123456789abcdef"))
	z, _ := NewHMACSigner("z", []byte("fedcba9876543210fedcba9876543210"))

	ring := NewSigningRing()
	ring.AddKey("a", a)
	ring.AddKey("z", z)

	sig, err := ring.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	direct, err := z.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("z.Sign: %v", err)
	}
	if sig != "z:"+direct {
		t.Fatalf("Sign() = %q, want key z to be active", sig)
	}
}

func TestSigningRingVerifyTriesAllKeysOnRotation(t *testing.T) {
	oldSigner, _ := NewHMACSigner("a", []byte("0123456789abcdef0123456789abcdef"))
	newSigner, _ := NewHMACSigner("b", []byte("fedcba9876543210fedcba9876543210"))

	ring := NewSigningRing()
	ring.AddKey("a", oldSigner)
	sig, err := ring.Sign([]byte("payload"))
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	ring.AddKey("b", newSigner)
	ok, err := ring.Verify([]byte("payload"), sig)
	if err != nil || !ok {
		t.Fatalf("Verify of a signature from a rotated-out key = %v, %v, want true, nil", ok, err)
	}

	ring.RevokeKey("a")
	ok, err = ring.Verify([]byte("payload"), sig)
	if err != nil || ok {
		t.Fatalf("Verify after RevokeKey(a) = %v, %v, want false, nil", ok, err)
	}
}
