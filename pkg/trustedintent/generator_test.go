package trustedintent

import (
	"testing"
	"time"

	"github.com/sentryforge/gateway/pkg/crypto"
	"github.com/sentryforge/gateway/pkg/schema"
)

func newTestGenerator(t *testing.T) *Generator {
	t.Helper()
	signer, err := crypto.NewHMACSigner("k1", []byte("01234567890123456789012345678901"))
	if err != nil {
		t.Fatalf("NewHMACSigner: %v", err)
	}
	ring := crypto.NewSigningRing()
	ring.AddKey("k1", signer)
	return New(ring)
}

func TestGenerateSanitizesTopic(t *testing.T) {
	g := newTestGenerator(t)
	ti, err := g.Generate(schema.Intent{
		Action: schema.ActionMathQuestion,
		Topic:  "What is 15 times 7???",
	}, "user-1", "session-1", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ti.TopicID != "what_is_15_times_7" {
		t.Fatalf("topic_id = %q, want %q", ti.TopicID, "what_is_15_times_7")
	}
}

func TestGenerateRejectsEmptySanitizedTopic(t *testing.T) {
	g := newTestGenerator(t)
	_, err := g.Generate(schema.Intent{Action: schema.ActionMathQuestion, Topic: "???"}, "u", "s", nil)
	if err == nil {
		t.Fatal("expected sanitization error for topic that sanitizes to empty")
	}
}

func TestGenerateRejectsOversizedContentRefCardinality(t *testing.T) {
	g := newTestGenerator(t)
	refs := make([]string, 11)
	for i := range refs {
		refs[i] = "ref"
	}
	_, err := g.Generate(schema.Intent{Action: schema.ActionMathQuestion, ContentRefs: refs}, "u", "s", nil)
	if err == nil {
		t.Fatal("expected sanitization error for content_refs cardinality over cap")
	}
}

func TestGenerateDropsUnknownConstraintKeys(t *testing.T) {
	g := newTestGenerator(t)
	ti, err := g.Generate(schema.Intent{
		Action:      schema.ActionMathQuestion,
		Constraints: schema.Constraints{Values: map[string]float64{"max_results": 5, "unknown_key": 99}},
	}, "u", "s", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, ok := ti.Constraints.Values["unknown_key"]; ok {
		t.Fatal("unknown constraint key should have been dropped")
	}
	if ti.Constraints.Values["max_results"] != 5 {
		t.Fatalf("max_results = %v, want 5", ti.Constraints.Values["max_results"])
	}
}

func TestGenerateClampsToCeiling(t *testing.T) {
	g := newTestGenerator(t)
	ti, err := g.Generate(schema.Intent{
		Action:      schema.ActionMathQuestion,
		Constraints: schema.Constraints{Values: map[string]float64{"max_budget": 9999}},
	}, "u", "s", map[string]float64{"max_budget": 100})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if ti.Constraints.Values["max_budget"] != 100 {
		t.Fatalf("max_budget = %v, want clamped to 100", ti.Constraints.Values["max_budget"])
	}
}

// TestSignatureVerifies checks testable property 2: verify(signature,
// content_hash, key) = true and SHA-256(canonical(t)) = content_hash.
func TestSignatureVerifies(t *testing.T) {
	signer, _ := crypto.NewHMACSigner("k1", []byte("01234567890123456789012345678901"))
	ring := crypto.NewSigningRing()
	ring.AddKey("k1", signer)
	g := New(ring)

	ti, err := g.Generate(schema.Intent{Action: schema.ActionMathQuestion, Topic: "15 times 7"}, "u", "s", nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	ok, err := ring.Verify([]byte(ti.ContentHash), ti.Signature)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("signature should verify against its own content hash")
	}
}

// TestContentHashStableAcrossRuns checks testable property 3: two runs
// over equal canonical fields differ only in id/created_at and share a
// content hash.
func TestContentHashStableAcrossRuns(t *testing.T) {
	g1 := newTestGenerator(t).WithClock(func() time.Time { return time.Unix(1, 0) }).WithIDGenerator(func() string { return "id-1" })
	g2 := newTestGenerator(t).WithClock(func() time.Time { return time.Unix(2, 0) }).WithIDGenerator(func() string { return "id-2" })

	intent := schema.Intent{Action: schema.ActionMathQuestion, Topic: "15 times 7"}
	ti1, err := g1.Generate(intent, "u", "s", nil)
	if err != nil {
		t.Fatalf("Generate g1: %v", err)
	}
	ti2, err := g2.Generate(intent, "u", "s", nil)
	if err != nil {
		t.Fatalf("Generate g2: %v", err)
	}

	if ti1.ContentHash != ti2.ContentHash {
		t.Fatalf("content hashes differ: %q vs %q", ti1.ContentHash, ti2.ContentHash)
	}
	if ti1.ID == ti2.ID || ti1.CreatedAt.Equal(ti2.CreatedAt) {
		t.Fatal("id and created_at should differ across runs")
	}
}

func TestSanitizeTopicIdempotent(t *testing.T) {
	once, err := sanitizeTopic("What is 15 times 7???")
	if err != nil {
		t.Fatalf("sanitizeTopic: %v", err)
	}
	twice, err := sanitizeTopic(once)
	if err != nil {
		t.Fatalf("sanitizeTopic (second pass): %v", err)
	}
	if once != twice {
		t.Fatalf("sanitizeTopic is not idempotent: %q != %q", once, twice)
	}
}
