package ledgerstore

import (
	"context"
	"testing"

	"github.com/sentryforge/gateway/pkg/schema"
)

func TestMemoryStoreAppendAndGet(t *testing.T) {
	s := NewMemoryStore()
	id, err := s.Append(context.Background(), schema.LedgerEntry{UserID: "u1", SessionID: "s1"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	got, ok, err := s.Get(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.UserID != "u1" {
		t.Fatalf("UserID = %q, want u1", got.UserID)
	}
	if got.EntryHash == "" || got.PreviousHash != "genesis" {
		t.Fatalf("expected first entry chained to genesis, got previous_hash=%q entry_hash=%q", got.PreviousHash, got.EntryHash)
	}
}

func TestMemoryStoreChainsSequentialEntries(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id1, _ := s.Append(ctx, schema.LedgerEntry{UserID: "u1"})
	id2, _ := s.Append(ctx, schema.LedgerEntry{UserID: "u1"})

	e1, _, _ := s.Get(ctx, id1)
	e2, _, _ := s.Get(ctx, id2)
	if e2.PreviousHash != e1.EntryHash {
		t.Fatalf("entry 2 previous_hash %q does not match entry 1 entry_hash %q", e2.PreviousHash, e1.EntryHash)
	}

	ok, err := s.VerifyChain(ctx)
	if err != nil || !ok {
		t.Fatalf("VerifyChain: ok=%v err=%v", ok, err)
	}
}

func TestMemoryStoreVerifyChainDetectsTamper(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id, _ := s.Append(ctx, schema.LedgerEntry{UserID: "u1"})

	idx := s.byID[id]
	s.entries[idx].UserID = "tampered"

	ok, err := s.VerifyChain(ctx)
	if ok || err == nil {
		t.Fatal("expected VerifyChain to detect the tampered entry")
	}
}

func TestMemoryStoreQueryBlockedAndElevations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	s.Append(ctx, schema.LedgerEntry{
		UserID:           "u1",
		ComparisonResult: &schema.ComparisonResult{Decision: schema.DecisionHardMismatch},
	})
	s.Append(ctx, schema.LedgerEntry{
		UserID:         "u1",
		ElevationEvent: &schema.ElevationEvent{Status: schema.ApprovalApproved},
		WasExecuted:    true,
	})
	s.Append(ctx, schema.LedgerEntry{UserID: "u1", WasExecuted: true})

	blocked, err := s.QueryBlocked(ctx, 0)
	if err != nil {
		t.Fatalf("QueryBlocked: %v", err)
	}
	if len(blocked) != 1 {
		t.Fatalf("len(blocked) = %d, want 1", len(blocked))
	}

	elevated, err := s.QueryElevations(ctx, 0)
	if err != nil {
		t.Fatalf("QueryElevations: %v", err)
	}
	if len(elevated) != 1 {
		t.Fatalf("len(elevated) = %d, want 1", len(elevated))
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalEntries != 3 || stats.BlockedCount != 1 || stats.ElevatedCount != 1 || stats.ExecutedCount != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMemoryStoreQueryByUserRespectsLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s.Append(ctx, schema.LedgerEntry{UserID: "u1"})
	}
	results, err := s.QueryByUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("QueryByUser: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
}
