package ledgerstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sentryforge/gateway/pkg/schema"
)

// MemoryStore is an in-process, hash-chained ledger. It never mutates or
// removes an entry once appended; callers only ever see new slice indices.
type MemoryStore struct {
	mu        sync.RWMutex
	entries   []schema.LedgerEntry
	byID      map[string]int
	chainHead string
}

// NewMemoryStore returns an empty chain rooted at "genesis".
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]int),
		chainHead: "genesis",
	}
}

func (s *MemoryStore) Append(ctx context.Context, entry schema.LedgerEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry.PreviousHash = s.chainHead
	hash, err := entryHash(entry)
	if err != nil {
		return "", fmt.Errorf("%w: compute entry hash: %v", schema.ErrStorageError, err)
	}
	entry.EntryHash = hash
	s.chainHead = hash

	s.entries = append(s.entries, entry)
	s.byID[entry.ID] = len(s.entries) - 1
	return entry.ID, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (schema.LedgerEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return schema.LedgerEntry{}, false, nil
	}
	return s.entries[idx], true, nil
}

func (s *MemoryStore) QueryByUser(ctx context.Context, userID string, limit int) ([]schema.LedgerEntry, error) {
	return s.filter(limit, func(e schema.LedgerEntry) bool { return e.UserID == userID }), nil
}

func (s *MemoryStore) QueryBySession(ctx context.Context, sessionID string) ([]schema.LedgerEntry, error) {
	return s.filter(0, func(e schema.LedgerEntry) bool { return e.SessionID == sessionID }), nil
}

func (s *MemoryStore) QueryByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]schema.LedgerEntry, error) {
	return s.filter(limit, func(e schema.LedgerEntry) bool {
		if !start.IsZero() && e.Timestamp.Before(start) {
			return false
		}
		if !end.IsZero() && e.Timestamp.After(end) {
			return false
		}
		return true
	}), nil
}

func (s *MemoryStore) QueryElevations(ctx context.Context, limit int) ([]schema.LedgerEntry, error) {
	return s.filter(limit, func(e schema.LedgerEntry) bool { return e.ElevationEvent != nil }), nil
}

func (s *MemoryStore) QueryBlocked(ctx context.Context, limit int) ([]schema.LedgerEntry, error) {
	return s.filter(limit, func(e schema.LedgerEntry) bool { return isBlocked(e) }), nil
}

func isBlocked(e schema.LedgerEntry) bool {
	if e.WasExecuted {
		return false
	}
	if e.ComparisonResult != nil && e.ComparisonResult.Decision == schema.DecisionHardMismatch {
		return true
	}
	if e.VaultVerdict != nil && e.VaultVerdict.ConsensusSuspect {
		return true
	}
	return false
}

func (s *MemoryStore) filter(limit int, pred func(schema.LedgerEntry) bool) []schema.LedgerEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schema.LedgerEntry, 0)
	for _, e := range s.entries {
		if pred(e) {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var st Stats
	for _, e := range s.entries {
		st.TotalEntries++
		if e.ElevationEvent != nil {
			st.ElevatedCount++
		}
		if e.WasExecuted {
			st.ExecutedCount++
		}
		if isBlocked(e) {
			st.BlockedCount++
		}
	}
	return st, nil
}

func (s *MemoryStore) VerifyChain(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expectedPrev := "genesis"
	for i, e := range s.entries {
		if e.PreviousHash != expectedPrev {
			return false, fmt.Errorf("entry %d: previous_hash %s, expected %s", i, e.PreviousHash, expectedPrev)
		}
		recomputed, err := entryHash(e)
		if err != nil {
			return false, fmt.Errorf("entry %d: %w", i, err)
		}
		if recomputed != e.EntryHash {
			return false, fmt.Errorf("entry %d: hash mismatch", i)
		}
		expectedPrev = e.EntryHash
	}
	return true, nil
}

// entryHash hashes the fields that make an entry tamper-evident, excluding
// EntryHash itself (which would be circular).
func entryHash(e schema.LedgerEntry) (string, error) {
	hashable := struct {
		ID           string    `json:"id"`
		SessionID    string    `json:"session_id"`
		UserID       string    `json:"user_id"`
		Timestamp    time.Time `json:"timestamp"`
		UserInputHash string   `json:"user_input_hash"`
		WasExecuted  bool      `json:"was_executed"`
		PreviousHash string    `json:"previous_hash"`
	}{
		ID:            e.ID,
		SessionID:     e.SessionID,
		UserID:        e.UserID,
		Timestamp:     e.Timestamp,
		UserInputHash: e.UserInputHash,
		WasExecuted:   e.WasExecuted,
		PreviousHash:  e.PreviousHash,
	}
	data, err := json.Marshal(hashable)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

var _ Store = (*MemoryStore)(nil)
