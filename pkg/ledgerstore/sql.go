package ledgerstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sentryforge/gateway/pkg/schema"
)

// SQLStore persists ledger entries via database/sql. It is driver-agnostic:
// pass a *sql.DB opened with "postgres" (github.com/lib/pq) or "sqlite"
// (modernc.org/sqlite). The schema has no UPDATE or DELETE statement
// anywhere in this file; append-only is enforced by omission, not by a
// runtime check.
type SQLStore struct {
	db       *sql.DB
	dialect  Dialect
}

// Dialect abstracts the handful of syntax differences between backends.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	timestamp TIMESTAMP NOT NULL,
	user_input_hash TEXT NOT NULL,
	was_executed BOOLEAN NOT NULL,
	blocked BOOLEAN NOT NULL,
	elevated BOOLEAN NOT NULL,
	previous_hash TEXT NOT NULL,
	entry_hash TEXT NOT NULL,
	payload TEXT NOT NULL
);
`

const createIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_ledger_user ON ledger_entries(user_id);
CREATE INDEX IF NOT EXISTS idx_ledger_session ON ledger_entries(session_id);
CREATE INDEX IF NOT EXISTS idx_ledger_timestamp ON ledger_entries(timestamp);
`

// NewSQLStore wraps db. Call Init once at startup.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("ledgerstore: create table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, createIndexesSQL); err != nil {
		return fmt.Errorf("ledgerstore: create indexes: %w", err)
	}
	return nil
}

func (s *SQLStore) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) Append(ctx context.Context, entry schema.LedgerEntry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	head, err := s.chainHead(ctx)
	if err != nil {
		return "", err
	}
	entry.PreviousHash = head

	hash, err := entryHash(entry)
	if err != nil {
		return "", fmt.Errorf("%w: compute entry hash: %v", schema.ErrStorageError, err)
	}
	entry.EntryHash = hash

	payload, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("%w: marshal payload: %v", schema.ErrStorageError, err)
	}

	blocked := isBlocked(entry)
	elevated := entry.ElevationEvent != nil

	query := fmt.Sprintf(`INSERT INTO ledger_entries
		(id, session_id, user_id, timestamp, user_input_hash, was_executed, blocked, elevated, previous_hash, entry_hash, payload)
		VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4), s.placeholder(5),
		s.placeholder(6), s.placeholder(7), s.placeholder(8), s.placeholder(9), s.placeholder(10), s.placeholder(11))

	_, err = s.db.ExecContext(ctx, query,
		entry.ID, entry.SessionID, entry.UserID, entry.Timestamp, entry.UserInputHash,
		entry.WasExecuted, blocked, elevated, entry.PreviousHash, entry.EntryHash, string(payload))
	if err != nil {
		return "", fmt.Errorf("%w: insert: %v", schema.ErrStorageError, err)
	}
	return entry.ID, nil
}

func (s *SQLStore) chainHead(ctx context.Context) (string, error) {
	row := s.db.QueryRowContext(ctx, `SELECT entry_hash FROM ledger_entries ORDER BY timestamp DESC LIMIT 1`)
	var hash string
	err := row.Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "genesis", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read chain head: %v", schema.ErrStorageError, err)
	}
	return hash, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (schema.LedgerEntry, bool, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT payload FROM ledger_entries WHERE id = %s`, s.placeholder(1)), id)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.LedgerEntry{}, false, nil
		}
		return schema.LedgerEntry{}, false, fmt.Errorf("%w: %v", schema.ErrStorageError, err)
	}
	var entry schema.LedgerEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return schema.LedgerEntry{}, false, fmt.Errorf("%w: decode payload: %v", schema.ErrStorageError, err)
	}
	return entry, true, nil
}

func (s *SQLStore) queryRows(ctx context.Context, where string, args ...any) ([]schema.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT payload FROM ledger_entries %s ORDER BY timestamp ASC`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", schema.ErrStorageError, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]schema.LedgerEntry, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%w: %v", schema.ErrStorageError, err)
		}
		var entry schema.LedgerEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, fmt.Errorf("%w: decode payload: %v", schema.ErrStorageError, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SQLStore) QueryByUser(ctx context.Context, userID string, limit int) ([]schema.LedgerEntry, error) {
	where := fmt.Sprintf("WHERE user_id = %s", s.placeholder(1))
	entries, err := s.queryRows(ctx, where, userID)
	if err != nil || limit <= 0 || len(entries) <= limit {
		return entries, err
	}
	return entries[:limit], nil
}

func (s *SQLStore) QueryBySession(ctx context.Context, sessionID string) ([]schema.LedgerEntry, error) {
	return s.queryRows(ctx, fmt.Sprintf("WHERE session_id = %s", s.placeholder(1)), sessionID)
}

func (s *SQLStore) QueryByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]schema.LedgerEntry, error) {
	where := fmt.Sprintf("WHERE timestamp >= %s AND timestamp <= %s", s.placeholder(1), s.placeholder(2))
	entries, err := s.queryRows(ctx, where, start, end)
	if err != nil || limit <= 0 || len(entries) <= limit {
		return entries, err
	}
	return entries[:limit], nil
}

func (s *SQLStore) QueryElevations(ctx context.Context, limit int) ([]schema.LedgerEntry, error) {
	entries, err := s.queryRows(ctx, "WHERE elevated = true")
	if err != nil || limit <= 0 || len(entries) <= limit {
		return entries, err
	}
	return entries[:limit], nil
}

func (s *SQLStore) QueryBlocked(ctx context.Context, limit int) ([]schema.LedgerEntry, error) {
	entries, err := s.queryRows(ctx, "WHERE blocked = true")
	if err != nil || limit <= 0 || len(entries) <= limit {
		return entries, err
	}
	return entries[:limit], nil
}

func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN blocked THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN elevated THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN was_executed THEN 1 ELSE 0 END), 0)
		FROM ledger_entries`)
	var st Stats
	if err := row.Scan(&st.TotalEntries, &st.BlockedCount, &st.ElevatedCount, &st.ExecutedCount); err != nil {
		return Stats{}, fmt.Errorf("%w: %v", schema.ErrStorageError, err)
	}
	return st, nil
}

func (s *SQLStore) VerifyChain(ctx context.Context) (bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload, previous_hash, entry_hash FROM ledger_entries ORDER BY timestamp ASC`)
	if err != nil {
		return false, fmt.Errorf("%w: %v", schema.ErrStorageError, err)
	}
	defer func() { _ = rows.Close() }()

	expectedPrev := "genesis"
	for rows.Next() {
		var payload, prevHash, entryHashStr string
		if err := rows.Scan(&payload, &prevHash, &entryHashStr); err != nil {
			return false, fmt.Errorf("%w: %v", schema.ErrStorageError, err)
		}
		if prevHash != expectedPrev {
			return false, fmt.Errorf("chain broken: expected previous_hash %s, got %s", expectedPrev, prevHash)
		}
		var entry schema.LedgerEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return false, fmt.Errorf("%w: decode payload: %v", schema.ErrStorageError, err)
		}
		entry.PreviousHash = prevHash
		recomputed, err := entryHash(entry)
		if err != nil {
			return false, err
		}
		if recomputed != entryHashStr {
			return false, fmt.Errorf("chain broken: entry hash mismatch for %s", entry.ID)
		}
		expectedPrev = entryHashStr
	}
	return true, rows.Err()
}

var _ Store = (*SQLStore)(nil)
