// Package ledgerstore implements the append-only LedgerEntry persistence
// layer (C2): one record per request, never updated or deleted.
package ledgerstore

import (
	"context"
	"time"

	"github.com/sentryforge/gateway/pkg/schema"
)

// QueryFilter narrows a Query call. Zero values mean "unconstrained".
type QueryFilter struct {
	UserID    string
	SessionID string
	Start     time.Time
	End       time.Time
	Limit     int
}

// Stats summarizes ledger contents for operator dashboards.
type Stats struct {
	TotalEntries   int64
	BlockedCount   int64
	ElevatedCount  int64
	ExecutedCount  int64
}

// Store is the LedgerStore contract from §4.2. Implementations must not
// expose update or delete methods; the interface itself enforces that no
// caller can compile against one even if an implementation's concrete type
// happened to define them.
type Store interface {
	// Append persists entry and returns its assigned id. It must not fail
	// silently: a persistence error is returned as schema.ErrStorageError
	// and is fatal to the request.
	Append(ctx context.Context, entry schema.LedgerEntry) (string, error)

	Get(ctx context.Context, id string) (schema.LedgerEntry, bool, error)
	QueryByUser(ctx context.Context, userID string, limit int) ([]schema.LedgerEntry, error)
	QueryBySession(ctx context.Context, sessionID string) ([]schema.LedgerEntry, error)
	QueryByTimeRange(ctx context.Context, start, end time.Time, limit int) ([]schema.LedgerEntry, error)
	QueryElevations(ctx context.Context, limit int) ([]schema.LedgerEntry, error)
	QueryBlocked(ctx context.Context, limit int) ([]schema.LedgerEntry, error)
	Stats(ctx context.Context) (Stats, error)

	// VerifyChain checks the tamper-evident hash chain, where supported.
	// A store backend that does not maintain one (e.g. a plain
	// append-only table relying only on absent UPDATE/DELETE statements)
	// may return true unconditionally.
	VerifyChain(ctx context.Context) (bool, error)
}
