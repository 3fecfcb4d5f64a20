// Package cache implements the optional content-addressed caches from
// §4.11: parser results, vault verdicts, system prompts, and health
// diagnostics, each keyed by a SHA-256 digest of their cacheable input.
// Cache absence is never fatal — callers fall through to a fresh
// computation on a miss or a store error.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Key derives a cache key from the given parts by hashing their
// concatenation. Callers pass the same parts that determine whether two
// requests are cache-equivalent, e.g. (user_input, parser_id,
// system_prompt_version).
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0}) // separator to avoid part-boundary collisions
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Store is a content-addressed byte store with per-key TTL. Every method
// takes a context so a Redis round trip can be bounded by the caller's
// deadline; implementations must treat a context cancellation like any
// other transient failure (return an error, never panic).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Namespace prefixes every key so unrelated cache tiers sharing one Store
// (e.g. one Redis instance for parser results and vault verdicts) cannot
// collide even if their Key() inputs happen to coincide.
type Namespace struct {
	prefix string
	store  Store
}

// NewNamespace scopes store under prefix.
func NewNamespace(prefix string, store Store) Namespace {
	return Namespace{prefix: prefix, store: store}
}

func (n Namespace) fullKey(key string) string {
	var b strings.Builder
	b.WriteString(n.prefix)
	b.WriteByte(':')
	b.WriteString(key)
	return b.String()
}

func (n Namespace) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return n.store.Get(ctx, n.fullKey(key))
}

func (n Namespace) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.store.Set(ctx, n.fullKey(key), value, ttl)
}

// TTLs from §4.11, centralized so every cache tier agrees on them.
const (
	TTLSystemPrompt    = 24 * time.Hour
	TTLHealthBatch     = 1 * time.Hour
	TTLParserResult    = 5 * time.Minute
	TTLVaultResult     = 5 * time.Minute
	TTLLedgerByUser    = 1 * time.Hour
	TTLLedgerByID      = 7 * 24 * time.Hour
	TTLLedgerStats     = 5 * time.Minute
)
