// Package cache implements the response cache (component D): a
// content-addressed store of LLM responses keyed by the full request
// fingerprint, with TTL and LRU eviction.
//
// Grounded on original_source/backend/src/cache/mod.rs's LlmCache.
package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// Request is the fingerprinted shape of a single LLM call, matching
// §4.D's canonical serialization fields exactly.
type Request struct {
	Messages       any    `json:"messages"`
	Tools          any    `json:"tools,omitempty"`
	System         string `json:"system,omitempty"`
	Model          string `json:"model"`
	ReasoningEffort string `json:"reasoning_effort,omitempty"`
}

// Cached is the payload returned by Get.
type Cached struct {
	Response     string
	TokensIn     int64
	TokensOut    int64
	CostUSD      float64
	AccessCount  int64
	CreatedAt    time.Time
	LastAccessed time.Time
	ExpiresAt    *time.Time
}

// Cache is the component D response cache, backed by the llm_cache
// table. A nil *Cache or one constructed with enabled=false behaves as
// specified in §8 "Cache disabled": Get always misses, Put is a no-op.
type Cache struct {
	db      *sql.DB
	mu      sync.Mutex
	enabled bool
}

// New creates a Cache over db (normally store.Store.DB()).
func New(db *sql.DB) *Cache {
	return &Cache{db: db, enabled: true}
}

// SetEnabled implements the single enable/disable toggle from §4.D.
func (c *Cache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled = enabled
}

// Enabled reports the current toggle state.
func (c *Cache) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Fingerprint computes SHA-256(canonical_json(req)) per §4.D.
func Fingerprint(req Request) (string, error) {
	b, err := canonicalJSON(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Get looks up a fingerprint. If the entry is expired it is deleted and
// (nil, false) is returned; otherwise access_count is bumped and
// last_accessed refreshed before the payload is returned.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*Cached, bool, error) {
	if !c.Enabled() {
		return nil, false, nil
	}

	row := c.db.QueryRowContext(ctx, `
		SELECT response, tokens_in, tokens_out, cost_usd, access_count, created_at, last_accessed, expires_at
		FROM llm_cache WHERE fingerprint = ?
	`, fingerprint)

	var cached Cached
	var createdAt, lastAccessed int64
	var expiresAt sql.NullInt64

	if err := row.Scan(&cached.Response, &cached.TokensIn, &cached.TokensOut, &cached.CostUSD,
		&cached.AccessCount, &createdAt, &lastAccessed, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	cached.CreatedAt = time.Unix(createdAt, 0)
	cached.LastAccessed = time.Unix(lastAccessed, 0)

	now := time.Now()
	if expiresAt.Valid {
		exp := time.Unix(expiresAt.Int64, 0)
		cached.ExpiresAt = &exp
		if !now.Before(exp) {
			_, _ = c.db.ExecContext(ctx, `DELETE FROM llm_cache WHERE fingerprint = ?`, fingerprint)
			return nil, false, nil
		}
	}

	_, err := c.db.ExecContext(ctx, `
		UPDATE llm_cache SET access_count = access_count + 1, last_accessed = ? WHERE fingerprint = ?
	`, now.Unix(), fingerprint)
	if err != nil {
		return nil, false, err
	}
	cached.AccessCount++
	cached.LastAccessed = now

	return &cached, true, nil
}

// Put upserts a cache row. On conflict, the payload is replaced and
// access_count is bumped, matching §4.D's "Conflict on key -> update
// payload and bump access_count".
func (c *Cache) Put(ctx context.Context, fingerprint, response string, tokensIn, tokensOut int64, costUSD float64, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}

	now := time.Now()
	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl).Unix()
	}

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO llm_cache (fingerprint, response, tokens_in, tokens_out, cost_usd, created_at, last_accessed, access_count, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			response = excluded.response,
			tokens_in = excluded.tokens_in,
			tokens_out = excluded.tokens_out,
			cost_usd = excluded.cost_usd,
			last_accessed = excluded.last_accessed,
			access_count = llm_cache.access_count + 1,
			expires_at = excluded.expires_at
	`, fingerprint, response, tokensIn, tokensOut, costUSD, now.Unix(), now.Unix(), expiresAt)
	return err
}

// CleanupExpired deletes every row whose expires_at has passed.
func (c *Cache) CleanupExpired(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM llm_cache WHERE expires_at IS NOT NULL AND expires_at <= ?
	`, time.Now().Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupLRU evicts the oldest-by-last_accessed rows until at most
// maxEntries remain.
func (c *Cache) CleanupLRU(ctx context.Context, maxEntries int) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM llm_cache WHERE fingerprint IN (
			SELECT fingerprint FROM llm_cache ORDER BY last_accessed ASC
			LIMIT MAX(0, (SELECT COUNT(*) FROM llm_cache) - ?)
		)
	`, maxEntries)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Stats summarizes cache occupancy.
type Stats struct {
	EntryCount int64
	TotalHits  int64
}

// Stats returns current cache occupancy and cumulative hit count.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := c.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(access_count), 0) FROM llm_cache
	`).Scan(&st.EntryCount, &st.TotalHits)
	return st, err
}
