// Package llmcache stores validated extraction responses keyed by the SHA-256 of the
// chunk text and the prompt version, so unchanged text is never re-sent to the model.
package llmcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aileks/realm-sync/internal/apperr"
	"github.com/aileks/realm-sync/internal/metrics"
	"github.com/aileks/realm-sync/internal/models"
	"github.com/aileks/realm-sync/internal/store"
)

// DefaultTTL is how long a saved response stays servable.
const DefaultTTL = 7 * 24 * time.Hour

// ComputeHash returns the lowercase hex SHA-256 of content's UTF-8 bytes.
func ComputeHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Cache reads and writes extraction responses through the store.
type Cache struct {
	st     store.Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache over st.
func New(st store.Store, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{st: st, ttl: DefaultTTL, now: time.Now, logger: logger}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Check returns the cached result for (inputHash, promptVersion), or nil on a miss.
// Among duplicate rows the oldest unexpired one wins.
func (c *Cache) Check(ctx context.Context, inputHash, promptVersion string) (*models.ExtractionResult, error) {
	var entries []models.CacheEntry
	err := c.st.View(ctx, func(tx store.Tx) error {
		var err error
		entries, err = tx.CacheEntries(ctx, inputHash, promptVersion)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	now := c.now()
	for i := range entries {
		if entries[i].Expired(now) {
			continue
		}
		var res models.ExtractionResult
		if err := json.Unmarshal([]byte(entries[i].Response), &res); err != nil {
			c.logger.Warn("llmcache: undecodable cache entry", "entry_id", entries[i].ID, "error", err)
			continue
		}
		metrics.Inc(metrics.CacheHits)
		return &res, nil
	}
	metrics.Inc(metrics.CacheMisses)
	return nil, nil
}

// Save stores response under (inputHash, promptVersion) and returns the new entry id.
// Duplicates are allowed.
func (c *Cache) Save(ctx context.Context, inputHash, promptVersion, modelID string, response *models.ExtractionResult) (string, error) {
	raw, err := json.Marshal(response)
	if err != nil {
		return "", fmt.Errorf("encoding cache response: %w", err)
	}
	now := c.now()
	entry := &models.CacheEntry{
		ID:            uuid.New().String(),
		InputHash:     inputHash,
		PromptVersion: promptVersion,
		ModelID:       modelID,
		Response:      string(raw),
		CreatedAt:     now,
		ExpiresAt:     now.Add(c.ttl),
	}
	if err := c.st.Update(ctx, func(tx store.Tx) error { return tx.InsertCacheEntry(ctx, entry) }); err != nil {
		return "", fmt.Errorf("saving cache entry: %w", err)
	}
	return entry.ID, nil
}

// Invalidate removes every entry of promptVersion, or only the entries also matching
// inputHash when it is non-empty.
func (c *Cache) Invalidate(ctx context.Context, promptVersion, inputHash string) (int, error) {
	if promptVersion == "" {
		return 0, apperr.Validation("prompt version is required")
	}
	var n int
	err := c.st.Update(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.DeleteCacheEntries(ctx, promptVersion, inputHash)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("llmcache: invalidated", "prompt_version", promptVersion, "input_hash", inputHash, "removed", n)
	return n, nil
}

// PurgeExpired deletes entries whose expiry has passed.
func (c *Cache) PurgeExpired(ctx context.Context) (int, error) {
	var n int
	err := c.st.Update(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.DeleteExpiredCacheEntries(ctx, c.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	return n, nil
}

// CountExpired reports how many entries PurgeExpired would delete now.
func (c *Cache) CountExpired(ctx context.Context) (int, error) {
	var n int
	err := c.st.View(ctx, func(tx store.Tx) error {
		var err error
		n, err = tx.CountExpiredCacheEntries(ctx, c.now())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting expired cache entries: %w", err)
	}
	return n, nil
}
