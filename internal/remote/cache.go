package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultRowTTL bounds how long a row changed by another process can be
// served from the cache.
const DefaultRowTTL = 30 * time.Second

// CachedReader is a read-through LRU in front of a Backend. Rows expire
// after a TTL. Writes through it invalidate the cached row; the sync
// manager also invalidates after its own successful upserts.
type CachedReader struct {
	Backend
	cache *expirable.LRU[string, map[string]any]
}

// NewCachedReader caches up to size rows for ttl each. A ttl <= 0 uses
// DefaultRowTTL.
func NewCachedReader(b Backend, size int, ttl time.Duration) (*CachedReader, error) {
	if size <= 0 {
		return nil, fmt.Errorf("row cache size must be positive, got %d", size)
	}
	if ttl <= 0 {
		ttl = DefaultRowTTL
	}
	return &CachedReader{Backend: b, cache: expirable.NewLRU[string, map[string]any](size, nil, ttl)}, nil
}

func cacheKey(kind, id string) string { return kind + "/" + id }

func (c *CachedReader) Read(ctx context.Context, kind, id string) (map[string]any, error) {
	if row, ok := c.cache.Get(cacheKey(kind, id)); ok {
		return copyRow(row), nil
	}
	row, err := c.Backend.Read(ctx, kind, id)
	if err != nil || row == nil {
		return row, err
	}
	c.cache.Add(cacheKey(kind, id), copyRow(row))
	return row, nil
}

func (c *CachedReader) Upsert(ctx context.Context, kind, id string, fields map[string]any) error {
	defer c.Invalidate(kind, id)
	return c.Backend.Upsert(ctx, kind, id, fields)
}

func (c *CachedReader) Delete(ctx context.Context, kind, id string) error {
	defer c.Invalidate(kind, id)
	return c.Backend.Delete(ctx, kind, id)
}

// Invalidate drops the cached row for (kind, id).
func (c *CachedReader) Invalidate(kind, id string) {
	c.cache.Remove(cacheKey(kind, id))
}

// IsSealed reads the job row from the backend, never from the cache, and
// refreshes the cached copy. A seal written by another process is seen on
// the next check.
func (c *CachedReader) IsSealed(ctx context.Context, jobID string) (bool, error) {
	row, err := c.Backend.Read(ctx, KindJob, jobID)
	if err != nil {
		return false, err
	}
	if row == nil {
		c.Invalidate(KindJob, jobID)
		return false, nil
	}
	c.cache.Add(cacheKey(KindJob, jobID), copyRow(row))
	return rowSealed(row), nil
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

// Seal seals the job on the underlying backend and drops the cached row.
func (c *CachedReader) Seal(ctx context.Context, jobID string) error {
	s, ok := c.Backend.(interface {
		Seal(ctx context.Context, jobID string) error
	})
	if !ok {
		return fmt.Errorf("backend %T cannot seal jobs", c.Backend)
	}
	defer c.Invalidate(KindJob, jobID)
	return s.Seal(ctx, jobID)
}
