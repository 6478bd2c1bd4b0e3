package candidate

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/talent-search-platform/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "candidates:page:"

// KV is the subset of the Redis client the cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// ResultsCache caches listing pages in Redis. Concurrent misses for the same
// page share one repository query.
type ResultsCache struct {
	kv      KV
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewResultsCache(kv KV, ttl time.Duration, m *metrics.Metrics) *ResultsCache {
	return &ResultsCache{
		kv:      kv,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "results-cache"),
	}
}

func (c *ResultsCache) get(ctx context.Context, key string) (*Page, bool) {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &page, true
}

func (c *ResultsCache) set(ctx context.Context, key string, page *Page) {
	data, err := json.Marshal(page)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached page for (f, page, limit) or computes and
// stores it. The bool reports a cache hit.
func (c *ResultsCache) GetOrCompute(ctx context.Context, f Filter, page, limit int, compute func() (*Page, error)) (*Page, bool, error) {
	key := cacheKey(f, page, limit)
	if p, ok := c.get(ctx, key); ok {
		c.metrics.CacheLookup("hit")
		return p, true, nil
	}
	c.metrics.CacheLookup("miss")

	val, err, _ := c.group.Do(key, func() (any, error) {
		if p, ok := c.get(ctx, key); ok {
			return p, nil
		}
		p, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, p)
		return p, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Page), false, nil
}

// Invalidate drops every cached page.
func (c *ResultsCache) Invalidate(ctx context.Context) error {
	deleted, err := c.kv.FlushByPattern(ctx, cacheKeyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating results cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func cacheKey(f Filter, page, limit int) string {
	f = f.Normalize()
	skills := make([]string, len(f.Skills))
	for i, s := range f.Skills {
		skills[i] = strings.ToLower(s)
	}
	sort.Strings(skills)
	raw := fmt.Sprintf("role=%s|loc=%s|exp=%d|skills=%s|page=%d|limit=%d",
		strings.ToLower(f.Role), strings.ToLower(f.Location), f.ExperienceMin,
		strings.Join(skills, ","), page, limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", cacheKeyPrefix, hash[:16])
}
