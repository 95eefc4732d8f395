// Package cache is the two-tier result cache in front of the book provider:
// an in-process expirable LRU backed by an optional shared Redis tier.
// Provider pages are cached before ranking, so scores are always recomputed.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
	pkgredis "github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/redis"
)

const (
	keyPrefix = "books:"

	defaultLocalSize = 512
	defaultLocalTTL  = 5 * time.Minute
	defaultRemoteTTL = time.Hour
)

// Remote is the shared cache tier. *pkgredis.Client satisfies it.
type Remote interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Config sizes both tiers. Zero values fall back to defaults.
type Config struct {
	LocalSize int
	LocalTTL  time.Duration
	RemoteTTL time.Duration
}

// Observer is notified of lookups, e.g. to export hit ratios.
type Observer interface {
	CacheHit()
	CacheMiss()
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	LocalLen    int     `json:"local_entries"`
	RemoteReady bool    `json:"remote_enabled"`
}

// ResultCache caches provider pages keyed by query and page size.
type ResultCache struct {
	local    *expirable.LRU[string, *proto.VolumeList]
	remote   Remote
	cfg      Config
	group    singleflight.Group
	observer Observer
	logger   *slog.Logger
	hits     atomic.Int64
	misses   atomic.Int64
}

// New creates a ResultCache. remote may be nil, in which case only the
// local tier is used.
func New(remote Remote, cfg Config) *ResultCache {
	if cfg.LocalSize <= 0 {
		cfg.LocalSize = defaultLocalSize
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = defaultLocalTTL
	}
	if cfg.RemoteTTL <= 0 {
		cfg.RemoteTTL = defaultRemoteTTL
	}
	return &ResultCache{
		local:  expirable.NewLRU[string, *proto.VolumeList](cfg.LocalSize, nil, cfg.LocalTTL),
		remote: remote,
		cfg:    cfg,
		logger: slog.Default().With("component", "result-cache"),
	}
}

// WithObserver attaches o and returns c.
func (c *ResultCache) WithObserver(o Observer) *ResultCache {
	c.observer = o
	return c
}

// Get looks the page up in the local tier, then the remote one. A remote hit
// is promoted into the local tier.
func (c *ResultCache) Get(ctx context.Context, query string, limit int) (*proto.VolumeList, bool) {
	key := buildKey(query, limit)
	if list, ok := c.lookup(ctx, key); ok {
		c.recordHit()
		c.logger.Debug("cache hit", "query", query, "key", key)
		return list, true
	}
	c.recordMiss()
	return nil, false
}

func (c *ResultCache) lookup(ctx context.Context, key string) (*proto.VolumeList, bool) {
	if list, ok := c.local.Get(key); ok {
		return list, true
	}
	if c.remote == nil {
		return nil, false
	}
	data, err := c.remote.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var list proto.VolumeList
	if err := json.Unmarshal(data, &list); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	c.local.Add(key, &list)
	return &list, true
}

// Set stores the page in both tiers. Remote failures are logged, not
// returned: a cache write never fails a search.
func (c *ResultCache) Set(ctx context.Context, query string, limit int, list *proto.VolumeList) {
	key := buildKey(query, limit)
	c.local.Add(key, list)
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(list)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.remote.Set(ctx, key, data, c.cfg.RemoteTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrFetch returns the cached page or calls fetch once per key, however
// many callers miss concurrently. The bool reports a cache hit.
func (c *ResultCache) GetOrFetch(
	ctx context.Context,
	query string,
	limit int,
	fetch func(ctx context.Context) (*proto.VolumeList, error),
) (*proto.VolumeList, bool, error) {
	if list, ok := c.Get(ctx, query, limit); ok {
		return list, true, nil
	}
	key := buildKey(query, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		if list, ok := c.lookup(ctx, key); ok {
			return list, nil
		}
		list, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, limit, list)
		return list, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*proto.VolumeList), false, nil
}

// Invalidate drops every cached page from both tiers and returns the number
// of remote keys removed.
func (c *ResultCache) Invalidate(ctx context.Context) (int64, error) {
	localN := c.local.Len()
	c.local.Purge()
	if c.remote == nil {
		c.logger.Info("cache invalidate", "local_entries", localN)
		return 0, nil
	}
	deleted, err := c.remote.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "local_entries", localN, "keys_deleted", deleted)
	return deleted, nil
}

// Stats reports hit and miss counters since start.
func (c *ResultCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	s := Stats{
		Hits:        hits,
		Misses:      misses,
		LocalLen:    c.local.Len(),
		RemoteReady: c.remote != nil,
	}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

func (c *ResultCache) recordHit() {
	c.hits.Add(1)
	if c.observer != nil {
		c.observer.CacheHit()
	}
}

func (c *ResultCache) recordMiss() {
	c.misses.Add(1)
	if c.observer != nil {
		c.observer.CacheMiss()
	}
}

func buildKey(query string, limit int) string {
	raw := fmt.Sprintf("%s:limit=%d", normalizeQuery(query), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeQuery folds case and whitespace. Term order is kept.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
