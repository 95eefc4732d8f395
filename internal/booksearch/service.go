// Package booksearch wires the query optimizer, the book provider, the result
// cache and the popularity ranker into a single search operation.
package booksearch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/cache"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/query"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/ranker"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/tracing"
)

// Search outcomes, used as the outcome metric label.
const (
	OutcomeOK         = "ok"
	OutcomeZeroResult = "zero_result"
	OutcomeError      = "error"
)

// Provider fetches one page of volumes for an already optimized query.
type Provider interface {
	Search(ctx context.Context, q string, maxResults int) (*proto.VolumeList, error)
}

// Service runs book searches. The cache and metrics are optional.
type Service struct {
	provider     Provider
	cache        *cache.ResultCache
	metrics      *metrics.Metrics
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// NewService creates a Service. cache and m may be nil.
func NewService(p Provider, c *cache.ResultCache, m *metrics.Metrics, cfg config.SearchConfig) *Service {
	s := &Service{
		provider:     p,
		cache:        c,
		metrics:      m,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		logger:       slog.Default().With("component", "book-search"),
	}
	if s.defaultLimit <= 0 {
		s.defaultLimit = 20
	}
	if s.maxLimit <= 0 {
		s.maxLimit = 40
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	return s
}

// Cache returns the result cache, or nil when caching is disabled.
func (s *Service) Cache() *cache.ResultCache {
	return s.cache
}

// Search optimizes raw, fetches a page of at most limit volumes and orders it
// by popularity. limit <= 0 uses the default page size. When the provider's
// rating data cannot be scored the page is returned in provider order with
// Ranked set to false.
func (s *Service) Search(ctx context.Context, raw string, limit int) (*proto.SearchResponse, error) {
	start := time.Now()
	if strings.TrimSpace(raw) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter is required")
	}
	limit = s.clampLimit(limit)
	log := logger.FromContext(ctx)

	ctx, root := tracing.StartSpan(ctx, "book_search", logger.RequestID(ctx))
	defer func() {
		root.End()
		root.Log()
	}()

	_, optSpan := tracing.StartChildSpan(ctx, "optimize")
	optimized, kind := query.Optimize(raw)
	optSpan.SetAttr("kind", string(kind))
	optSpan.End()
	root.SetAttr("kind", string(kind))

	fetchCtx, fetchSpan := tracing.StartChildSpan(ctx, "fetch")
	list, cacheHit, err := s.fetch(fetchCtx, optimized, limit)
	fetchSpan.SetAttr("cache_hit", cacheHit)
	fetchSpan.End()
	if err != nil {
		s.countQuery(kind, OutcomeError)
		log.Error("book search failed",
			"query", raw,
			"optimized", optimized,
			"kind", kind,
			"error", err,
		)
		return nil, err
	}

	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	items, ranked := s.rank(ctx, list.Items)
	rankSpan.SetAttr("ranked", ranked)
	rankSpan.End()

	resp := &proto.SearchResponse{
		Query:          raw,
		OptimizedQuery: optimized,
		Kind:           string(kind),
		TotalItems:     list.TotalItems,
		Items:          items,
		Ranked:         ranked,
		CacheHit:       cacheHit,
		LatencyMs:      time.Since(start).Milliseconds(),
	}

	outcome := OutcomeOK
	if len(items) == 0 {
		outcome = OutcomeZeroResult
	}
	s.countQuery(kind, outcome)
	s.observe(resp, time.Since(start))

	log.Info("book search completed",
		"query", raw,
		"optimized", optimized,
		"kind", kind,
		"total_items", resp.TotalItems,
		"returned", len(items),
		"ranked", ranked,
		"cache_hit", cacheHit,
		"latency_ms", resp.LatencyMs,
	)
	return resp, nil
}

// Optimize reports the provider query built for raw without searching.
func (s *Service) Optimize(raw string) proto.OptimizeResponse {
	optimized, kind := query.Optimize(raw)
	return proto.OptimizeResponse{Query: raw, Optimized: optimized, Kind: string(kind)}
}

// Rank orders caller-supplied volumes by popularity.
func (s *Service) Rank(items []proto.Volume) ([]proto.RankedVolume, error) {
	ranked, err := ranker.RankScored(items)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%v", err)
	}
	return ranked, nil
}

func (s *Service) fetch(ctx context.Context, q string, limit int) (*proto.VolumeList, bool, error) {
	call := func(ctx context.Context) (*proto.VolumeList, error) {
		start := time.Now()
		list, err := s.provider.Search(ctx, q, limit)
		s.observeProvider(time.Since(start), err)
		return list, err
	}
	if s.cache == nil {
		list, err := call(ctx)
		return list, false, err
	}
	return s.cache.GetOrFetch(ctx, q, limit, call)
}

func (s *Service) rank(ctx context.Context, items []proto.Volume) ([]proto.RankedVolume, bool) {
	ranked, err := ranker.RankScored(items)
	if err == nil {
		return ranked, true
	}
	if s.metrics != nil {
		s.metrics.RankFailuresTotal.Inc()
	}
	logger.FromContext(ctx).Warn("ranking skipped, returning provider order",
		"items", len(items),
		"error", err,
	)
	return ranker.Unranked(items), false
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

func (s *Service) countQuery(kind query.Kind, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(string(kind), outcome).Inc()
}

func (s *Service) observe(resp *proto.SearchResponse, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}
	status := "miss"
	if resp.CacheHit {
		status = "hit"
	}
	s.metrics.SearchLatency.WithLabelValues(status).Observe(elapsed.Seconds())
	s.metrics.SearchResultsCount.Observe(float64(len(resp.Items)))
}

func (s *Service) observeProvider(elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrRateLimited):
		outcome = "rate_limited"
	case errors.Is(err, apperrors.ErrUnauthorized):
		outcome = "unauthorized"
	case errors.Is(err, apperrors.ErrTimeout):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	s.metrics.ProviderRequestDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
