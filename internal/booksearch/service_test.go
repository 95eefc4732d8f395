package booksearch

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/cache"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
)

type fakeProvider struct {
	mu      sync.Mutex
	list    *proto.VolumeList
	err     error
	queries []string
	limits  []int
}

func (f *fakeProvider) Search(_ context.Context, q string, maxResults int) (*proto.VolumeList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	f.limits = append(f.limits, maxResults)
	if f.err != nil {
		return nil, f.err
	}
	return f.list, nil
}

func ptr[T any](v T) *T { return &v }

func volume(id string, rating float64, count int) proto.Volume {
	return proto.Volume{ID: id, Title: id, AverageRating: ptr(rating), RatingsCount: ptr(count)}
}

func searchCfg() config.SearchConfig {
	return config.SearchConfig{DefaultLimit: 20, MaxLimit: 40}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metricLoop:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metricLoop
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestSearch_OptimizesAndRanks(t *testing.T) {
	p := &fakeProvider{list: &proto.VolumeList{
		TotalItems: 3,
		Items: []proto.Volume{
			{ID: "unrated", Title: "unrated"},
			volume("a", 5.0, 1),
			volume("b", 4.0, 1000),
		},
	}}
	svc := NewService(p, nil, nil, searchCfg())

	resp, err := svc.Search(context.Background(), "The Hobbit by Tolkien", 0)
	require.NoError(t, err)

	assert.Equal(t, []string{"intitle:The Hobbit inauthor:Tolkien"}, p.queries)
	assert.Equal(t, []int{20}, p.limits)
	assert.Equal(t, "The Hobbit by Tolkien", resp.Query)
	assert.Equal(t, "intitle:The Hobbit inauthor:Tolkien", resp.OptimizedQuery)
	assert.Equal(t, "scoped", resp.Kind)
	assert.Equal(t, 3, resp.TotalItems)
	assert.True(t, resp.Ranked)
	assert.False(t, resp.CacheHit)

	require.Len(t, resp.Items, 3)
	assert.Equal(t, "b", resp.Items[0].ID)
	assert.Equal(t, "a", resp.Items[1].ID)
	assert.Equal(t, "unrated", resp.Items[2].ID)
	assert.InDelta(t, 27.635, resp.Items[0].PopularityScore, 1e-3)
	assert.Zero(t, resp.Items[2].PopularityScore)
}

func TestSearch_EmptyQuery(t *testing.T) {
	p := &fakeProvider{}
	svc := NewService(p, nil, nil, searchCfg())

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := svc.Search(context.Background(), q, 0)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
	}
	assert.Empty(t, p.queries)
}

func TestSearch_ClampsLimit(t *testing.T) {
	p := &fakeProvider{list: &proto.VolumeList{}}
	svc := NewService(p, nil, nil, searchCfg())

	_, err := svc.Search(context.Background(), "dune", 100)
	require.NoError(t, err)
	_, err = svc.Search(context.Background(), "dune", 5)
	require.NoError(t, err)
	assert.Equal(t, []int{40, 5}, p.limits)
}

func TestSearch_InvalidRatingFallsBackToProviderOrder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := &fakeProvider{list: &proto.VolumeList{
		TotalItems: 2,
		Items: []proto.Volume{
			volume("low", 1.0, 10),
			volume("broken", 7.5, 100),
		},
	}}
	svc := NewService(p, nil, m, searchCfg())

	resp, err := svc.Search(context.Background(), "dune", 0)
	require.NoError(t, err)
	assert.False(t, resp.Ranked)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "low", resp.Items[0].ID)
	assert.Equal(t, "broken", resp.Items[1].ID)
	assert.Equal(t, 1.0, counterValue(t, reg, "book_search_rank_failures_total", nil))
}

func TestSearch_ProviderError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := &fakeProvider{err: apperrors.New(apperrors.ErrRateLimited, http.StatusTooManyRequests, "slow down")}
	svc := NewService(p, nil, m, searchCfg())

	_, err := svc.Search(context.Background(), "9780261103573", 0)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	assert.Equal(t, 1.0, counterValue(t, reg, "book_search_queries_total",
		map[string]string{"kind": "isbn", "outcome": OutcomeError}))
}

func TestSearch_ZeroResultOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	p := &fakeProvider{list: &proto.VolumeList{}}
	svc := NewService(p, nil, m, searchCfg())

	resp, err := svc.Search(context.Background(), "zzzz", 0)
	require.NoError(t, err)
	assert.NotNil(t, resp.Items)
	assert.Empty(t, resp.Items)
	assert.Equal(t, 1.0, counterValue(t, reg, "book_search_queries_total",
		map[string]string{"kind": "passthrough", "outcome": OutcomeZeroResult}))
}

func TestSearch_UsesCache(t *testing.T) {
	p := &fakeProvider{list: &proto.VolumeList{TotalItems: 1, Items: []proto.Volume{volume("a", 4, 10)}}}
	svc := NewService(p, cache.New(nil, cache.Config{}), nil, searchCfg())

	first, err := svc.Search(context.Background(), "dune", 0)
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), "dune", 0)
	require.NoError(t, err)

	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Len(t, p.queries, 1)
	assert.Equal(t, first.Items, second.Items)
}

func TestOptimize(t *testing.T) {
	svc := NewService(&fakeProvider{}, nil, nil, searchCfg())
	got := svc.Optimize("978-0-261-10357-3")
	assert.Equal(t, proto.OptimizeResponse{
		Query:     "978-0-261-10357-3",
		Optimized: "isbn:9780261103573",
		Kind:      "isbn",
	}, got)
}

func TestRank_InvalidInput(t *testing.T) {
	svc := NewService(&fakeProvider{}, nil, nil, searchCfg())
	_, err := svc.Rank([]proto.Volume{volume("x", -1, 3)})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	ranked, err := svc.Rank([]proto.Volume{volume("a", 3, 1), volume("b", 3, 100)})
	require.NoError(t, err)
	assert.Equal(t, "b", ranked[0].ID)
}
