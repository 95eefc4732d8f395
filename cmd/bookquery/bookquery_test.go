package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/rpc"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestOptimizeCmd(t *testing.T) {
	out, err := execute(t, "", "optimize", "the", "hobbit", "by", "tolkien")
	require.NoError(t, err)
	assert.Equal(t, "scoped\tintitle:the hobbit inauthor:tolkien\n", out)
}

func TestOptimizeCmd_JSON(t *testing.T) {
	out, err := execute(t, "", "optimize", "--json", "978-0-261-10357-3")
	require.NoError(t, err)

	var resp proto.OptimizeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "isbn:9780261103573", resp.Optimized)
	assert.Equal(t, "isbn", resp.Kind)
}

func TestOptimizeCmd_RequiresQuery(t *testing.T) {
	_, err := execute(t, "", "optimize")
	assert.Error(t, err)
}

func TestSearchCmd_InProcess(t *testing.T) {
	var gotQuery, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"totalItems":2,"items":[
			{"id":"few","volumeInfo":{"title":"Dune Messiah","averageRating":5,"ratingsCount":2}},
			{"id":"many","volumeInfo":{"title":"Dune","authors":["Frank Herbert"],"averageRating":4.5,"ratingsCount":900}}
		]}`))
	}))
	defer srv.Close()

	out, err := execute(t, "", "search", "--base-url", srv.URL, "--api-key", "k1", "--limit", "5", "dune")
	require.NoError(t, err)

	assert.Equal(t, "dune", gotQuery)
	assert.Equal(t, "k1", gotKey)
	assert.Contains(t, out, "showing 2 of 2")
	assert.Less(t, strings.Index(out, "Frank Herbert"), strings.Index(out, "Dune Messiah"))
}

func TestSearchCmd_ProviderErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := execute(t, "", "search", "--base-url", srv.URL, "dune")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestSearchCmd_RPC(t *testing.T) {
	s := rpc.NewServer()
	s.Register("BookSearch.Search", func(_ context.Context, params json.RawMessage) (any, error) {
		var req proto.SearchRequest
		require.NoError(t, json.Unmarshal(params, &req))
		return &proto.SearchResponse{
			Query:          req.Query,
			OptimizedQuery: "intitle:" + req.Query,
			Kind:           "title_hint",
			TotalItems:     1,
			Items:          []proto.RankedVolume{{Volume: proto.Volume{ID: "x", Title: "Remote Book"}}},
			Ranked:         true,
		}, nil
	})
	require.NoError(t, s.Listen("127.0.0.1:0"))
	go s.Serve()
	defer s.Stop()

	out, err := execute(t, "", "search", "--rpc-addr", s.Addr().String(), "--json", "remote")
	require.NoError(t, err)

	var resp proto.SearchResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "intitle:remote", resp.OptimizedQuery)
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "Remote Book", resp.Items[0].Title)
}

func TestRankCmd_Stdin(t *testing.T) {
	in := `[
		{"id":"unrated","title":"Unrated"},
		{"id":"a","title":"A","average_rating":5,"ratings_count":1},
		{"id":"b","title":"B","average_rating":4,"ratings_count":1000}
	]`
	out, err := execute(t, in, "rank", "--json")
	require.NoError(t, err)

	var resp proto.RankResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Items, 3)
	assert.Equal(t, "b", resp.Items[0].ID)
	assert.Equal(t, "a", resp.Items[1].ID)
	assert.Equal(t, "unrated", resp.Items[2].ID)
}

func TestRankCmd_BadInput(t *testing.T) {
	_, err := execute(t, "{not json", "rank")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding volumes")
}

func TestBenchCmd(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		mu.Lock()
		hit := seen[q]
		seen[q] = true
		mu.Unlock()
		if q == "piranesi" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(proto.SearchResponse{Query: q, Ranked: true, CacheHit: hit})
	}))
	defer srv.Close()

	stats, err := runBench(context.Background(), benchOptions{
		url:         srv.URL,
		concurrency: 2,
		duration:    100 * time.Millisecond,
		limit:       5,
	})
	require.NoError(t, err)
	require.Positive(t, stats.total)
	assert.Positive(t, stats.statusCodes[http.StatusOK])
	assert.Zero(t, stats.unranked)

	var out bytes.Buffer
	printBench(&out, stats, 100*time.Millisecond)
	assert.Contains(t, out.String(), "=== Latency ===")
	assert.Contains(t, out.String(), "200:")
}

func TestBenchCmd_RejectsZeroConcurrency(t *testing.T) {
	_, err := runBench(context.Background(), benchOptions{url: "http://127.0.0.1:1", duration: time.Millisecond})
	assert.ErrorContains(t, err, "concurrency")
}

func TestLatencyPercentile(t *testing.T) {
	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, time.Duration(5), latencyPercentile(sorted, 50))
	assert.Equal(t, time.Duration(10), latencyPercentile(sorted, 99))
	assert.Zero(t, latencyPercentile(nil, 50))
}
