package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
)

// benchQueries covers every query shape the optimizer distinguishes.
var benchQueries = []string{
	"dune",
	"the hobbit by tolkien",
	"978-0-261-10357-3",
	"0441013597",
	"author: ursula le guin, earthsea",
	"a wizard of earthsea written by le guin",
	"the left hand of darkness",
	"intitle:foundation inauthor:asimov",
	"subject:science fiction",
	"project hail mary",
	"piranesi",
	"the name of the wind",
}

type benchOptions struct {
	url         string
	concurrency int
	duration    time.Duration
	limit       int
}

// benchStats tallies responses from every worker.
type benchStats struct {
	mu          sync.Mutex
	total       int
	failed      int
	cacheHits   int
	unranked    int
	latencies   []time.Duration
	statusCodes map[int]int
}

func newBenchStats() *benchStats {
	return &benchStats{statusCodes: make(map[int]int)}
}

func (s *benchStats) record(elapsed time.Duration, status int, resp *proto.SearchResponse, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if err != nil {
		s.failed++
		return
	}
	s.statusCodes[status]++
	s.latencies = append(s.latencies, elapsed)
	if status != http.StatusOK {
		s.failed++
		return
	}
	if resp.CacheHit {
		s.cacheHits++
	}
	if !resp.Ranked {
		s.unranked++
	}
}

func newBenchCmd() *cobra.Command {
	var opts benchOptions

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Drive a running booksearch HTTP API with a mixed query load",
		Long: `bench sends search requests from concurrent workers for a fixed duration,
cycling through ISBN, author, title and pre-scoped queries, then reports
throughput, latency percentiles, cache hit rate and status codes.

Examples:
  bookquery bench --url http://localhost:8080 --concurrency 20 --duration 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := runBench(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printBench(cmd.OutOrStdout(), stats, opts.duration)
			if stats.total == 0 {
				return fmt.Errorf("no requests completed; is the service running at %s?", opts.url)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.url, "url", "http://localhost:8080", "base URL of the booksearch service")
	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 10, "number of concurrent workers")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 30*time.Second, "how long to run")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "results requested per search")
	return cmd
}

func runBench(parent context.Context, opts benchOptions) (*benchStats, error) {
	if opts.concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1")
	}
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, opts.duration)
	defer cancel()

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	base := strings.TrimRight(opts.url, "/") + "/api/v1/books/search"
	stats := newBenchStats()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				q := benchQueries[i%len(benchQueries)]
				target := fmt.Sprintf("%s?q=%s&limit=%d", base, url.QueryEscape(q), opts.limit)
				start := time.Now()
				status, resp, err := benchRequest(ctx, client, target)
				if ctx.Err() != nil {
					return nil
				}
				stats.record(time.Since(start), status, resp, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func benchRequest(ctx context.Context, client *http.Client, target string) (int, *proto.SearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil, nil
	}
	var body proto.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decoding response: %w", err)
	}
	return resp.StatusCode, &body, nil
}

func printBench(w io.Writer, s *benchStats, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", s.total)
	fmt.Fprintf(w, "Failed:          %d\n", s.failed)
	if s.total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(s.failed)/float64(s.total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(s.total)/duration.Seconds())
	}
	if ok := s.statusCodes[http.StatusOK]; ok > 0 {
		fmt.Fprintf(w, "Cache Hit Rate:  %.2f%%\n", float64(s.cacheHits)/float64(ok)*100)
		fmt.Fprintf(w, "Unranked:        %d\n", s.unranked)
	}

	if len(s.latencies) > 0 {
		latencies := append([]time.Duration(nil), s.latencies...)
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "P50:    %s\n", latencyPercentile(latencies, 50))
		fmt.Fprintf(w, "P95:    %s\n", latencyPercentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", latencyPercentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])
	}

	codes := make([]int, 0, len(s.statusCodes))
	for code := range s.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.statusCodes[code])
	}
}

// latencyPercentile uses the nearest-rank method on sorted.
func latencyPercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
