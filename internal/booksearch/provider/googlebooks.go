// Package provider is the client for the Google Books volumes API, the
// external book-metadata provider behind the search service.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/resilience"
)

const (
	DefaultMaxResults = 20
	// MaxResultsLimit is the largest page the volumes API serves.
	MaxResultsLimit = 40
)

// Client queries the volumes endpoint. Calls go through a circuit breaker,
// and each attempt inside it is retried on transient failures and bounded
// by the configured timeout.
type Client struct {
	http    *http.Client
	cfg     config.ProviderConfig
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithStateChange observes breaker transitions, e.g. to export them as a
// metric.
func WithStateChange(fn func(name string, from, to resilience.State)) Option {
	return func(c *Client) {
		c.breaker = newBreaker(c.cfg, fn)
	}
}

// New creates a Client from cfg.
func New(cfg config.ProviderConfig, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{},
		cfg:     cfg,
		breaker: newBreaker(cfg, nil),
		logger:  slog.Default().With("component", "google-books"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newBreaker(cfg config.ProviderConfig, onChange func(string, resilience.State, resilience.State)) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker("google-books", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		ResetTimeout:     cfg.BreakerReset,
		IsFailure:        apperrors.IsTransient,
		OnStateChange:    onChange,
	})
}

// BreakerState reports the provider circuit breaker state.
func (c *Client) BreakerState() resilience.State {
	return c.breaker.GetState()
}

// Search runs q against the volumes endpoint and returns the page in
// provider order. maxResults <= 0 uses the configured default.
func (c *Client) Search(ctx context.Context, q string, maxResults int) (*proto.VolumeList, error) {
	if strings.TrimSpace(q) == "" {
		return nil, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query is empty")
	}
	maxResults = c.clampMaxResults(maxResults)

	// A timed-out attempt's goroutine may still finish after a later attempt
	// has started, so the result is handed over atomically.
	var list atomic.Pointer[proto.VolumeList]
	err := c.breaker.Execute(func() error {
		return resilience.Retry(ctx, "google-books search", resilience.RetryConfig{
			MaxAttempts:  c.cfg.RetryAttempts,
			InitialDelay: c.cfg.RetryInitialDelay,
			Retryable:    apperrors.IsTransient,
		}, func() error {
			err := resilience.WithTimeout(ctx, c.cfg.Timeout, "google-books request", func(ctx context.Context) error {
				l, err := c.fetch(ctx, q, maxResults)
				if err != nil {
					return err
				}
				list.Store(l)
				return nil
			})
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return apperrors.Newf(apperrors.ErrTimeout, http.StatusServiceUnavailable, "%v", err)
			}
			return err
		})
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, apperrors.Newf(apperrors.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "%v", err)
		}
		return nil, err
	}
	return list.Load(), nil
}

func (c *Client) clampMaxResults(n int) int {
	if n <= 0 {
		n = c.cfg.MaxResults
	}
	if n <= 0 {
		n = DefaultMaxResults
	}
	if n > MaxResultsLimit {
		n = MaxResultsLimit
	}
	return n
}

func (c *Client) buildURL(q string, maxResults int) string {
	params := url.Values{
		"q":          {q},
		"maxResults": {strconv.Itoa(maxResults)},
	}
	if c.cfg.APIKey != "" {
		params.Set("key", c.cfg.APIKey)
	}
	return strings.TrimRight(c.cfg.BaseURL, "/") + "/volumes?" + params.Encode()
}

func (c *Client) fetch(ctx context.Context, q string, maxResults int) (*proto.VolumeList, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(q, maxResults), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Newf(apperrors.ErrTimeout, http.StatusServiceUnavailable, "request aborted: %v", err)
		}
		return nil, apperrors.Newf(apperrors.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, statusError(resp.StatusCode)
	}

	var body volumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, apperrors.Newf(apperrors.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "decoding response: %v", err)
	}

	list := body.toVolumeList()
	c.logger.Debug("provider search completed",
		"query", q,
		"total_items", list.TotalItems,
		"returned", len(list.Items),
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return list, nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return apperrors.Newf(apperrors.ErrRateLimited, http.StatusTooManyRequests, "provider returned HTTP %d", code)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperrors.Newf(apperrors.ErrUnauthorized, http.StatusInternalServerError, "provider returned HTTP %d", code)
	case code == http.StatusBadRequest:
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "provider rejected query (HTTP %d)", code)
	default:
		return apperrors.Newf(apperrors.ErrUpstreamUnavailable, http.StatusServiceUnavailable, "provider returned HTTP %d", code)
	}
}

type volumesResponse struct {
	TotalItems int          `json:"totalItems"`
	Items      []volumeItem `json:"items"`
}

type volumeItem struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	Description   string   `json:"description"`
	PublishedDate string   `json:"publishedDate"`
	PageCount     int      `json:"pageCount"`
	AverageRating *float64 `json:"averageRating"`
	RatingsCount  *int     `json:"ratingsCount"`
	ImageLinks    *struct {
		Thumbnail      string `json:"thumbnail"`
		SmallThumbnail string `json:"smallThumbnail"`
	} `json:"imageLinks"`
}

func (r volumesResponse) toVolumeList() *proto.VolumeList {
	list := &proto.VolumeList{
		TotalItems: r.TotalItems,
		Items:      make([]proto.Volume, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		info := item.VolumeInfo
		v := proto.Volume{
			ID:            item.ID,
			Title:         info.Title,
			Authors:       info.Authors,
			Description:   info.Description,
			PublishedDate: info.PublishedDate,
			PageCount:     info.PageCount,
			AverageRating: info.AverageRating,
			RatingsCount:  info.RatingsCount,
		}
		if info.ImageLinks != nil {
			v.Thumbnail = info.ImageLinks.Thumbnail
			v.SmallThumbnail = info.ImageLinks.SmallThumbnail
		}
		list.Items = append(list.Items, v)
	}
	return list
}
