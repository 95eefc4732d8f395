package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/resilience"
)

const sampleBody = `{
  "totalItems": 2,
  "items": [
    {
      "id": "vol-1",
      "volumeInfo": {
        "title": "Dune",
        "authors": ["Frank Herbert"],
        "averageRating": 4.5,
        "ratingsCount": 1200,
        "pageCount": 412,
        "imageLinks": {"thumbnail": "http://img/dune.jpg", "smallThumbnail": "http://img/dune-s.jpg"}
      }
    },
    {
      "id": "vol-2",
      "volumeInfo": {"title": "Dune Messiah"}
    }
  ]
}`

func testConfig(baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		BaseURL:           baseURL,
		MaxResults:        20,
		Timeout:           time.Second,
		RetryAttempts:     3,
		RetryInitialDelay: time.Millisecond,
		BreakerThreshold:  5,
		BreakerReset:      time.Minute,
	}
}

func TestSearch_MapsVolumes(t *testing.T) {
	var gotQuery, gotMax, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/volumes", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotMax = r.URL.Query().Get("maxResults")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, sampleBody)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	list, err := c.Search(context.Background(), "intitle:dune", 0)
	require.NoError(t, err)

	assert.Equal(t, "intitle:dune", gotQuery)
	assert.Equal(t, "20", gotMax)
	assert.Empty(t, gotKey)

	assert.Equal(t, 2, list.TotalItems)
	require.Len(t, list.Items, 2)

	first := list.Items[0]
	assert.Equal(t, "vol-1", first.ID)
	assert.Equal(t, "Dune", first.Title)
	assert.Equal(t, []string{"Frank Herbert"}, first.Authors)
	assert.Equal(t, "http://img/dune.jpg", first.Thumbnail)
	require.NotNil(t, first.AverageRating)
	assert.InDelta(t, 4.5, *first.AverageRating, 1e-9)
	require.NotNil(t, first.RatingsCount)
	assert.Equal(t, 1200, *first.RatingsCount)

	second := list.Items[1]
	assert.Nil(t, second.AverageRating)
	assert.Nil(t, second.RatingsCount)
	assert.Empty(t, second.Thumbnail)
}

func TestSearch_EmptyResultHasNoItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"totalItems": 0}`)
	}))
	defer srv.Close()

	list, err := New(testConfig(srv.URL)).Search(context.Background(), "zzzz", 0)
	require.NoError(t, err)
	assert.Zero(t, list.TotalItems)
	assert.NotNil(t, list.Items)
	assert.Empty(t, list.Items)
}

func TestSearch_SendsAPIKeyAndClampsLimit(t *testing.T) {
	var gotMax, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMax = r.URL.Query().Get("maxResults")
		gotKey = r.URL.Query().Get("key")
		fmt.Fprint(w, `{"totalItems": 0}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.APIKey = "secret"
	_, err := New(cfg).Search(context.Background(), "dune", 500)
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "40", gotMax)
}

func TestSearch_EmptyQuery(t *testing.T) {
	c := New(testConfig("http://unused.invalid"))
	_, err := c.Search(context.Background(), "   ", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Equal(t, http.StatusBadRequest, apperrors.HTTPStatusCode(err))
}

func TestSearch_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, sampleBody)
	}))
	defer srv.Close()

	list, err := New(testConfig(srv.URL)).Search(context.Background(), "dune", 0)
	require.NoError(t, err)
	assert.Len(t, list.Items, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		sentinel  error
		httpCode  int
		wantCalls int32
	}{
		{"rate limited", http.StatusTooManyRequests, apperrors.ErrRateLimited, http.StatusTooManyRequests, 3},
		{"unauthorized", http.StatusUnauthorized, apperrors.ErrUnauthorized, http.StatusInternalServerError, 1},
		{"forbidden", http.StatusForbidden, apperrors.ErrUnauthorized, http.StatusInternalServerError, 1},
		{"bad request", http.StatusBadRequest, apperrors.ErrInvalidInput, http.StatusBadRequest, 1},
		{"server error", http.StatusInternalServerError, apperrors.ErrUpstreamUnavailable, http.StatusServiceUnavailable, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := New(testConfig(srv.URL)).Search(context.Background(), "dune", 0)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Equal(t, tt.httpCode, apperrors.HTTPStatusCode(err))
			assert.Equal(t, tt.wantCalls, calls.Load())
		})
	}
}

func TestSearch_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RetryAttempts = 1
	_, err := New(cfg).Search(context.Background(), "dune", 0)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
}

func TestSearch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Timeout = 20 * time.Millisecond
	cfg.RetryAttempts = 1
	_, err := New(cfg).Search(context.Background(), "dune", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatusCode(err))
}

func TestSearch_BreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.RetryAttempts = 1
	cfg.BreakerThreshold = 2

	var opened atomic.Bool
	c := New(cfg, WithStateChange(func(_ string, _, to resilience.State) {
		if to == resilience.StateOpen {
			opened.Store(true)
		}
	}))

	for i := 0; i < 2; i++ {
		_, err := c.Search(context.Background(), "dune", 0)
		require.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	}
	assert.Equal(t, resilience.StateOpen, c.BreakerState())
	assert.True(t, opened.Load())

	_, err := c.Search(context.Background(), "dune", 0)
	assert.ErrorIs(t, err, apperrors.ErrUpstreamUnavailable)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, int32(2), calls.Load())
}

func TestSearch_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BreakerThreshold = 1
	c := New(cfg)
	for i := 0; i < 3; i++ {
		_, _ = c.Search(context.Background(), "dune", 0)
	}
	assert.Equal(t, resilience.StateClosed, c.BreakerState())
}
