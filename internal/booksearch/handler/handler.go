// Package handler exposes the book search service over HTTP and the internal
// RPC server.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
)

// Searcher is the search service as the handlers use it.
type Searcher interface {
	Search(ctx context.Context, raw string, limit int) (*proto.SearchResponse, error)
	Optimize(raw string) proto.OptimizeResponse
	Rank(items []proto.Volume) ([]proto.RankedVolume, error)
}

// ResultCache is the subset of the result cache exposed for operations.
type ResultCache interface {
	Stats() cache.Stats
	Invalidate(ctx context.Context) (int64, error)
}

// EventTracker receives one analytics event per search.
type EventTracker interface {
	Track(event analytics.SearchEvent)
}

type Handler struct {
	searcher Searcher
	cache    ResultCache
	tracker  EventTracker
	logger   *slog.Logger
}

// New creates a Handler. cache and tracker may be nil.
func New(searcher Searcher, resultCache ResultCache, tracker EventTracker) *Handler {
	return &Handler{
		searcher: searcher,
		cache:    resultCache,
		tracker:  tracker,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/books/search", h.Search)
	mux.HandleFunc("GET /api/v1/books/optimize", h.Optimize)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health", h.Health)
}

// Search serves GET /api/v1/books/search?q=&limit=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Query parameter is required", "Please enter a search term")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	resp, err := h.search(ctx, q, limit)
	if err != nil {
		status, body := searchError(err)
		logger.FromContext(ctx).Warn("search request failed", "query", q, "status", status, "error", err)
		middleware.WriteError(w, status, body.Error, body.Message)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) searchRPC(ctx context.Context, req proto.SearchRequest) (*proto.SearchResponse, error) {
	return h.search(ctx, req.Query, req.Limit)
}

// search runs the query and records its analytics event.
func (h *Handler) search(ctx context.Context, q string, limit int) (*proto.SearchResponse, error) {
	start := time.Now()
	resp, err := h.searcher.Search(ctx, q, limit)
	if err != nil {
		h.track(analytics.NewErrorEvent(q, time.Since(start), err, logger.RequestID(ctx)))
		return nil, err
	}
	h.track(analytics.NewSearchEvent(resp, logger.RequestID(ctx)))
	return resp, nil
}

// searchError maps a search failure to the status and message shown to
// users of the book club.
func searchError(err error) (int, middleware.ErrorBody) {
	switch {
	case errors.Is(err, apperrors.ErrUpstreamUnavailable), errors.Is(err, apperrors.ErrTimeout):
		return http.StatusServiceUnavailable, middleware.ErrorBody{
			Error:   "Network error",
			Message: "Unable to connect to Google Books. Please check your internet connection and try again.",
		}
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests, middleware.ErrorBody{
			Error:   "Rate limit exceeded",
			Message: "Too many search requests. Please wait a moment and try again.",
		}
	case errors.Is(err, apperrors.ErrUnauthorized):
		return http.StatusInternalServerError, middleware.ErrorBody{
			Error:   "API authentication error",
			Message: "There was a problem with the book search service. Please try again later.",
		}
	case errors.Is(err, apperrors.ErrInvalidInput):
		return http.StatusBadRequest, middleware.ErrorBody{
			Error:   "Search failed",
			Message: "Unable to search for books. Please try again or use different search terms.",
		}
	default:
		return http.StatusInternalServerError, middleware.ErrorBody{
			Error:   "Search failed",
			Message: "Unable to search for books. Please try again or use different search terms.",
		}
	}
}

// Optimize serves GET /api/v1/books/optimize?q=, showing how a query would be
// sent to the provider.
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if strings.TrimSpace(q) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "Query parameter is required", "Please enter a search term")
		return
	}
	h.writeJSON(w, http.StatusOK, h.searcher.Optimize(q))
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		middleware.WriteError(w, http.StatusServiceUnavailable, "Caching is disabled", "")
		return
	}
	deleted, err := h.cache.Invalidate(r.Context())
	if err != nil {
		logger.FromContext(r.Context()).Error("cache invalidation failed", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, "Cache invalidation failed", "")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) track(event analytics.SearchEvent) {
	if h.tracker != nil {
		h.tracker.Track(event)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
