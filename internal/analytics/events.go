// Package analytics collects search events, ships them through Kafka and
// aggregates them into the stats served at GET /api/v1/analytics.
package analytics

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
)

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventError      EventType = "error"
)

// SearchEvent describes one book search as seen by the HTTP handler.
type SearchEvent struct {
	Type           EventType `json:"type"`
	Query          string    `json:"query"`
	OptimizedQuery string    `json:"optimized_query,omitempty"`
	Kind           string    `json:"kind,omitempty"`
	TotalItems     int       `json:"total_items"`
	Returned       int       `json:"returned"`
	RatedItems     int       `json:"rated_items"`
	LatencyMs      int64     `json:"latency_ms"`
	CacheHit       bool      `json:"cache_hit"`
	Ranked         bool      `json:"ranked"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id,omitempty"`
}

// NewSearchEvent builds the event for a completed search.
func NewSearchEvent(resp *proto.SearchResponse, requestID string) SearchEvent {
	rated := 0
	for _, item := range resp.Items {
		if item.Rated() {
			rated++
		}
	}
	typ := EventSearch
	if len(resp.Items) == 0 {
		typ = EventZeroResult
	}
	return SearchEvent{
		Type:           typ,
		Query:          resp.Query,
		OptimizedQuery: resp.OptimizedQuery,
		Kind:           resp.Kind,
		TotalItems:     resp.TotalItems,
		Returned:       len(resp.Items),
		RatedItems:     rated,
		LatencyMs:      resp.LatencyMs,
		CacheHit:       resp.CacheHit,
		Ranked:         resp.Ranked,
		Timestamp:      time.Now().UTC(),
		RequestID:      requestID,
	}
}

// NewErrorEvent builds the event for a failed search.
func NewErrorEvent(query string, latency time.Duration, err error, requestID string) SearchEvent {
	return SearchEvent{
		Type:      EventError,
		Query:     query,
		LatencyMs: latency.Milliseconds(),
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}
