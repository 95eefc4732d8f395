// Package proto defines the message types shared by the book search service,
// its HTTP API, the internal RPC layer (see pkg/rpc) and the result cache.
//
// The types use JSON struct tags because every transport in the service
// (HTTP, newline-delimited JSON RPC, Redis values) is JSON.
package proto

// ---------- Books ----------

// Volume is one book returned by the metadata provider. Rating fields are
// pointers because the provider omits them for most volumes; a nil rating is
// different from a zero rating.
type Volume struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Authors        []string `json:"authors,omitempty"`
	Description    string   `json:"description,omitempty"`
	Thumbnail      string   `json:"thumbnail,omitempty"`
	SmallThumbnail string   `json:"small_thumbnail,omitempty"`
	PublishedDate  string   `json:"published_date,omitempty"`
	PageCount      int      `json:"page_count,omitempty"`
	AverageRating  *float64 `json:"average_rating,omitempty"`
	RatingsCount   *int     `json:"ratings_count,omitempty"`
}

// Rated reports whether the volume carries a usable rating signal.
func (v Volume) Rated() bool {
	return v.AverageRating != nil && v.RatingsCount != nil && *v.RatingsCount > 0
}

// VolumeList is a provider response page, in provider order.
type VolumeList struct {
	TotalItems int      `json:"total_items"`
	Items      []Volume `json:"items"`
}

// RankedVolume is a Volume with its popularity score.
type RankedVolume struct {
	Volume
	PopularityScore float64 `json:"popularity_score"`
}

// ---------- Search ----------

// SearchRequest is the input to the BookSearch.Search RPC.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// SearchResponse is what a search returns over HTTP and RPC.
type SearchResponse struct {
	Query          string         `json:"query"`
	OptimizedQuery string         `json:"optimized_query"`
	Kind           string         `json:"kind"`
	TotalItems     int            `json:"total_items"`
	Items          []RankedVolume `json:"items"`
	Ranked         bool           `json:"ranked"`
	CacheHit       bool           `json:"cache_hit"`
	LatencyMs      int64          `json:"latency_ms"`
}

// ---------- Core ----------

// OptimizeRequest is the input to the BookSearch.OptimizeQuery RPC.
type OptimizeRequest struct {
	Query string `json:"query"`
}

// OptimizeResponse carries the provider query built for a raw query.
type OptimizeResponse struct {
	Query     string `json:"query"`
	Optimized string `json:"optimized"`
	Kind      string `json:"kind"`
}

// RankRequest is the input to the BookSearch.RankResults RPC.
type RankRequest struct {
	Items []Volume `json:"items"`
}

// RankResponse holds the items reordered by popularity.
type RankResponse struct {
	Items []RankedVolume `json:"items"`
}

// HealthCheckResponse uses the gRPC health checking status names.
type HealthCheckResponse struct {
	Status string `json:"status"` // SERVING, NOT_SERVING, UNKNOWN
}
