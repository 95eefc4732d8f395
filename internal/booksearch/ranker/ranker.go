package ranker

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
)

// Valid average rating range as published by the provider.
const (
	MinAverageRating = 0.0
	MaxAverageRating = 5.0
)

// ErrInvalidRating is returned for rating data outside the agreed range.
var ErrInvalidRating = errors.New("invalid rating data")

// Score returns averageRating × ln(ratingsCount + 1), or 0 when the volume has
// no rating or no ratings. Out-of-range input is reported, not clamped.
func Score(v proto.Volume) (float64, error) {
	if v.AverageRating != nil {
		r := *v.AverageRating
		if math.IsNaN(r) || r < MinAverageRating || r > MaxAverageRating {
			return 0, fmt.Errorf("%w: volume %q average rating %v not in [%v, %v]",
				ErrInvalidRating, v.ID, r, MinAverageRating, MaxAverageRating)
		}
	}
	if v.RatingsCount != nil && *v.RatingsCount < 0 {
		return 0, fmt.Errorf("%w: volume %q ratings count %d is negative",
			ErrInvalidRating, v.ID, *v.RatingsCount)
	}
	if !v.Rated() {
		return 0, nil
	}
	return *v.AverageRating * math.Log(float64(*v.RatingsCount)+1), nil
}

// RankScored scores every item and stable-sorts them by score, descending.
// Items with equal scores keep their input order, which is the provider's
// relevance order. If any item fails to score, no ranking is returned.
func RankScored(items []proto.Volume) ([]proto.RankedVolume, error) {
	ranked := make([]proto.RankedVolume, len(items))
	for i, item := range items {
		score, err := Score(item)
		if err != nil {
			return nil, fmt.Errorf("scoring item %d: %w", i, err)
		}
		ranked[i] = proto.RankedVolume{Volume: item, PopularityScore: score}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PopularityScore > ranked[j].PopularityScore
	})
	for i := range ranked {
		ranked[i].PopularityScore = math.Round(ranked[i].PopularityScore*10000) / 10000
	}
	return ranked, nil
}

// Rank is RankScored without the scores. The result is a new slice holding a
// permutation of items; items itself is left untouched.
func Rank(items []proto.Volume) ([]proto.Volume, error) {
	ranked, err := RankScored(items)
	if err != nil {
		return nil, err
	}
	out := make([]proto.Volume, len(ranked))
	for i, r := range ranked {
		out[i] = r.Volume
	}
	return out, nil
}

// Unranked wraps items in provider order with zero scores, for callers that
// fall back when ranking fails.
func Unranked(items []proto.Volume) []proto.RankedVolume {
	out := make([]proto.RankedVolume, len(items))
	for i, item := range items {
		out[i] = proto.RankedVolume{Volume: item}
	}
	return out
}
