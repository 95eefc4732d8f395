package handler

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/rpc"
)

// RegisterRPC exposes the search service on s as BookSearch.OptimizeQuery,
// BookSearch.RankResults, BookSearch.Search and BookSearch.Health.
func RegisterRPC(s *rpc.Server, searcher Searcher, tracker EventTracker) {
	s.Register("BookSearch.OptimizeQuery", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req proto.OptimizeRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		resp := searcher.Optimize(req.Query)
		return &resp, nil
	})

	s.Register("BookSearch.RankResults", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req proto.RankRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		items, err := searcher.Rank(req.Items)
		if err != nil {
			return nil, err
		}
		return &proto.RankResponse{Items: items}, nil
	})

	h := New(searcher, nil, tracker)
	s.Register("BookSearch.Search", func(ctx context.Context, params json.RawMessage) (any, error) {
		var req proto.SearchRequest
		if err := decodeParams(params, &req); err != nil {
			return nil, err
		}
		return h.searchRPC(ctx, req)
	})

	s.Register("BookSearch.Health", func(ctx context.Context, params json.RawMessage) (any, error) {
		return &proto.HealthCheckResponse{Status: "SERVING"}, nil
	})
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "missing params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding params: %v", err)
	}
	return nil
}
