package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/provider"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
)

func newSearchCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search Google Books and rank the results by popularity",
		Long: `search optimizes the query, fetches one page from Google Books and orders
it by average rating weighted by the log of the ratings count.

Examples:
  bookquery search dune
  bookquery search --limit 5 the hobbit by tolkien
  bookquery search --rpc-addr localhost:9000 --json 9780261103573`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			resp, err := a.search(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			return printSearch(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum results (default from config, at most 40)")
	return cmd
}

func (a *app) search(ctx context.Context, raw string, limit int) (*proto.SearchResponse, error) {
	if a.remote() {
		var resp proto.SearchResponse
		if err := a.call(ctx, "BookSearch.Search", proto.SearchRequest{Query: raw, Limit: limit}, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}

	cfg, err := a.serviceConfig()
	if err != nil {
		return nil, err
	}
	svc := booksearch.NewService(provider.New(cfg.Provider), nil, nil, cfg.Search)
	return svc.Search(ctx, raw, limit)
}

func printSearch(w io.Writer, resp *proto.SearchResponse) error {
	fmt.Fprintf(w, "query: %s (%s)\n", resp.OptimizedQuery, resp.Kind)
	fmt.Fprintf(w, "showing %d of %d", len(resp.Items), resp.TotalItems)
	if !resp.Ranked {
		fmt.Fprint(w, ", provider order")
	}
	fmt.Fprintln(w)
	if len(resp.Items) == 0 {
		return nil
	}
	return printVolumes(w, resp.Items)
}

func printVolumes(w io.Writer, items []proto.RankedVolume) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSCORE\tRATING\tTITLE\tAUTHORS")
	for i, item := range items {
		rating := "-"
		if item.Rated() {
			rating = fmt.Sprintf("%.1f (%d)", *item.AverageRating, *item.RatingsCount)
		}
		fmt.Fprintf(tw, "%d\t%.2f\t%s\t%s\t%s\n",
			i+1, item.PopularityScore, rating, item.Title, strings.Join(item.Authors, ", "))
	}
	return tw.Flush()
}
