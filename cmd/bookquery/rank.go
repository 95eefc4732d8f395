package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/ranker"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
)

func newRankCmd(a *app) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Order a JSON list of volumes by popularity",
		Long: `rank reads a JSON array of volumes (the items of a search response) and
prints them ordered by popularity score. Unrated volumes keep their relative
order after the rated ones.

Examples:
  bookquery search --json dune | jq .items | bookquery rank
  bookquery rank --file volumes.json --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("opening %s: %w", input, err)
				}
				defer f.Close()
				in = f
			}
			items, err := readVolumes(in)
			if err != nil {
				return err
			}

			ctx, cancel := a.context(cmd.Context())
			defer cancel()
			ranked, err := a.rank(ctx, items)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), proto.RankResponse{Items: ranked})
			}
			return printVolumes(cmd.OutOrStdout(), ranked)
		},
	}

	cmd.Flags().StringVarP(&input, "file", "f", "-", "JSON file to read, - for stdin")
	return cmd
}

func readVolumes(r io.Reader) ([]proto.Volume, error) {
	var items []proto.Volume
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding volumes: %w", err)
	}
	return items, nil
}

func (a *app) rank(ctx context.Context, items []proto.Volume) ([]proto.RankedVolume, error) {
	if a.remote() {
		var resp proto.RankResponse
		if err := a.call(ctx, "BookSearch.RankResults", proto.RankRequest{Items: items}, &resp); err != nil {
			return nil, err
		}
		return resp.Items, nil
	}
	return ranker.RankScored(items)
}
