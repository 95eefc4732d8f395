package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/internal/booksearch/query"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/proto"
)

func newOptimizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize <query>",
		Short: "Show the provider query built for free text",
		Long: `optimize classifies free text as an ISBN, a "title by author" search,
an already scoped query or a plain title and prints the Google Books query
built for it. It never contacts the provider.

Examples:
  bookquery optimize 978-0-261-10357-3
  bookquery optimize the hobbit by tolkien
  bookquery optimize --json dune`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := strings.Join(args, " ")
			optimized, kind := query.Optimize(raw)
			resp := proto.OptimizeResponse{Query: raw, Optimized: optimized, Kind: string(kind)}
			if a.jsonOutput() {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", resp.Kind, resp.Optimized)
			return err
		},
	}
}
