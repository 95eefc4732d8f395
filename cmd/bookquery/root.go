package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/rpc"
)

const envPrefix = "BOOKQUERY"

// app carries the settings shared by every subcommand. Flags, BOOKQUERY_*
// environment variables and an optional YAML file feed one viper instance.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	cmd := &cobra.Command{
		Use:   "bookquery",
		Short: "Query optimizer and search client for the book club catalogue",
		Long: `bookquery exercises the book search pipeline from a terminal.

optimize shows the provider query built for free text, search runs the full
optimize, fetch and rank pipeline, and rank orders a JSON list of volumes by
popularity. search and rank go through a booksearch RPC listener when
--rpc-addr is set and run in process otherwise.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "service config file used for in-process searches")
	flags.String("rpc-addr", "", "booksearch RPC address; empty runs in process")
	flags.String("api-key", "", "Google Books API key for in-process searches")
	flags.String("base-url", "", "override the Google Books API base URL")
	flags.Duration("timeout", 15*time.Second, "overall deadline per command")
	flags.String("log-level", "warn", "log level: debug, info, warn, error")
	flags.Bool("json", false, "print JSON instead of a table")

	cmd.AddCommand(newOptimizeCmd(a), newSearchCmd(a), newRankCmd(a), newBenchCmd())
	return cmd
}

func (a *app) init(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	logger.SetupWriter(cmd.ErrOrStderr(), a.v.GetString("log-level"), "text")
	return nil
}

// serviceConfig loads the service config and applies CLI overrides.
func (a *app) serviceConfig() (*config.Config, error) {
	cfg, err := config.Load(a.v.GetString("config"))
	if err != nil {
		return nil, err
	}
	if key := a.v.GetString("api-key"); key != "" {
		cfg.Provider.APIKey = key
	}
	if base := a.v.GetString("base-url"); base != "" {
		cfg.Provider.BaseURL = base
	}
	return cfg, nil
}

func (a *app) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if d := a.v.GetDuration("timeout"); d > 0 {
		return context.WithTimeout(parent, d)
	}
	return context.WithCancel(parent)
}

// call runs one RPC against the configured listener.
func (a *app) call(ctx context.Context, method string, params, result any) error {
	client, err := rpc.Dial(a.v.GetString("rpc-addr"))
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Call(ctx, method, params, result)
}

func (a *app) remote() bool {
	return a.v.GetString("rpc-addr") != ""
}

func (a *app) jsonOutput() bool {
	return a.v.GetBool("json")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
