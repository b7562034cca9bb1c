// Package main provides the ideagraph CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orneryd/ideagraph/pkg/config"
	"github.com/orneryd/ideagraph/pkg/logging"
	"github.com/orneryd/ideagraph/pkg/storage"
	"github.com/orneryd/ideagraph/pkg/subgraph"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ideagraph",
		Short: "ideagraph - pattern search and rewrite over an idea graph",
		Long: `ideagraph stores ideas and typed links between them, and finds,
matches and rewrites small pattern graphs against that store.

Patterns are exchanged in the canonical subgraph text form.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ideagraph v%s (%s)\n", version, commit)
		},
	})

	// Init command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize a new idea store",
		RunE:  runInit,
	})

	// Import command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "import [file]",
		Short: "Import ideas and links from a YAML graph document",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	})

	// Search command
	searchCmd := &cobra.Command{
		Use:   "search [pattern]",
		Short: "Find every concrete binding of a pattern",
		Args:  cobra.ExactArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().Int("max-results", -1, "Stop after this many results (default from config)")
	rootCmd.AddCommand(searchCmd)

	// Rewrite command
	rewriteCmd := &cobra.Command{
		Use:   "rewrite [pattern] [transitions]",
		Short: "Apply a YAML list of transitions to a concrete pattern",
		Args:  cobra.ExactArgs(2),
		RunE:  runRewrite,
	}
	rewriteCmd.Flags().Bool("actual", false, "Write the changes through to the store")
	rootCmd.AddCommand(rewriteCmd)

	return rootCmd
}

// env is everything a command needs once config is resolved.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
	engine storage.Engine
	close  func()
}

func setup(cmd *cobra.Command) (*env, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg := config.LoadFromEnvOrFile(path)
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.Database.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	logger.Debug("configuration loaded", "config", cfg.String())

	engine, err := openEngine(cfg, logger)
	if err != nil {
		logCloser.Close()
		return nil, err
	}
	return &env{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		close: func() {
			if err := engine.Close(); err != nil {
				logger.Error("closing store", "error", err)
			}
			logCloser.Close()
		},
	}, nil
}

// openEngine opens the badger store described by cfg, behind a cache when
// enabled.
func openEngine(cfg *config.Config, logger *slog.Logger) (storage.Engine, error) {
	opts := storage.BadgerOptions{
		DataDir:    cfg.Database.DataDir,
		InMemory:   cfg.Database.InMemory,
		SyncWrites: cfg.Database.SyncWrites,
		LowMemory:  cfg.Database.LowMemory,
		Logger:     logger,
	}
	if cfg.Database.EncryptionPassword != "" {
		opts.EncryptionKey = storage.DeriveEncryptionKey(cfg.Database.EncryptionPassword, cfg.Database.EncryptionSalt)
	}
	badgerEngine, err := storage.NewBadgerEngineWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if !cfg.Cache.Enabled {
		return badgerEngine, nil
	}
	return storage.NewCachedEngine(badgerEngine, cfg.Cache.Size, cfg.Cache.TTL), nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
}

func runInit(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	count, err := e.engine.IdeaCount(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Initialized idea store at %s (%d ideas)\n", e.cfg.Database.DataDir, count)
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()
	ctx, cancel := signalContext(cmd)
	defer cancel()

	ids, err := storage.ImportFile(ctx, e.engine, args[0])
	if err != nil {
		return err
	}
	e.logger.Info("import finished", "file", args[0], "ideas", len(ids))
	return printIDs(cmd.OutOrStdout(), ids)
}

// printIDs writes the key -> id map in key order.
func printIDs(w io.Writer, ids map[string]storage.IdeaID) error {
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", k, ids[k]); err != nil {
			return err
		}
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()
	ctx, cancel := signalContext(cmd)
	defer cancel()

	sg, err := loadPattern(e.engine, args[0])
	if err != nil {
		return err
	}

	opts := subgraph.SearchOptions{
		MaxResults:  e.cfg.Search.MaxResults,
		Concurrency: e.cfg.Search.Concurrency,
		Logger:      e.logger,
	}
	if n, _ := cmd.Flags().GetInt("max-results"); n >= 0 {
		opts.MaxResults = n
	}

	results, err := subgraph.SearchWithOptions(ctx, sg, opts)
	if err != nil {
		return err
	}
	e.logger.Info("search finished", "pattern", args[0], "results", len(results))
	for _, r := range results {
		text, err := r.Stringify()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
	}
	return nil
}

func runRewrite(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()
	ctx, cancel := signalContext(cmd)
	defer cancel()

	sg, err := loadPattern(e.engine, args[0])
	if err != nil {
		return err
	}
	transitions, err := loadTransitions(args[1])
	if err != nil {
		return err
	}
	actual, _ := cmd.Flags().GetBool("actual")

	out, err := subgraph.Rewrite(ctx, sg, transitions, actual)
	if err != nil {
		return err
	}
	if out == nil {
		return fmt.Errorf("rewrite rejected: transitions do not apply to %s", args[0])
	}
	e.logger.Info("rewrite applied", "transitions", len(transitions), "actual", actual)

	text, err := out.Stringify()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func loadPattern(engine storage.Engine, path string) (*subgraph.Subgraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sg, err := subgraph.Parse(engine, string(data))
	if err != nil {
		return nil, fmt.Errorf("parsing pattern %s: %w", path, err)
	}
	return sg, nil
}

// loadTransitions reads a YAML (or JSON) list of transitions.
func loadTransitions(path string) ([]subgraph.Transition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseTransitions(data)
}

func parseTransitions(data []byte) ([]subgraph.Transition, error) {
	var specs []subgraph.TransitionSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parsing transitions: %w", err)
	}
	out := make([]subgraph.Transition, 0, len(specs))
	for i, s := range specs {
		t, err := s.Transition()
		if err != nil {
			return nil, fmt.Errorf("transition %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
