// Package main provides the gridplan CLI: batch replanning runs, an HTTP
// planning server and the stored run history.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"grid-replanner/config"
	"grid-replanner/store"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridplan",
		Short: "Grid path search with tree-based replanning",
		Long: `gridplan plans on occupancy grids, drops obstacles on the planned path
and repairs it with tree detours before falling back to a full search.

Commands:
  run       Plan and replan on generated maps
  serve     Serve planning over HTTP
  history   Show recorded runs`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./gridplan.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(historyCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads the configuration with flags overriding file and environment.
func setup(flags *pflag.FlagSet) (*config.Config, *slog.Logger, error) {
	bootstrap := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg, err := config.LoadConfig(configPath, flags, bootstrap)
	if err != nil {
		return nil, nil, err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (*store.Store, error) {
	if !cfg.Store.Enabled {
		return nil, nil
	}
	st, err := store.Open(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return st, nil
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan and replan on generated maps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd.Flags())
			if err != nil {
				return err
			}
			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := NewRunner(cfg, logger, NewMetrics(), st)
			results, err := runner.Run(ctx)
			writeRunReport(cmd.OutOrStdout(), results)
			return err
		},
	}

	flags := cmd.Flags()
	flags.Int("map-size", 0, "map side length in cells (100-1000)")
	flags.IntP("num-maps", "n", 0, "number of maps to plan on")
	flags.Int("initial-obstacles", 0, "obstacles per generated map")
	flags.Int("dynamic-obstacles", 0, "obstacles dropped on the planned path")
	flags.String("obstacle-dir", "", "directory of GeoJSON obstacle files used instead of generated maps")
	flags.Int("rrt-iterations", 0, "tree iterations per detour (1000-8000)")
	flags.Int("rrt-step", 0, "tree step size in cells")
	flags.String("rrt-index", "", "nearest-node index: linear or rtree")
	flags.Int("threshold", 0, "obstacle encounters tolerated before falling back to grid search")
	flags.String("direction", "", "replanning walk direction: goal-to-start or start-to-goal")
	flags.Int64("seed", 0, "random seed, 0 for time based")
	flags.StringP("output-dir", "o", "", "directory for rendered maps")
	flags.Bool("render", false, "render each map stage as PNG")
	flags.Bool("store", false, "record runs in the database")
	flags.String("db", "", "database path")
	return cmd
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve planning over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd.Flags())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := NewServer(cfg, logger, NewMetrics())
			if err != nil {
				return err
			}
			srv.loadInitialMap()
			return srv.ListenAndServe(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "", "listen host")
	flags.IntP("port", "p", 0, "listen port")
	flags.String("map-file", "", "file the current map is saved to and loaded from")
	flags.Int("threshold", 0, "obstacle encounters tolerated before falling back to grid search")
	flags.String("direction", "", "replanning walk direction: goal-to-start or start-to-goal")
	flags.String("rrt-index", "", "nearest-node index: linear or rtree")
	flags.Int64("seed", 0, "random seed, 0 for time based")
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd.Flags())
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.Store.Path, logger)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			runs, err := st.ListRuns(context.Background(), limit)
			if err != nil {
				return err
			}
			writeHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().String("db", "", "database path")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of runs to show, 0 for all")
	return cmd
}
