package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"illusiongen/internal/catalog"
	"illusiongen/internal/logging"
	"illusiongen/internal/pipeline"
	"illusiongen/internal/watch"
)

// watchCmd regenerates configs whenever traces change
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate a network's configs whenever its traces change",
	Long: `Watches the trace tree of every configured network and reruns generation for
a network once its .csv files have been quiet for watch.debounce.

Runs until interrupted.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var store *catalog.Store
	if cfg.Catalog.Enabled {
		s, err := catalog.Open(cfg.CatalogPath())
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	runner := pipeline.NewRunner(cfg, store)
	roots := make(map[string]string, len(cfg.Networks))
	for _, network := range cfg.Networks {
		roots[runner.Layout().NetworkDir(network, cfg.Word, cfg.Batch)] = network
	}

	w, err := watch.New(roots, runner, cfg.GetDebounce())
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	dirs := w.WatchedDirs()
	if len(dirs) == 0 {
		return fmt.Errorf("no trace directories found under %s", cfg.ScheduleDir)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "watching %d directories for %d networks under %s (ctrl-c to stop)\n",
		len(dirs), len(roots), cfg.ScheduleDir)

	select {
	case <-ctx.Done():
	case <-w.Done():
	}
	logging.Watch("shutting down")

	stats := w.GetStats()
	fmt.Fprintf(cmd.OutOrStdout(), "%d events, %d regenerations, %d errors\n",
		stats.Events, stats.Regenerations, stats.Errors)
	return nil
}
