package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"illusiongen/internal/config"
	"illusiongen/internal/logging"
)

var (
	// Global flags
	configPath  string
	verbose     bool
	scheduleDir string
	outputDir   string

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "illusiongen",
	Short: "Turn multi-chip layer traces into BookSim illusion configs",
	Long: `illusiongen reads the per-node layer traces of a partitioned neural network,
derives the inter-chip message schedule and writes one BookSim "illusion"
traffic config per torus, mesh and fat-tree topology that fits the node count.

Traces are read from <schedule_dir>/<network>_<word>_<batch>/<config>/*.csv.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if scheduleDir != "" {
			loaded.ScheduleDir = scheduleDir
		}
		if outputDir != "" {
			loaded.OutputDir = outputDir
		}
		cfg = loaded

		lc := logging.Config{
			Level:      cfg.Logging.Level,
			Format:     cfg.Logging.Format,
			File:       cfg.Logging.File,
			Categories: cfg.Logging.Categories,
		}
		if verbose {
			lc.Level = "debug"
		}
		if err := logging.Initialize(lc); err != nil {
			return err
		}
		if _, err := os.Stat(configPath); err != nil {
			logging.BootWarn("no config at %s, using defaults", configPath)
		}
		logging.Boot("illusiongen %s: %d networks, %d scaling configs", cmd.Name(), len(cfg.Networks), len(cfg.Configs))
		logging.BootDebug("config %s: schedule_dir=%s output_dir=%s", configPath, cfg.ScheduleDir, cfg.OutputDir)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "illusiongen.yaml", "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&scheduleDir, "schedule-dir", "", "Trace root (overrides config)")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output-dir", "", "Config output directory (overrides config)")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(topologiesCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(initConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
