package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"illusiongen/cmd/illusiongen/ui"
	"illusiongen/internal/catalog"
	"illusiongen/internal/logging"
	"illusiongen/internal/pipeline"
)

var noCatalog bool

// generateCmd runs the full trace -> config transformation
var generateCmd = &cobra.Command{
	Use:   "generate [network...]",
	Short: "Generate simulator configs for every scenario",
	Long: `Builds the message schedule of every (network, config) scenario and writes
one BookSim config per matching topology.

With no arguments the networks listed in the config file are processed.

Example:
  illusiongen generate
  illusiongen generate resnet50 --output-dir ./configs`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&noCatalog, "no-catalog", false, "Do not record the run in the catalog")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		cfg.Networks = args
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var store *catalog.Store
	if cfg.Catalog.Enabled && !noCatalog {
		s, err := catalog.Open(cfg.CatalogPath())
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	timer := logging.StartTimer(logging.CategoryPipeline, "generate")
	report, err := pipeline.NewRunner(cfg, store).Run(ctx)
	timer.StopWithInfo()

	fmt.Fprint(cmd.OutOrStdout(), renderReport(report))
	return err
}

func renderReport(report *pipeline.Report) string {
	styles := ui.DefaultStyles()

	table := ui.NewSimpleTable("Schedules", []string{"scenario", "trace", "nodes", "messages", "keep-alive", "configs"})
	for _, s := range report.Scenarios {
		table.AddRow(s.Scenario.String(), baseName(s.File), strconv.Itoa(s.Nodes),
			strconv.Itoa(s.Messages), strconv.Itoa(s.KeepAlive), strconv.Itoa(len(s.Artifacts)))
	}
	out := table.View(styles)

	failures := ui.NewSimpleTable("Failures", []string{"scenario", "error"})
	for _, f := range report.Failures {
		failures.AddRow(f.Scenario.String(), f.Err.Error())
	}
	out += failures.View(styles)

	for _, f := range report.Superseded() {
		out += styles.Warning.Render("superseded: "+f) + "\n"
	}

	summary := fmt.Sprintf("%d schedules, %d configs, %d failures in %v",
		len(report.Scenarios), report.ArtifactCount(), len(report.Failures), report.Duration.Round(time.Millisecond))
	if report.RunID != "" {
		summary += " (run " + report.RunID + ")"
	}
	return out + styles.Bold.Render(summary) + "\n"
}

func baseName(path string) string {
	if path == "" {
		return "-"
	}
	return filepath.Base(path)
}
