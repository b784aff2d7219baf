package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"illusiongen/cmd/illusiongen/ui"
	"illusiongen/internal/catalog"
)

var (
	filterNetwork  string
	filterTopology string
	filterConfig   float64
	filterRun      string
	artifactLimit  int
	runLimit       int
)

// catalogCmd queries the artifact catalog
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Query the catalog of generated configs",
}

var catalogArtifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "List generated configs",
	Long: `Lists cataloged configs, optionally filtered.

Example:
  illusiongen catalog artifacts --network resnet50 --topology mesh
  illusiongen catalog artifacts --scaling 0.25`,
	RunE: runCatalogArtifacts,
}

var catalogRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent generation runs",
	RunE:  runCatalogRuns,
}

func init() {
	catalogArtifactsCmd.Flags().StringVar(&filterNetwork, "network", "", "Only this network")
	catalogArtifactsCmd.Flags().StringVar(&filterTopology, "topology", "", "Only this topology family")
	catalogArtifactsCmd.Flags().Float64Var(&filterConfig, "scaling", 0, "Only this scaling config")
	catalogArtifactsCmd.Flags().StringVar(&filterRun, "run", "", "Only this run id")
	catalogArtifactsCmd.Flags().IntVar(&artifactLimit, "limit", 0, "Maximum rows (0 = all)")
	catalogRunsCmd.Flags().IntVar(&runLimit, "limit", 20, "Maximum rows")

	catalogCmd.AddCommand(catalogArtifactsCmd)
	catalogCmd.AddCommand(catalogRunsCmd)
}

func openCatalog() (*catalog.Store, error) {
	path := cfg.CatalogPath()
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no catalog at %s (run generate first): %w", path, err)
	}
	return catalog.Open(path)
}

func runCatalogArtifacts(cmd *cobra.Command, args []string) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	filter := catalog.ArtifactFilter{
		RunID:    filterRun,
		Network:  filterNetwork,
		Topology: filterTopology,
		Limit:    artifactLimit,
	}
	if cmd.Flags().Changed("scaling") {
		filter.Config = &filterConfig
	}

	artifacts, err := store.Artifacts(filter)
	if err != nil {
		return err
	}

	table := ui.NewSimpleTable(fmt.Sprintf("%d configs", len(artifacts)), []string{"name", "routing", "path"})
	for _, a := range artifacts {
		table.AddRow(a.Name(), a.Routing, a.Path)
	}
	fmt.Fprint(cmd.OutOrStdout(), table.View(ui.DefaultStyles()))
	return nil
}

func runCatalogRuns(cmd *cobra.Command, args []string) error {
	store, err := openCatalog()
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(runLimit)
	if err != nil {
		return err
	}

	table := ui.NewSimpleTable("Runs", []string{"id", "started", "status", "networks", "schedules", "configs"})
	for _, r := range runs {
		table.AddRow(r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status,
			strings.Join(r.Networks, ","), strconv.Itoa(r.Schedules), strconv.Itoa(r.Artifacts))
	}
	fmt.Fprint(cmd.OutOrStdout(), table.View(ui.DefaultStyles()))
	return nil
}
