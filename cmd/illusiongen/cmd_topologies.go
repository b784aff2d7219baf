package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"illusiongen/cmd/illusiongen/ui"
	"illusiongen/internal/emitter"
	"illusiongen/internal/schedule"
)

// topologiesCmd lists the topologies a node count maps onto
var topologiesCmd = &cobra.Command{
	Use:   "topologies <nodes>",
	Short: "List the (family, k, n) topologies for a node count",
	Long: `Rounds the node count up to a power of two and lists every configured
topology family and dimension whose radix^dimension equals it.

Example:
  illusiongen topologies 12`,
	Args: cobra.ExactArgs(1),
	RunE: runTopologies,
}

func runTopologies(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > schedule.MaxNodeNumber {
		return fmt.Errorf("node count must be an integer in [1, %d], got %q", schedule.MaxNodeNumber, args[0])
	}
	nodes := schedule.NextPowerOfTwo(n)

	families := cfg.Topology.Families
	if len(families) == 0 {
		families = emitter.Families
	}
	table := ui.NewSimpleTable(fmt.Sprintf("Topologies for %d nodes", nodes), []string{"family", "k", "n", "routing"})
	for _, v := range emitter.Variants(nodes, families, cfg.Topology.MaxDimension) {
		routing := cfg.Simulator.Routing[v.Family]
		if routing == "" {
			routing = emitter.DefaultRouting[v.Family]
		}
		table.AddRow(v.Family, strconv.Itoa(v.K), strconv.Itoa(v.Dim), routing)
	}
	view := table.View(ui.DefaultStyles())
	if view == "" {
		view = "no topology fits\n"
	}
	fmt.Fprint(cmd.OutOrStdout(), view)
	return nil
}
