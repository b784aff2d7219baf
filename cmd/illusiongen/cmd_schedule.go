package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"illusiongen/internal/emitter"
	"illusiongen/internal/pipeline"
	"illusiongen/internal/schedule"
	"illusiongen/internal/trace"
)

var (
	referencePath  string
	showRaw        bool
	scheduleConfig float64
	scheduleNet    string
)

// scheduleCmd builds the schedule of a single trace file
var scheduleCmd = &cobra.Command{
	Use:   "schedule <trace.csv>",
	Short: "Print the message schedule of one trace",
	Long: `Builds and normalizes the message schedule of a single trace file and prints
it in the form written into traffic_schedule.

Example:
  illusiongen schedule traces/alex_net_16_1/1/alex_net_1.0_mp.csv \
      --reference traces/alex_net_16_1/2048/alex_net_2048.0_mp.csv
  illusiongen schedule trace.csv --reference ref.csv --raw`,
	Args: cobra.ExactArgs(1),
	RunE: runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&referencePath, "reference", "", "Trace the canonical layer order is read from (required)")
	scheduleCmd.Flags().BoolVar(&showRaw, "raw", false, "Print the symbolic messages before normalization")
	scheduleCmd.Flags().StringVar(&scheduleNet, "network", "", "Network name used in messages (default: from the trace path)")
	scheduleCmd.Flags().Float64Var(&scheduleConfig, "scaling", 0, "Scaling config used in messages")
	scheduleCmd.MarkFlagRequired("reference")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	path := args[0]
	scenario := trace.Scenario{Network: scheduleNet, Word: cfg.Word, Batch: cfg.Batch, Config: scheduleConfig}
	if scenario.Network == "" {
		scenario.Network = networkFromPath(path)
	}

	layers, err := trace.LoadLayerOrder(referencePath, scenario)
	if err != nil {
		return err
	}
	order, err := schedule.NewOrder(layers)
	if err != nil {
		return fmt.Errorf("%s: %w", referencePath, err)
	}

	raw, sched, err := pipeline.BuildRaw(path, scenario, order, cfg.LinkWidth)
	if showRaw && raw != nil {
		printRaw(cmd.OutOrStdout(), raw)
	}
	if err != nil {
		return err
	}
	if showRaw {
		return nil
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "nodes: %d (keep-alive %d)\n", sched.Nodes, sched.KeepAlive)
	fmt.Fprintln(out, emitter.FormatSchedule(sched.Messages))
	return nil
}

func printRaw(w io.Writer, raw *schedule.Raw) {
	for _, m := range raw.Messages {
		fmt.Fprintf(w, "%s -> %s %d (row %d)\n", endpoint(m.Src), endpoint(m.Dst), m.Size, m.Row)
	}
}

func endpoint(e schedule.Endpoint) string {
	if e.Boundary {
		return "boundary"
	}
	return e.Node
}

// networkFromPath guesses the network from <network>_<word>_<batch>/<config>/<file>.
func networkFromPath(path string) string {
	dir := filepath.Base(filepath.Dir(filepath.Dir(path)))
	suffix := "_" + strconv.Itoa(cfg.Word) + "_" + strconv.Itoa(cfg.Batch)
	if name, ok := strings.CutSuffix(dir, suffix); ok && name != "" {
		return name
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
