package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"illusiongen/internal/config"
)

const traceHeader = "node,layer,order,ifmap,ofmap,fmap\n"

// workspace lays out one network with a reference trace and a config-1 trace
// and writes a config file pointing at it.
func workspace(t *testing.T) (cfgFile, traces, out string) {
	t.Helper()
	dir := t.TempDir()
	traces = filepath.Join(dir, "traces")
	out = filepath.Join(dir, "out")

	write := func(rel, body string) {
		path := filepath.Join(traces, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(traceHeader+body), 0644))
	}
	write("alex_net_16_1/2048/alex_net_2048.0_mp.csv", "node_1,L0,0,100,100,1\nnode_2,L1,1,100,50,1\n")
	write("alex_net_16_1/1/alex_net_1.0_mp.csv",
		"node_1,L0,0,100,100,1\nnode_2,L0_o,1,0,50,1\nnode_3,L1_i,2,50,60,1\n")

	c := config.DefaultConfig()
	c.ScheduleDir = traces
	c.OutputDir = out
	c.Networks = []string{"alex_net"}
	c.Configs = []float64{1, 2048}
	c.Logging.Level = "error"
	cfgFile = filepath.Join(dir, "illusiongen.yaml")
	require.NoError(t, c.Save(cfgFile))
	return cfgFile, traces, out
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// flag variables outlive a single Execute
	verbose, scheduleDir, outputDir = false, "", ""
	noCatalog, showRaw, forceInit = false, false, false
	scheduleNet, scheduleConfig = "", 0
	filterNetwork, filterTopology, filterRun, artifactLimit = "", "", "", 0

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestGenerateCmd(t *testing.T) {
	cfgFile, _, out := workspace(t)

	output, err := execute(t, "generate", "-c", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, output, "alex_net_16_1/1")
	assert.Contains(t, output, "2 schedules, 9 configs, 0 failures")

	_, err = os.Stat(filepath.Join(out, "alex_net_16_1_1_mesh_2_2"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(out, "catalog.db"))
	assert.NoError(t, err)

	output, err = execute(t, "catalog", "artifacts", "-c", cfgFile, "--topology", "fattree")
	require.NoError(t, err)
	assert.Contains(t, output, "3 configs")
	assert.Contains(t, output, "alex_net_16_1_1_fattree_4_1")

	output, err = execute(t, "catalog", "runs", "-c", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, output, "ok")
}

func TestGenerateCmd_NoCatalogAndOutputOverride(t *testing.T) {
	cfgFile, _, _ := workspace(t)
	override := filepath.Join(t.TempDir(), "elsewhere")

	_, err := execute(t, "generate", "alex_net", "-c", cfgFile, "--no-catalog", "--output-dir", override)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(override, "alex_net_16_1_2048_torus_2_1"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(override, "catalog.db"))
	assert.True(t, os.IsNotExist(err))
}

func TestGenerateCmd_ReportsFailures(t *testing.T) {
	cfgFile, traces, _ := workspace(t)
	require.NoError(t, os.WriteFile(filepath.Join(traces, "alex_net_16_1", "1", "alex_net_1.0_mp.csv"),
		[]byte(traceHeader+"node_1,L0,0\n"), 0644))

	output, err := execute(t, "generate", "-c", cfgFile, "--no-catalog")
	require.Error(t, err)
	assert.Contains(t, output, "Failures")
	assert.Contains(t, output, "1 schedules, 3 configs, 1 failures")
}

func TestScheduleCmd(t *testing.T) {
	cfgFile, traces, _ := workspace(t)
	tracePath := filepath.Join(traces, "alex_net_16_1", "1", "alex_net_1.0_mp.csv")
	ref := filepath.Join(traces, "alex_net_16_1", "2048", "alex_net_2048.0_mp.csv")

	output, err := execute(t, "schedule", tracePath, "-c", cfgFile, "--reference", ref)
	require.NoError(t, err)
	assert.Contains(t, output, "nodes: 4 (keep-alive 0)")
	assert.Contains(t, output, "{{3,0,6},{0,1,0},{1,2,3},{2,3,3}}")

	output, err = execute(t, "schedule", tracePath, "-c", cfgFile, "--reference", ref, "--raw")
	require.NoError(t, err)
	assert.Contains(t, output, "boundary -> node_1 100 (row 1)")
	assert.Contains(t, output, "node_3 -> boundary 60 (row 3)")
}

func TestScheduleCmd_RequiresReference(t *testing.T) {
	cfgFile, traces, _ := workspace(t)
	_, err := execute(t, "schedule", filepath.Join(traces, "x.csv"), "-c", cfgFile)
	assert.Error(t, err)
}

func TestTopologiesCmd(t *testing.T) {
	cfgFile, _, _ := workspace(t)

	output, err := execute(t, "topologies", "12", "-c", cfgFile)
	require.NoError(t, err)
	assert.Contains(t, output, "Topologies for 16 nodes")
	assert.Contains(t, output, "dim_order")
	assert.Contains(t, output, "nca")

	_, err = execute(t, "topologies", "zero", "-c", cfgFile)
	assert.Error(t, err)
}

func TestInitConfigCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "illusiongen.yaml")

	_, err := execute(t, "init-config", path, "-c", path)
	require.NoError(t, err)
	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Networks, loaded.Networks)

	_, err = execute(t, "init-config", path, "-c", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "init-config", path, "-c", path, "--force")
	assert.NoError(t, err)
}

func TestNetworkFromPath(t *testing.T) {
	cfg = config.DefaultConfig()
	assert.Equal(t, "resnet50", networkFromPath(filepath.Join("x", "resnet50_16_1", "0.5", "trace.csv")))
	assert.Equal(t, "trace", networkFromPath(filepath.Join("x", "trace.csv")))
}
