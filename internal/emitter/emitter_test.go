package emitter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"illusiongen/internal/config"
	"illusiongen/internal/schedule"
	"illusiongen/internal/trace"
)

func TestVariants(t *testing.T) {
	tests := []struct {
		nodes int
		want  []Variant
	}{
		{
			nodes: 16,
			want: []Variant{
				{"torus", 16, 1}, {"torus", 4, 2}, {"torus", 2, 4},
				{"mesh", 16, 1}, {"mesh", 4, 2}, {"mesh", 2, 4},
				{"fattree", 16, 1}, {"fattree", 4, 2}, {"fattree", 2, 4},
			},
		},
		{
			nodes: 64,
			want: []Variant{
				{"torus", 64, 1}, {"torus", 8, 2}, {"torus", 4, 3},
				{"mesh", 64, 1}, {"mesh", 8, 2}, {"mesh", 4, 3},
				{"fattree", 64, 1}, {"fattree", 8, 2}, {"fattree", 4, 3},
			},
		},
		{
			nodes: 1,
			want: []Variant{
				{"torus", 1, 1}, {"torus", 1, 2}, {"torus", 1, 3}, {"torus", 1, 4},
				{"mesh", 1, 1}, {"mesh", 1, 2}, {"mesh", 1, 3}, {"mesh", 1, 4},
				{"fattree", 1, 1}, {"fattree", 1, 2}, {"fattree", 1, 3}, {"fattree", 1, 4},
			},
		},
	}
	for _, tt := range tests {
		got := Variants(tt.nodes, Families, 4)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Variants(%d) mismatch (-want +got):\n%s", tt.nodes, diff)
		}
	}
}

func TestIntRoot(t *testing.T) {
	k, ok := IntRoot(4096, 3)
	assert.True(t, ok)
	assert.Equal(t, 16, k)

	k, ok = IntRoot(4096, 4)
	assert.True(t, ok)
	assert.Equal(t, 8, k)

	_, ok = IntRoot(32, 2)
	assert.False(t, ok)
	_, ok = IntRoot(0, 2)
	assert.False(t, ok)
}

func TestFormatSchedule(t *testing.T) {
	got := FormatSchedule([]schedule.Link{{Src: 3, Dst: 0, Size: 6}, {Src: 0, Dst: 1, Size: 0}})
	assert.Equal(t, "{{3,0,6},{0,1,0}}", got)
	assert.Equal(t, "{}", FormatSchedule(nil))
}

func TestArtifactName(t *testing.T) {
	s := trace.Scenario{Network: "resnet50", Word: 16, Batch: 1, Config: 0.25}
	assert.Equal(t, "resnet50_16_1_0.25_mesh_4_2", ArtifactName(s, Variant{Family: "mesh", K: 4, Dim: 2}))
}

func TestRenderMatchesSimulatorFormat(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf, Params{
		Name:             "alex_net_16_1_1_torus_4_1",
		Family:           "torus",
		K:                4,
		Dim:              1,
		Routing:          "dim_order",
		NumVCs:           2,
		Traffic:          "illusion",
		Schedule:         "{{3,0,6},{0,1,0}}",
		LatencyThreshold: 10000,
		SimPower:         1,
		TechFile:         "../src/power/techfile.txt",
	})
	require.NoError(t, err)

	want := "topology = torus;\n" +
		"k = 4;\n" +
		"n = 1;\n" +
		"// Routing\n" +
		"routing_function = dim_order;\n" +
		"// Flow control\n" +
		"num_vcs = 2;\n" +
		"// Traffic\n" +
		"traffic = illusion;\n" +
		"traffic_schedule = {{{3,0,6},{0,1,0}}};\n" +
		"latency_thres = 10000.0;\n" +
		"//sample_period = 10000; \n" +
		"\n" +
		"sim_power=1;\n" +
		"tech_file = ../src/power/techfile.txt;\n" +
		"power_output_file = power_alex_net_16_1_1_torus_4_1.txt;\n" +
		"\n"
	assert.Equal(t, want, buf.String())
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "10000.0", formatFloat(10000))
	assert.Equal(t, "0.5", formatFloat(0.5))
}

func testSchedule() *schedule.Schedule {
	return &schedule.Schedule{
		Scenario: trace.Scenario{Network: "alex_net", Word: 16, Batch: 1, Config: 2},
		Nodes:    4,
		Messages: []schedule.Link{{Src: 3, Dst: 0, Size: 6}, {Src: 0, Dst: 1, Size: 0}, {Src: 1, Dst: 2, Size: 3}, {Src: 2, Dst: 3, Size: 3}},
	}
}

func TestEmitWritesEveryVariant(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Topology.Workers = 2

	artifacts, err := New(cfg).Emit(context.Background(), testSchedule())
	require.NoError(t, err)

	var names []string
	for _, a := range artifacts {
		names = append(names, a.Name)
	}
	want := []string{
		"alex_net_16_1_2_torus_4_1", "alex_net_16_1_2_torus_2_2",
		"alex_net_16_1_2_mesh_4_1", "alex_net_16_1_2_mesh_2_2",
		"alex_net_16_1_2_fattree_4_1", "alex_net_16_1_2_fattree_2_2",
	}
	assert.Equal(t, want, names)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "alex_net_16_1_2_fattree_2_2"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "routing_function = nca;")
	assert.Contains(t, string(data), "traffic_schedule = {{{3,0,6},{0,1,0},{1,2,3},{2,3,3}}};")
	assert.Equal(t, "nca", artifacts[4].Routing)
	assert.Equal(t, "dor", artifacts[2].Routing)
}

func TestEmitNoMatchingTopology(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.Topology.MaxDimension = 0

	artifacts, err := New(cfg).Emit(context.Background(), testSchedule())
	require.NoError(t, err)
	assert.Empty(t, artifacts)
	_, err = os.Stat(cfg.OutputDir)
	assert.True(t, os.IsNotExist(err))
}

func TestEmitUnknownFamily(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Topology.Families = []string{"dragonfly"}

	_, err := New(cfg).Emit(context.Background(), testSchedule())
	assert.ErrorContains(t, err, "dragonfly")
}

func TestEmitCancelled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.OutputDir = t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(cfg).Emit(ctx, testSchedule())
	assert.ErrorIs(t, err, context.Canceled)
}
