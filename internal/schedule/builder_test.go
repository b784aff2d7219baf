package schedule

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"illusiongen/internal/trace"
)

var testScenario = trace.Scenario{Network: "alex_net", Word: 16, Batch: 1, Config: 0.5}

var ignoreRow = cmpopts.IgnoreFields(Message{}, "Row")

func parseRows(t *testing.T, rows ...string) []trace.LayerRecord {
	t.Helper()
	body := "node,layer,order,ifmap,ofmap,fmap\n" + strings.Join(rows, "\n") + "\n"
	recs, err := trace.ParseTrace(strings.NewReader(body), "test.csv", testScenario)
	require.NoError(t, err)
	return recs
}

func mustOrder(t *testing.T, layers ...string) *Order {
	t.Helper()
	o, err := NewOrder(layers)
	require.NoError(t, err)
	return o
}

func msg(src, dst string, size int64) Message {
	ep := func(s string) Endpoint {
		if s == "B" {
			return Outside
		}
		return At(s)
	}
	return Message{Src: ep(src), Dst: ep(dst), Size: size}
}

func TestBuild_ThreeRowExample(t *testing.T) {
	recs := parseRows(t,
		"node_1,L0,0,100,100,1",
		"node_2,L0_o,1,0,50,1",
		"node_3,L1_i,2,50,60,1",
	)
	raw, err := Build(testScenario, mustOrder(t, "L0", "L1"), recs)
	require.NoError(t, err)

	want := []Message{
		msg("B", "node_1", 100),
		msg("node_1", "node_2", 0),
		msg("node_2", "node_3", 50),
		msg("node_3", "B", 60),
	}
	if diff := cmp.Diff(want, raw.Messages, ignoreRow); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "node_3", raw.LastNode)
	assert.Equal(t, 3, raw.LastRow)
	assert.Equal(t, []int{1, 2, 3, 3}, []int{raw.Messages[0].Row, raw.Messages[1].Row, raw.Messages[2].Row, raw.Messages[3].Row})
}

func TestStep_FanOutFromOutputPartitionedLayer(t *testing.T) {
	order := mustOrder(t, "conv1", "conv2", "conv3")
	st := State{
		Started:        true,
		LastNode:       "node_2",
		LastLayer:      "conv2_part_1_o",
		LastLayerShort: "conv2",
		Current:        []Output{{Node: "node_1", Size: 10}, {Node: "node_2", Size: 20}},
	}
	rec := trace.LayerRecord{Node: "node_3", Layer: "conv3", Ifmap: 99, Ofmap: 7, Row: 9}

	msgs, next, err := Step(st, order, testScenario, rec, false)
	require.NoError(t, err)

	want := []Message{msg("node_1", "node_3", 10), msg("node_2", "node_3", 20)}
	if diff := cmp.Diff(want, msgs, ignoreRow); diff != "" {
		t.Errorf("fan-out mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, PartitionOutput, next.PrevKind)
	assert.Len(t, next.Pending, 2)
	assert.Empty(t, next.Current)
	// the input state is untouched
	assert.Len(t, st.Current, 2)
	assert.Equal(t, "node_2", st.LastNode)
}

func TestBuild_OutputPartitionedChain(t *testing.T) {
	// conv2 is output partitioned over node_2 and node_3, conv3 over node_4
	// and node_5; every conv3 chip receives every conv2 slice.
	recs := parseRows(t,
		"node_1,conv1,0,100,80,1",
		"node_2,conv2_part_0_o,1,80,30,1",
		"node_3,conv2_part_1_o,2,80,40,1",
		"node_4,conv3_part_0_o,3,70,5,1",
		"node_5,conv3_part_1_o,4,70,6,1",
	)
	raw, err := Build(testScenario, mustOrder(t, "conv1", "conv2", "conv3"), recs)
	require.NoError(t, err)

	want := []Message{
		msg("B", "node_1", 100),
		msg("node_1", "node_2", 80),
		msg("node_2", "node_3", 80),
		msg("node_2", "node_4", 30),
		msg("node_3", "node_4", 40),
		msg("node_4", "B", 5),
		msg("node_2", "node_5", 30),
		msg("node_3", "node_5", 40),
		msg("node_5", "B", 6),
	}
	if diff := cmp.Diff(want, raw.Messages, ignoreRow); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_FirstLayerOutputPartitionHasNoFanIn(t *testing.T) {
	recs := parseRows(t,
		"node_1,conv1_part_0_o,0,100,11,1",
		"node_2,conv1_part_1_o,1,100,12,1",
		"node_3,fc,2,23,4,1",
	)
	raw, err := Build(testScenario, mustOrder(t, "conv1", "fc"), recs)
	require.NoError(t, err)

	// first-layer slices are never recorded as outputs, so the boundary
	// into fc has nothing to fan in from
	want := []Message{
		msg("B", "node_1", 100),
		msg("B", "node_2", 100),
		msg("node_3", "B", 4),
	}
	if diff := cmp.Diff(want, raw.Messages, ignoreRow); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_EmptyPendingOutputsEmitNothing(t *testing.T) {
	recs := parseRows(t,
		"node_1,conv1_part_0_o,0,100,11,1",
		"node_2,conv1_part_1_o,1,100,12,1",
		"node_3,conv2_part_0_o,2,23,30,1",
		"node_4,conv2_part_1_o,3,23,40,1",
		"node_5,fc,4,70,5,1",
	)
	raw, err := Build(testScenario, mustOrder(t, "conv1", "conv2", "fc"), recs)
	require.NoError(t, err)

	want := []Message{
		msg("B", "node_1", 100),
		msg("B", "node_2", 100),
		msg("node_3", "node_5", 30),
		msg("node_4", "node_5", 40),
		msg("node_5", "B", 5),
	}
	if diff := cmp.Diff(want, raw.Messages, ignoreRow); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_SameNodeContinuationEmitsNothing(t *testing.T) {
	recs := parseRows(t,
		"node_1,conv1,0,100,80,1",
		"node_1,conv2,1,80,60,1",
		"node_2,fc,2,60,10,1",
	)
	raw, err := Build(testScenario, mustOrder(t, "conv1", "conv2", "fc"), recs)
	require.NoError(t, err)

	want := []Message{
		msg("B", "node_1", 100),
		msg("node_1", "node_2", 60),
		msg("node_2", "B", 10),
	}
	if diff := cmp.Diff(want, raw.Messages, ignoreRow); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_InputPartitionOnSameNodeIsAHop(t *testing.T) {
	recs := parseRows(t,
		"node_1,conv1,0,100,80,1",
		"node_2,conv2_part_0_i,1,40,60,1",
		"node_2,conv2_part_1_i,2,40,60,1",
	)
	raw, err := Build(testScenario, mustOrder(t, "conv1", "conv2"), recs)
	require.NoError(t, err)

	want := []Message{
		msg("B", "node_1", 100),
		msg("node_1", "node_2", 40),
		msg("node_2", "node_2", 40),
		msg("node_2", "B", 60),
	}
	if diff := cmp.Diff(want, raw.Messages, ignoreRow); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_LastLayerOutputPartitionExitsPerSlice(t *testing.T) {
	recs := parseRows(t,
		"node_1,conv1,0,100,80,1",
		"node_2,fc_part_0_o,1,80,3,1",
		"node_3,fc_part_1_o,2,80,4,1",
	)
	raw, err := Build(testScenario, mustOrder(t, "conv1", "fc"), recs)
	require.NoError(t, err)

	want := []Message{
		msg("B", "node_1", 100),
		msg("node_1", "node_2", 80),
		msg("node_2", "B", 3),
		msg("node_2", "node_3", 80),
		msg("node_3", "B", 4),
	}
	if diff := cmp.Diff(want, raw.Messages, ignoreRow); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_BoundaryCountsMatchEntryAndExitPoints(t *testing.T) {
	recs := parseRows(t,
		"node_1,conv1_part_0_o,0,100,11,1",
		"node_2,conv1_part_1_o,1,100,12,1",
		"node_3,conv2,2,23,9,1",
		"node_4,fc_part_0_o,3,9,1,1",
		"node_5,fc_part_1_o,4,9,2,1",
	)
	raw, err := Build(testScenario, mustOrder(t, "conv1", "conv2", "fc"), recs)
	require.NoError(t, err)

	var in, out int
	for _, m := range raw.Messages {
		if m.Src.Boundary {
			in++
		}
		if m.Dst.Boundary {
			out++
		}
	}
	assert.Equal(t, 2, in, "entries into conv1")
	assert.Equal(t, 2, out, "exits from fc")
}

func TestBuild_Idempotent(t *testing.T) {
	recs := parseRows(t,
		"node_1,conv1,0,100,80,1",
		"node_2,conv2_part_0_o,1,80,30,1",
		"node_3,conv2_part_1_o,2,80,40,1",
		"node_4,fc,3,70,5,1",
	)
	order := mustOrder(t, "conv1", "conv2", "fc")
	first, err := Build(testScenario, order, recs)
	require.NoError(t, err)
	second, err := Build(testScenario, order, recs)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("rebuild differs (-first +second):\n%s", diff)
	}
}

func TestBuild_OutOfOrder(t *testing.T) {
	tests := []struct {
		name string
		rows []string
		idx  int
		last int
	}{
		{
			name: "skips forward",
			rows: []string{"node_1,conv1,0,1,1,1", "node_2,fc,1,1,1,1"},
			idx:  2, last: 0,
		},
		{
			name: "goes backward",
			rows: []string{"node_1,conv1,0,1,1,1", "node_2,conv2,1,1,1,1", "node_3,conv1,2,1,1,1"},
			idx:  0, last: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(testScenario, mustOrder(t, "conv1", "conv2", "fc"), parseRows(t, tt.rows...))
			var ooo *OutOfOrderError
			require.True(t, errors.As(err, &ooo), "got %v", err)
			assert.Equal(t, tt.idx, ooo.Index)
			assert.Equal(t, tt.last, ooo.LastIndex)
			assert.Equal(t, testScenario, ooo.Scenario)
			assert.Equal(t, len(tt.rows), ooo.Row)
			assert.True(t, RunFatal(err))
		})
	}
}

func TestBuild_UnknownLayer(t *testing.T) {
	_, err := Build(testScenario, mustOrder(t, "conv1"), parseRows(t, "node_1,conv1,0,1,1,1", "node_2,pool9,1,1,1,1"))
	var unknown *UnknownLayerError
	require.True(t, errors.As(err, &unknown), "got %v", err)
	assert.Equal(t, "pool9", unknown.Layer)
	assert.Equal(t, 2, unknown.Row)
	assert.True(t, RunFatal(err))
}

func TestBuild_Empty(t *testing.T) {
	_, err := Build(testScenario, mustOrder(t, "conv1"), nil)
	assert.ErrorIs(t, err, ErrEmptyTrace)
	assert.False(t, RunFatal(err))
}

func TestKindOfAndShortName(t *testing.T) {
	tests := []struct {
		layer string
		kind  PartitionKind
		short string
	}{
		{"conv1", PartitionOther, "conv1"},
		{"conv1_part_3_o", PartitionOutput, "conv1"},
		{"conv1_part_3_i", PartitionInput, "conv1"},
		{"L0_o", PartitionOutput, "L0_o"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOf(tt.layer), tt.layer)
		assert.Equal(t, tt.short, ShortName(tt.layer), tt.layer)
	}
}

func TestOrderIndexFallsBackToUnmarkedName(t *testing.T) {
	o := mustOrder(t, "L0", "L1", "L0")
	i, ok := o.Index("L1_i")
	assert.True(t, ok)
	assert.Equal(t, 1, i)
	i, ok = o.Index("L0")
	assert.True(t, ok)
	assert.Equal(t, 0, i, "duplicates keep their first position")
	_, ok = o.Index("L2")
	assert.False(t, ok)

	_, err := NewOrder(nil)
	assert.Error(t, err)
}
