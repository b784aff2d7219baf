package schedule

import (
	"fmt"

	"illusiongen/internal/logging"
	"illusiongen/internal/trace"
)

// Output is the slice of a layer's output held by one node.
type Output struct {
	Node string
	Size int64
}

// State is the scan state carried from one trace row to the next.
type State struct {
	Started        bool
	LastNode       string
	LastLayer      string
	LastLayerShort string

	// PrevKind is the partition kind of the layer before the one in progress.
	PrevKind PartitionKind
	// Pending holds the output slices of that layer when it was output
	// partitioned; every chip of the next layer fans in from all of them.
	Pending []Output
	// Current accumulates the output slices of the layer in progress.
	Current []Output
}

// Raw is the symbolic schedule of one trace before normalization.
type Raw struct {
	Scenario trace.Scenario
	File     string
	Messages []Message
	LastNode string
	LastRow  int
}

// Build walks the rows of one trace in order and returns its messages.
func Build(scenario trace.Scenario, order *Order, records []trace.LayerRecord) (*Raw, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", scenario, ErrEmptyTrace)
	}

	raw := &Raw{Scenario: scenario, File: records[0].File}
	var st State
	for i, rec := range records {
		msgs, next, err := Step(st, order, scenario, rec, i == len(records)-1)
		if err != nil {
			return nil, err
		}
		raw.Messages = append(raw.Messages, msgs...)
		st = next
	}

	last := records[len(records)-1]
	raw.LastNode = last.Node
	raw.LastRow = last.Row
	logging.ScheduleDebug("%s: %d rows -> %d messages", scenario, len(records), len(raw.Messages))
	return raw, nil
}

// Step consumes one row. final marks the last row of the trace. It returns
// the messages the row emits and the state for the next row; st itself is
// not modified.
func Step(st State, order *Order, scenario trace.Scenario, rec trace.LayerRecord, final bool) ([]Message, State, error) {
	short := ShortName(rec.Layer)
	idx, ok := order.Index(short)
	if !ok {
		return nil, st, &UnknownLayerError{Scenario: scenario, File: rec.File, Row: rec.Row, Layer: short}
	}
	if st.Started {
		lastIdx, _ := order.Index(st.LastLayerShort)
		if idx != lastIdx && idx != lastIdx+1 {
			return nil, st, &OutOfOrderError{
				Scenario: scenario, File: rec.File, Row: rec.Row,
				Layer: short, Index: idx,
				LastLayer: st.LastLayerShort, LastIndex: lastIdx,
			}
		}
	}

	kind := KindOf(rec.Layer)
	node := At(rec.Node)
	from := Outside
	if st.Started {
		from = At(st.LastNode)
	}
	single := func() []Message {
		return []Message{{Src: from, Dst: node, Size: rec.Ifmap, Row: rec.Row}}
	}
	fanIn := func(pending []Output) []Message {
		msgs := make([]Message, 0, len(pending))
		for _, p := range pending {
			msgs = append(msgs, Message{Src: At(p.Node), Dst: node, Size: p.Size, Row: rec.Row})
		}
		return msgs
	}
	slice := Output{Node: rec.Node, Size: rec.Ofmap}

	var msgs []Message
	switch {
	case short == order.First():
		// first-layer rows only enter from outside; they never take part
		// in fan-in
		msgs = []Message{{Src: Outside, Dst: node, Size: rec.Ifmap, Row: rec.Row}}

	case rec.Node != st.LastNode || kind != PartitionOther:
		if st.Started && short == st.LastLayerShort {
			if kind == PartitionOutput {
				if st.PrevKind == PartitionOutput {
					msgs = fanIn(st.Pending)
				} else {
					msgs = single()
				}
				st.Current = appendOutput(st.Current, slice)
			} else {
				msgs = single()
			}
			break
		}

		// layer boundary
		finished := PartitionOther
		if st.Started {
			finished = KindOf(st.LastLayer)
		}
		st.PrevKind = finished
		st.Pending = st.Current
		st.Current = nil
		if kind == PartitionOutput {
			st.Current = []Output{slice}
		}
		if finished == PartitionOutput {
			msgs = fanIn(st.Pending)
		} else {
			msgs = single()
		}
	}

	if (short == order.Last() && kind == PartitionOutput) || final {
		msgs = append(msgs, Message{Src: node, Dst: Outside, Size: rec.Ofmap, Row: rec.Row})
	}

	st.Started = true
	st.LastNode = rec.Node
	st.LastLayer = rec.Layer
	st.LastLayerShort = short
	return msgs, st, nil
}

// appendOutput appends without writing into a backing array another State
// value may share.
func appendOutput(outputs []Output, o Output) []Output {
	return append(outputs[:len(outputs):len(outputs)], o)
}
