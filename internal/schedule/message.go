// Package schedule turns an ordered per-node layer trace into the
// point-to-point message schedule it implies, and normalizes that schedule
// into the integer node ids a BookSim "illusion" traffic pattern expects.
package schedule

import (
	"fmt"
	"strings"
)

// Endpoint is the source or destination of a message: a node label, or the
// boundary of the chip array (traffic entering from or leaving to outside).
type Endpoint struct {
	Node     string
	Boundary bool
}

// Outside is the virtual boundary endpoint.
var Outside = Endpoint{Boundary: true}

// At returns the endpoint for a node label.
func At(node string) Endpoint {
	return Endpoint{Node: node}
}

func (e Endpoint) String() string {
	if e.Boundary {
		return "boundary"
	}
	return e.Node
}

// Message is one symbolic transfer of Size bytes. Row is the trace row the
// message was derived from.
type Message struct {
	Src  Endpoint
	Dst  Endpoint
	Size int64
	Row  int
}

func (m Message) String() string {
	return fmt.Sprintf("(%s,%s,%d)", m.Src, m.Dst, m.Size)
}

// PartitionKind says how a layer slice was partitioned across chips.
type PartitionKind int

const (
	PartitionOther PartitionKind = iota
	PartitionInput
	PartitionOutput
)

func (k PartitionKind) String() string {
	switch k {
	case PartitionInput:
		return "input"
	case PartitionOutput:
		return "output"
	default:
		return "other"
	}
}

// KindOf classifies a layer label. The output marker wins when both appear.
func KindOf(layer string) PartitionKind {
	switch {
	case strings.Contains(layer, "_o"):
		return PartitionOutput
	case strings.Contains(layer, "_i"):
		return PartitionInput
	default:
		return PartitionOther
	}
}

// ShortName strips the _part_<N> suffix (and anything after it) from a
// layer label.
func ShortName(layer string) string {
	short, _, _ := strings.Cut(layer, "_part_")
	return short
}
