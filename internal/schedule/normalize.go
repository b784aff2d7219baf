package schedule

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"

	"illusiongen/internal/logging"
	"illusiongen/internal/trace"
)

// DefaultLinkWidth is the flit width in bytes of a 128-bit network link.
const DefaultLinkWidth = 16

// MaxNodeNumber bounds node label suffixes, and with them the id space a
// schedule allocates.
const MaxNodeNumber = 1 << 20

// Link is a normalized message between zero-based node ids.
type Link struct {
	Src  int
	Dst  int
	Size int64
}

// Schedule is the finalized message schedule of one scenario. Every id in
// [0, Nodes) appears in at least one message.
type Schedule struct {
	Scenario  trace.Scenario
	File      string
	Nodes     int
	Messages  []Link
	KeepAlive int // number of zero-size messages added for idle nodes
}

// BoundaryID is the id the chip-array boundary is mapped to.
func (s *Schedule) BoundaryID() int {
	return s.Nodes - 1
}

// NextPowerOfTwo returns the smallest power of two >= x, and 1 for x <= 1.
func NextPowerOfTwo(x int) int {
	if x <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(x-1))
}

// NodeNumber parses the 1-based number after the last underscore of a node
// label such as node_12.
func NodeNumber(label string) (int, error) {
	i := strings.LastIndexByte(label, '_')
	if i < 0 || i == len(label)-1 {
		return 0, errors.New("no numeric suffix")
	}
	n, err := strconv.Atoi(label[i+1:])
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("node number %d is not positive", n)
	}
	if n > MaxNodeNumber {
		return 0, fmt.Errorf("node number %d exceeds %d", n, MaxNodeNumber)
	}
	return n, nil
}

// Normalize maps labels to ids, rounds the node count up to a power of two,
// maps the boundary to the last id, rescales sizes to linkWidth units and
// adds a zero-size message for every id no message touches.
func Normalize(raw *Raw, linkWidth int64) (*Schedule, error) {
	if linkWidth <= 0 {
		return nil, fmt.Errorf("link width must be positive, got %d", linkWidth)
	}

	malformed := func(label string, row int, err error) error {
		return &MalformedNodeLabelError{Scenario: raw.Scenario, File: raw.File, Row: row, Label: label, Err: err}
	}

	highest, err := NodeNumber(raw.LastNode)
	if err != nil {
		return nil, malformed(raw.LastNode, raw.LastRow, err)
	}

	// Resolve every label first so the node count covers all of them.
	numbers := make(map[string]int)
	for _, m := range raw.Messages {
		for _, e := range []Endpoint{m.Src, m.Dst} {
			if e.Boundary {
				continue
			}
			if _, ok := numbers[e.Node]; ok {
				continue
			}
			n, err := NodeNumber(e.Node)
			if err != nil {
				return nil, malformed(e.Node, m.Row, err)
			}
			numbers[e.Node] = n
			highest = max(highest, n)
		}
	}

	nodes := NextPowerOfTwo(highest)
	id := func(e Endpoint) int {
		if e.Boundary {
			return nodes - 1
		}
		return numbers[e.Node] - 1
	}

	s := &Schedule{
		Scenario: raw.Scenario,
		File:     raw.File,
		Nodes:    nodes,
		Messages: make([]Link, 0, len(raw.Messages)+nodes),
	}
	seen := make([]bool, nodes)
	for _, m := range raw.Messages {
		l := Link{Src: id(m.Src), Dst: id(m.Dst), Size: floorDiv(m.Size, linkWidth)}
		seen[l.Src] = true
		seen[l.Dst] = true
		s.Messages = append(s.Messages, l)
	}
	for i, ok := range seen {
		if !ok {
			s.Messages = append(s.Messages, Link{Src: i, Dst: nodes - 1, Size: 0})
			s.KeepAlive++
		}
	}

	logging.Normalize("%s: %d nodes, %d messages (%d keep-alive)", raw.Scenario, nodes, len(s.Messages), s.KeepAlive)
	return s, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
