package schedule

import (
	"errors"
	"strings"
)

// Order is the canonical layer order of a network.
type Order struct {
	layers []string
	index  map[string]int
}

// NewOrder indexes a canonical layer list. Duplicate names keep their first
// position.
func NewOrder(layers []string) (*Order, error) {
	if len(layers) == 0 {
		return nil, errors.New("canonical layer order is empty")
	}
	o := &Order{
		layers: append([]string(nil), layers...),
		index:  make(map[string]int, len(layers)),
	}
	for i, l := range layers {
		if _, ok := o.index[l]; !ok {
			o.index[l] = i
		}
	}
	return o, nil
}

// First returns the first canonical layer.
func (o *Order) First() string { return o.layers[0] }

// Last returns the last canonical layer.
func (o *Order) Last() string { return o.layers[len(o.layers)-1] }

// Len returns the number of canonical layers.
func (o *Order) Len() int { return len(o.layers) }

// Index resolves a short layer name to its canonical position. A name that
// is not listed is retried without a trailing _i/_o marker.
func (o *Order) Index(short string) (int, bool) {
	if i, ok := o.index[short]; ok {
		return i, true
	}
	for _, marker := range []string{"_o", "_i"} {
		if trimmed, ok := strings.CutSuffix(short, marker); ok {
			if i, ok := o.index[trimmed]; ok {
				return i, true
			}
		}
	}
	return -1, false
}
