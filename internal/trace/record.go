// Package trace reads the per-node layer traces produced by a network
// partitioning run and the canonical layer order they are checked against.
//
// Traces live under <root>/<network>_<word>_<batch>/<config>/ as CSV files
// with the fixed column layout node,layer,order,ifmap,ofmap,fmap.
package trace

import (
	"fmt"
	"strconv"
)

// FieldCount is the number of comma-separated fields in a trace row.
const FieldCount = 6

// LayerRecord is one row of a trace: the work a single node did for one layer.
type LayerRecord struct {
	Node  string // node label, e.g. node_3
	Layer string // layer label, may carry _part_<N> and an _i/_o marker
	Order string
	Ifmap int64
	Ofmap int64
	Fmap  int64

	File string // source file
	Row  int    // line index in File; the header is row 0
}

// Scenario identifies one (network, word width, batch, scaling config)
// combination. It is the key schedules and artifacts are stored under.
type Scenario struct {
	Network string  `json:"network" yaml:"network"`
	Word    int     `json:"word" yaml:"word"`
	Batch   int     `json:"batch" yaml:"batch"`
	Config  float64 `json:"config" yaml:"config"`
}

// Name returns the network directory name, <network>_<word>_<batch>.
func (s Scenario) Name() string {
	return NetworkName(s.Network, s.Word, s.Batch)
}

// ConfigLabel renders the scaling config the way config directories are
// named: shortest decimal form, so 1 is "1" and 0.25 is "0.25".
func (s Scenario) ConfigLabel() string {
	return FormatConfig(s.Config)
}

func (s Scenario) String() string {
	return fmt.Sprintf("%s/%s", s.Name(), s.ConfigLabel())
}

// NetworkName joins a network with its word width and batch size.
func NetworkName(network string, word, batch int) string {
	return fmt.Sprintf("%s_%d_%d", network, word, batch)
}

// FormatConfig renders a scaling config in shortest decimal form.
func FormatConfig(config float64) string {
	return strconv.FormatFloat(config, 'f', -1, 64)
}
