// Package emitter renders finalized message schedules into BookSim
// "illusion" traffic configs, one per topology whose population equals the
// schedule's node count.
package emitter

import (
	"fmt"
	"math"
)

// Families is the default emission order of topology families.
var Families = []string{"torus", "mesh", "fattree"}

// DefaultRouting maps a topology family to its BookSim routing function.
var DefaultRouting = map[string]string{
	"fattree": "nca",
	"torus":   "dim_order",
	"mesh":    "dor",
}

// Variant is one (family, radix, dimension) topology with K^Dim nodes.
type Variant struct {
	Family string
	K      int
	Dim    int
}

func (v Variant) String() string {
	return fmt.Sprintf("%s k=%d n=%d", v.Family, v.K, v.Dim)
}

// Variants lists every (family, k, n) with n in [1, maxDim] and k^n == nodes,
// families in the given order and dimensions ascending within a family.
func Variants(nodes int, families []string, maxDim int) []Variant {
	var out []Variant
	for _, family := range families {
		for n := 1; n <= maxDim; n++ {
			k, ok := IntRoot(nodes, n)
			if !ok {
				continue
			}
			out = append(out, Variant{Family: family, K: k, Dim: n})
		}
	}
	return out
}

// IntRoot returns k such that k^n == x exactly.
func IntRoot(x, n int) (int, bool) {
	if x < 1 || n < 1 {
		return 0, false
	}
	guess := int(math.Round(math.Pow(float64(x), 1/float64(n))))
	for k := max(guess-1, 1); k <= guess+1; k++ {
		if p, ok := pow(k, n, x); ok && p == x {
			return k, true
		}
	}
	return 0, false
}

// pow computes k^n, stopping early once the result exceeds limit.
func pow(k, n, limit int) (int, bool) {
	p := 1
	for i := 0; i < n; i++ {
		p *= k
		if p > limit {
			return p, false
		}
	}
	return p, true
}
