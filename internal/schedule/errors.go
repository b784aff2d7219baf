package schedule

import (
	"errors"
	"fmt"

	"illusiongen/internal/trace"
)

// ErrEmptyTrace is returned when a trace has no data rows.
var ErrEmptyTrace = errors.New("trace has no rows")

// OutOfOrderError reports a row whose layer is neither the previous row's
// layer nor the next one in canonical order. It means the trace is corrupt
// and aborts the whole run.
type OutOfOrderError struct {
	Scenario  trace.Scenario
	File      string
	Row       int
	Layer     string
	Index     int
	LastLayer string
	LastIndex int
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("mapping out of order in %s (%s) row %d: layer %s is at %d, previous %s at %d",
		e.Scenario, e.File, e.Row, e.Layer, e.Index, e.LastLayer, e.LastIndex)
}

// UnknownLayerError reports a row whose layer is missing from the canonical
// order. Like OutOfOrderError it aborts the whole run.
type UnknownLayerError struct {
	Scenario trace.Scenario
	File     string
	Row      int
	Layer    string
}

func (e *UnknownLayerError) Error() string {
	return fmt.Sprintf("unknown layer in %s (%s) row %d: %s is not in the canonical order",
		e.Scenario, e.File, e.Row, e.Layer)
}

// MalformedNodeLabelError reports a node label without a usable numeric
// suffix. It aborts the scenario.
type MalformedNodeLabelError struct {
	Scenario trace.Scenario
	File     string
	Row      int
	Label    string
	Err      error
}

func (e *MalformedNodeLabelError) Error() string {
	msg := fmt.Sprintf("malformed node label in %s (%s) row %d: %q", e.Scenario, e.File, e.Row, e.Label)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedNodeLabelError) Unwrap() error { return e.Err }

// RunFatal reports whether err must stop the whole run rather than only the
// scenario it came from.
func RunFatal(err error) bool {
	var ooo *OutOfOrderError
	var unknown *UnknownLayerError
	return errors.As(err, &ooo) || errors.As(err, &unknown)
}
