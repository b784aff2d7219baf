package trace

import "fmt"

// TraceFormatError reports a trace row that cannot be parsed. It aborts the
// scenario the row belongs to.
type TraceFormatError struct {
	Scenario Scenario
	File     string
	Row      int
	Want     int    // required field count
	Fields   int    // field count found
	Field    string // offending field, empty when the field count is wrong
	Value    string
}

func (e *TraceFormatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("trace format error in %s (%s) row %d: field %s=%q is not an integer",
			e.Scenario, e.File, e.Row, e.Field, e.Value)
	}
	return fmt.Sprintf("trace format error in %s (%s) row %d: expected %d fields, got %d",
		e.Scenario, e.File, e.Row, e.Want, e.Fields)
}
