package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"illusiongen/internal/logging"
)

// LoadLayerOrder reads the canonical layer order from a reference trace.
// The header is skipped and field 1 of every other row is taken in order.
func LoadLayerOrder(path string, scenario Scenario) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open layer order %s: %w", path, err)
	}
	defer f.Close()

	var layers []string
	err = scanRows(f, func(row int, fields []string) error {
		if len(fields) < 2 {
			return &TraceFormatError{Scenario: scenario, File: path, Row: row, Want: 2, Fields: len(fields)}
		}
		layers = append(layers, fields[1])
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.TraceDebug("layer order %s: %d layers", path, len(layers))
	return layers, nil
}

// ReadTrace loads every row of a per-scenario trace file in file order.
func ReadTrace(path string, scenario Scenario) ([]LayerRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace %s: %w", path, err)
	}
	defer f.Close()

	records, err := ParseTrace(f, path, scenario)
	if err != nil {
		return nil, err
	}
	logging.TraceDebug("trace %s: %d rows", path, len(records))
	return records, nil
}

// ParseTrace parses trace rows from r. file is only used to label records
// and errors.
func ParseTrace(r io.Reader, file string, scenario Scenario) ([]LayerRecord, error) {
	var records []LayerRecord
	err := scanRows(r, func(row int, fields []string) error {
		if len(fields) != FieldCount {
			return &TraceFormatError{Scenario: scenario, File: file, Row: row, Want: FieldCount, Fields: len(fields)}
		}
		rec := LayerRecord{
			Node:  fields[0],
			Layer: fields[1],
			Order: fields[2],
			File:  file,
			Row:   row,
		}
		sizes := []struct {
			name string
			dst  *int64
		}{
			{"ifmap", &rec.Ifmap},
			{"ofmap", &rec.Ofmap},
			{"fmap", &rec.Fmap},
		}
		for i, s := range sizes {
			raw := strings.TrimSpace(fields[3+i])
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return &TraceFormatError{
					Scenario: scenario, File: file, Row: row,
					Want: FieldCount, Fields: len(fields), Field: s.name, Value: raw,
				}
			}
			*s.dst = v
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// scanRows calls fn for every line after the header, with the line split
// on commas. Fields are not unquoted. Trailing blank lines are dropped; a
// blank line followed by more data reaches fn with no fields.
func scanRows(r io.Reader, fn func(row int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	row := -1
	blank := -1 // first blank row since the last data row
	for scanner.Scan() {
		row++
		if row == 0 {
			continue
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			if blank < 0 {
				blank = row
			}
			continue
		}
		if blank >= 0 {
			if err := fn(blank, nil); err != nil {
				return err
			}
			blank = -1
		}
		if err := fn(row, strings.Split(line, ",")); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan rows: %w", err)
	}
	return nil
}
