package trace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"illusiongen/internal/logging"
)

// Layout locates traces under a schedule root.
type Layout struct {
	Root            string
	ReferenceConfig string // config directory holding the reference trace
	ReferenceSuffix string // appended to the network name to form its file name
}

// NetworkDir returns <root>/<network>_<word>_<batch>.
func (l Layout) NetworkDir(network string, word, batch int) string {
	return filepath.Join(l.Root, NetworkName(network, word, batch))
}

// ReferencePath returns the trace the canonical layer order is read from.
func (l Layout) ReferencePath(network string, word, batch int) string {
	return filepath.Join(l.NetworkDir(network, word, batch), l.ReferenceConfig, network+l.ReferenceSuffix)
}

// ConfigDir returns the directory holding the traces of one scenario.
func (l Layout) ConfigDir(s Scenario) string {
	return filepath.Join(l.NetworkDir(s.Network, s.Word, s.Batch), s.ConfigLabel())
}

// Source is the set of trace files found for one scenario.
type Source struct {
	Scenario Scenario
	Dir      string
	Files    []string // lexical walk order
}

// Discover finds the trace files of every config of a network. A missing
// config directory yields a Source with no files.
func (l Layout) Discover(network string, word, batch int, configs []float64) ([]Source, error) {
	sources := make([]Source, 0, len(configs))
	for _, cfg := range configs {
		s := Scenario{Network: network, Word: word, Batch: batch, Config: cfg}
		dir := l.ConfigDir(s)
		files, err := findTraces(dir)
		if err != nil {
			return nil, fmt.Errorf("discover %s: %w", s, err)
		}
		if len(files) == 0 {
			logging.TraceWarn("no traces for %s in %s", s, dir)
		} else {
			logging.Trace("%s: %d trace files", s, len(files))
		}
		sources = append(sources, Source{Scenario: s, Dir: dir, Files: files})
	}
	return sources, nil
}

func findTraces(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(d.Name(), "csv") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
