package emitter

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"illusiongen/internal/config"
	"illusiongen/internal/logging"
	"illusiongen/internal/schedule"
)

// Artifact is one written config.
type Artifact struct {
	Name    string
	Path    string
	Variant Variant
	Routing string
}

// Emitter writes every topology variant of a schedule into OutputDir.
type Emitter struct {
	OutputDir string
	Families  []string
	MaxDim    int
	Workers   int
	Simulator config.SimulatorConfig
}

// New builds an Emitter from the loaded configuration.
func New(cfg *config.Config) *Emitter {
	return &Emitter{
		OutputDir: cfg.OutputDir,
		Families:  cfg.Topology.Families,
		MaxDim:    cfg.Topology.MaxDimension,
		Workers:   cfg.Topology.Workers,
		Simulator: cfg.Simulator,
	}
}

// Plan returns the artifacts Emit would write for s without touching disk.
func (e *Emitter) Plan(s *schedule.Schedule) ([]Artifact, error) {
	families := e.Families
	if len(families) == 0 {
		families = Families
	}
	variants := Variants(s.Nodes, families, e.MaxDim)
	out := make([]Artifact, 0, len(variants))
	for _, v := range variants {
		routing, err := e.routing(v.Family)
		if err != nil {
			return nil, err
		}
		name := ArtifactName(s.Scenario, v)
		out = append(out, Artifact{
			Name:    name,
			Path:    filepath.Join(e.OutputDir, name),
			Variant: v,
			Routing: routing,
		})
	}
	return out, nil
}

// Emit renders and writes one config per variant. Writes run concurrently
// up to Workers at a time; the returned slice keeps variant order.
func (e *Emitter) Emit(ctx context.Context, s *schedule.Schedule) ([]Artifact, error) {
	timer := logging.StartTimer(logging.CategoryEmit, "Emit "+s.Scenario.String())
	defer timer.Stop()

	artifacts, err := e.Plan(s)
	if err != nil {
		return nil, err
	}
	if len(artifacts) == 0 {
		logging.Emit("%s: no topology has %d nodes, nothing written", s.Scenario, s.Nodes)
		return nil, nil
	}
	if err := os.MkdirAll(e.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	sched := FormatSchedule(s.Messages)

	eg, egCtx := errgroup.WithContext(ctx)
	if e.Workers > 0 {
		eg.SetLimit(e.Workers)
	}
	for _, a := range artifacts {
		a := a
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			return e.write(a, sched)
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	logging.Emit("%s: wrote %d configs (N=%d)", s.Scenario, len(artifacts), s.Nodes)
	return artifacts, nil
}

func (e *Emitter) write(a Artifact, sched string) error {
	var buf bytes.Buffer
	err := Render(&buf, Params{
		Name:             a.Name,
		Family:           a.Variant.Family,
		K:                a.Variant.K,
		Dim:              a.Variant.Dim,
		Routing:          a.Routing,
		NumVCs:           e.Simulator.NumVCs,
		Traffic:          e.Simulator.Traffic,
		Schedule:         sched,
		LatencyThreshold: e.Simulator.LatencyThreshold,
		SimPower:         e.Simulator.SimPower,
		TechFile:         e.Simulator.TechFile,
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(a.Path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write %s: %w", a.Path, err)
	}
	logging.EmitDebug("wrote %s (%d bytes)", a.Path, buf.Len())
	return nil
}

func (e *Emitter) routing(family string) (string, error) {
	if r, ok := e.Simulator.Routing[family]; ok {
		return r, nil
	}
	if r, ok := DefaultRouting[family]; ok {
		return r, nil
	}
	return "", fmt.Errorf("no routing function for topology family %q", family)
}
