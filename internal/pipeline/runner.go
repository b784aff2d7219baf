// Package pipeline runs the trace -> schedule -> simulator config
// transformation for every configured network.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"illusiongen/internal/catalog"
	"illusiongen/internal/config"
	"illusiongen/internal/emitter"
	"illusiongen/internal/logging"
	"illusiongen/internal/schedule"
	"illusiongen/internal/trace"
)

// Failure is a scenario (or network) that produced no configs.
type Failure struct {
	Scenario trace.Scenario
	File     string
	Err      error
}

// ScenarioResult describes the schedule emitted for one scenario.
type ScenarioResult struct {
	Scenario   trace.Scenario
	File       string
	Nodes      int
	Messages   int
	KeepAlive  int
	Artifacts  []emitter.Artifact
	Superseded []string // earlier trace files of the same config directory
}

// Report summarizes a run.
type Report struct {
	RunID     string
	Networks  []string
	Scenarios []ScenarioResult
	Failures  []Failure
	Duration  time.Duration
}

// ArtifactCount returns the number of configs written.
func (r *Report) ArtifactCount() int {
	n := 0
	for _, s := range r.Scenarios {
		n += len(s.Artifacts)
	}
	return n
}

// Superseded returns every trace file that was validated but not emitted.
func (r *Report) Superseded() []string {
	var out []string
	for _, s := range r.Scenarios {
		out = append(out, s.Superseded...)
	}
	return out
}

// Runner executes generation runs.
type Runner struct {
	cfg     *config.Config
	layout  trace.Layout
	emitter *emitter.Emitter
	store   *catalog.Store // nil disables cataloging
}

// NewRunner creates a Runner. store may be nil.
func NewRunner(cfg *config.Config, store *catalog.Store) *Runner {
	return &Runner{
		cfg: cfg,
		layout: trace.Layout{
			Root:            cfg.ScheduleDir,
			ReferenceConfig: cfg.Reference.Config,
			ReferenceSuffix: cfg.Reference.Suffix,
		},
		emitter: emitter.New(cfg),
		store:   store,
	}
}

// Layout returns the trace layout the runner reads from.
func (r *Runner) Layout() trace.Layout {
	return r.layout
}

// Run processes every configured network.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	return r.RunNetworks(ctx, r.cfg.Networks)
}

// Regenerate reruns a single network.
func (r *Runner) Regenerate(ctx context.Context, network string) error {
	report, err := r.RunNetworks(ctx, []string{network})
	if report != nil {
		logging.Pipeline("%s regenerated: %d schedules, %d configs, %d failures",
			network, len(report.Scenarios), report.ArtifactCount(), len(report.Failures))
	}
	return err
}

// RunNetworks processes the given networks in order. Scenario failures are
// collected and the run continues; a run-fatal error (a corrupt trace)
// stops it. The returned error joins every failure.
func (r *Runner) RunNetworks(ctx context.Context, networks []string) (*Report, error) {
	start := time.Now()
	report := &Report{Networks: networks}

	if r.store != nil {
		id, err := r.store.BeginRun(networks)
		if err != nil {
			logging.CatalogError("begin run: %v", err)
		} else {
			report.RunID = id
		}
	}

	fatal := r.runNetworks(ctx, networks, report)
	report.Duration = time.Since(start)

	var errs []error
	for _, f := range report.Failures {
		errs = append(errs, f.Err)
	}
	if fatal != nil {
		errs = append(errs, fatal)
	}
	err := errors.Join(errs...)

	if r.store != nil && report.RunID != "" {
		status := catalog.StatusOK
		if err != nil {
			status = catalog.StatusFailed
		}
		if ferr := r.store.FinishRun(report.RunID, status); ferr != nil {
			logging.CatalogError("finish run: %v", ferr)
		}
	}

	logging.Pipeline("run finished in %v: %d schedules, %d configs, %d failures",
		report.Duration, len(report.Scenarios), report.ArtifactCount(), len(report.Failures))
	return report, err
}

func (r *Runner) runNetworks(ctx context.Context, networks []string, report *Report) error {
	for _, network := range networks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runNetwork(ctx, network, report); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runNetwork(ctx context.Context, network string, report *Report) error {
	word, batch := r.cfg.Word, r.cfg.Batch
	refPath := r.layout.ReferencePath(network, word, batch)
	refScenario := trace.Scenario{Network: network, Word: word, Batch: batch}

	layers, err := trace.LoadLayerOrder(refPath, refScenario)
	if err != nil {
		logging.PipelineError("%s: layer order: %v", network, err)
		report.Failures = append(report.Failures, Failure{Scenario: refScenario, File: refPath, Err: err})
		return nil
	}
	order, err := schedule.NewOrder(layers)
	if err != nil {
		err = fmt.Errorf("%s: %w", refPath, err)
		report.Failures = append(report.Failures, Failure{Scenario: refScenario, File: refPath, Err: err})
		return nil
	}
	logging.Pipeline("%s: %d layers, first %s, last %s", trace.NetworkName(network, word, batch),
		order.Len(), order.First(), order.Last())

	sources, err := r.layout.Discover(network, word, batch, r.cfg.Configs)
	if err != nil {
		report.Failures = append(report.Failures, Failure{Scenario: refScenario, Err: err})
		return nil
	}

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.runSource(ctx, src, order, report); err != nil {
			return err
		}
	}
	return nil
}

// runSource builds every trace file of one config directory and emits the
// lexically last one that succeeded.
func (r *Runner) runSource(ctx context.Context, src trace.Source, order *schedule.Order, report *Report) error {
	var chosen *schedule.Schedule
	var superseded []string

	for _, file := range src.Files {
		logging.PipelineDebug("%s: building %s", src.Scenario, file)
		sched, err := BuildSchedule(file, src.Scenario, order, r.cfg.LinkWidth)
		if err != nil {
			if schedule.RunFatal(err) {
				logging.PipelineError("%s: aborting run: %v", src.Scenario, err)
				return err
			}
			logging.PipelineWarn("%s: skipping %s: %v", src.Scenario, file, err)
			report.Failures = append(report.Failures, Failure{Scenario: src.Scenario, File: file, Err: err})
			continue
		}
		if chosen != nil {
			superseded = append(superseded, chosen.File)
		}
		chosen = sched
	}
	if chosen == nil {
		return nil
	}
	for _, f := range superseded {
		logging.PipelineWarn("%s: %s superseded by %s", src.Scenario, f, chosen.File)
	}

	artifacts, err := r.emitter.Emit(ctx, chosen)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report.Failures = append(report.Failures, Failure{Scenario: src.Scenario, File: chosen.File, Err: err})
		return nil
	}

	r.record(report.RunID, chosen, artifacts)

	report.Scenarios = append(report.Scenarios, ScenarioResult{
		Scenario:   src.Scenario,
		File:       chosen.File,
		Nodes:      chosen.Nodes,
		Messages:   len(chosen.Messages),
		KeepAlive:  chosen.KeepAlive,
		Artifacts:  artifacts,
		Superseded: superseded,
	})
	return nil
}

func (r *Runner) record(runID string, sched *schedule.Schedule, artifacts []emitter.Artifact) {
	if r.store == nil || runID == "" {
		return
	}
	if err := r.store.RecordSchedule(runID, sched); err != nil {
		logging.CatalogError("%v", err)
		return
	}
	if err := r.store.RecordArtifacts(runID, sched.Scenario, artifacts); err != nil {
		logging.CatalogError("%v", err)
	}
}

// BuildSchedule reads one trace file and turns it into a finalized schedule.
func BuildSchedule(path string, scenario trace.Scenario, order *schedule.Order, linkWidth int64) (*schedule.Schedule, error) {
	_, sched, err := BuildRaw(path, scenario, order, linkWidth)
	return sched, err
}

// BuildRaw is BuildSchedule that also returns the symbolic messages.
func BuildRaw(path string, scenario trace.Scenario, order *schedule.Order, linkWidth int64) (*schedule.Raw, *schedule.Schedule, error) {
	timer := logging.StartTimer(logging.CategorySchedule, "BuildSchedule "+scenario.String())
	defer timer.StopWithThreshold(time.Second)

	records, err := trace.ReadTrace(path, scenario)
	if err != nil {
		return nil, nil, err
	}
	raw, err := schedule.Build(scenario, order, records)
	if err != nil {
		if errors.Is(err, schedule.ErrEmptyTrace) {
			err = fmt.Errorf("%s: %w", path, err)
		}
		return nil, nil, err
	}
	sched, err := schedule.Normalize(raw, linkWidth)
	if err != nil {
		return raw, nil, err
	}
	logging.Schedule("%s: %d messages over %d nodes (%d keep-alive)",
		scenario, len(sched.Messages), sched.Nodes, sched.KeepAlive)
	return raw, sched, nil
}
