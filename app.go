package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/threadforge/pkg/config"
	"github.com/chazu/threadforge/pkg/engine"
	"github.com/chazu/threadforge/pkg/execute"
	"github.com/chazu/threadforge/pkg/feature"
	"github.com/chazu/threadforge/pkg/kernel/sdfx"
	"github.com/chazu/threadforge/pkg/logging"
	"github.com/chazu/threadforge/pkg/params"
	"github.com/chazu/threadforge/pkg/plan"
	"github.com/chazu/threadforge/pkg/thread"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// App ties configuration, the preset catalog, the script engine and the
// sdfx backend together. Every build runs on a fresh backend and ends with
// an STL file in the configured output directory.
type App struct {
	cfg      *config.Config
	catalog  *thread.Catalog
	params   *params.Registry
	log      *zap.Logger
	registry *prometheus.Registry
	engine   *engine.Engine
	exec     *execute.Executor
}

// Part is an STL file written by the app.
type Part struct {
	Name      string
	Path      string
	Bodies    int
	Triangles int
}

// BuildResult is the outcome of a single-thread build.
type BuildResult struct {
	Spec   thread.Spec
	Origin r3.Vec
	Plan   *plan.Plan
	Part   Part
}

// CalibrationResult is the outcome of a calibration run. Part is nil when
// no part of the batch produced geometry.
type CalibrationResult struct {
	Batch  *feature.Batch
	Report *execute.BatchReport
	Part   *Part
}

// Outcome holds whichever result the selected mode produced.
type Outcome struct {
	Build       *BuildResult
	Calibration *CalibrationResult
}

// JobResult is the outcome of one script job.
type JobResult struct {
	Index int
	Job   engine.Job
	Outcome
	Err error
}

// ScriptError reports the evaluation errors of a script.
type ScriptError struct {
	Errors []engine.EvalError
}

func (e *ScriptError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, ee := range e.Errors {
		msgs[i] = ee.Error()
	}
	return "script: " + strings.Join(msgs, "; ")
}

// NewApp creates an App from cfg. A nil logger disables logging.
func NewApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logging.OrNop(log)
	catalog, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics, err := execute.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	v := cfg.Thread
	defaults := thread.Preset{
		Name:       "default",
		Length:     v.Length,
		Major:      v.MajorDiameter,
		Minor:      v.MinorDiameter,
		Pitch:      v.Pitch,
		CutAngle:   thread.Degrees(v.CutAngle),
		NotchWidth: v.NotchWidth,
	}

	return &App{
		cfg:      cfg,
		catalog:  catalog,
		params:   params.New(catalog),
		log:      log,
		registry: reg,
		engine: engine.NewEngine(
			engine.WithCatalog(catalog),
			engine.WithDefaults(defaults),
			engine.WithLogger(log.Named("engine")),
		),
		exec: execute.New(
			execute.WithLogger(log.Named("execute")),
			execute.WithMetrics(metrics),
		),
	}, nil
}

// Catalog returns the presets available to builds and scripts.
func (a *App) Catalog() *thread.Catalog { return a.catalog }

// Params returns the parameter registry.
func (a *App) Params() *params.Registry { return a.params }

// Gatherer exposes the build metrics.
func (a *App) Gatherer() prometheus.Gatherer { return a.registry }

// Defaults returns the configured parameter values.
func (a *App) Defaults() params.Values { return a.cfg.Thread }

// Resolve validates v and, when v names a preset, copies the preset's
// dimensions into every dimension parameter for which explicit is false.
func (a *App) Resolve(v params.Values, explicit func(key string) bool) (params.Values, error) {
	if err := a.params.Validate(v); err != nil {
		return v, err
	}
	if strings.TrimSpace(v.Preset) == "" {
		return v, nil
	}
	p, err := a.catalog.Lookup(v.Preset)
	if err != nil {
		return v, err
	}
	a.params.ApplyPreset(&v, p, explicit)
	return v, nil
}

// Generate selects the mode from at: a single thread at *at, or a
// calibration batch of v.GenerationCount samples at the origin when at is
// nil.
func (a *App) Generate(v params.Values, at *r3.Vec) (*Outcome, error) {
	spec, err := v.Spec()
	if err != nil {
		return nil, err
	}
	if at != nil {
		res, err := a.Build(spec, *at)
		if err != nil {
			return nil, err
		}
		return &Outcome{Build: res}, nil
	}
	res, err := a.Calibrate(feature.BatchRequest{Base: spec, Count: v.GenerationCount, Steps: v.Steps()})
	if err != nil {
		return nil, err
	}
	return &Outcome{Calibration: res}, nil
}

// PlanFor returns the plans Generate would execute for v and at, without
// running them.
func (a *App) PlanFor(v params.Values, at *r3.Vec) ([]*plan.Plan, error) {
	spec, err := v.Spec()
	if err != nil {
		return nil, err
	}
	if at != nil {
		p, err := feature.Build(spec, *at, feature.WithBlank(), feature.WithLogger(a.log))
		if err != nil {
			return nil, err
		}
		return []*plan.Plan{p}, nil
	}
	b, err := feature.PlanBatch(feature.BatchRequest{Base: spec, Count: v.GenerationCount, Steps: v.Steps()},
		feature.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	if err := errors.Join(sampleErrors(b)...); err != nil {
		return nil, err
	}
	return b.Plans(), nil
}

// Build plans and executes one thread at origin and writes it to STL.
// Female threads are cut into a blank.
func (a *App) Build(spec thread.Spec, origin r3.Vec) (*BuildResult, error) {
	return a.build(spec, origin, partName("thread", spec))
}

func (a *App) build(spec thread.Spec, origin r3.Vec, name string) (*BuildResult, error) {
	p, err := feature.Build(spec, origin, feature.WithBlank(), feature.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	backend := a.backend()
	if _, err := a.exec.Run(p, backend); err != nil {
		return nil, err
	}
	part, err := a.export(backend, name)
	if err != nil {
		return nil, err
	}
	return &BuildResult{Spec: spec, Origin: origin, Plan: p, Part: part}, nil
}

// Calibrate plans and executes a calibration batch and writes every part
// that built to a single STL file. Failed samples are reported in the
// result, not as an error.
func (a *App) Calibrate(req feature.BatchRequest) (*CalibrationResult, error) {
	return a.calibrate(req, calibrationName(req))
}

func (a *App) calibrate(req feature.BatchRequest, name string) (*CalibrationResult, error) {
	b, err := feature.PlanBatch(req, feature.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	backend := a.backend()
	res := &CalibrationResult{Batch: b, Report: a.exec.RunBatch(b, backend)}
	if backend.Bodies() == 0 {
		return res, nil
	}
	part, err := a.export(backend, name)
	if err != nil {
		return nil, err
	}
	res.Part = &part
	return res, nil
}

// RunScript evaluates a job script and runs its jobs in order. Evaluation
// errors return a *ScriptError and nothing is built; a failing job is
// recorded in its JobResult and the remaining jobs still run.
func (a *App) RunScript(source string) ([]JobResult, error) {
	prog, evalErrs, err := a.engine.Evaluate(source)
	if err != nil {
		return nil, err
	}
	if len(evalErrs) > 0 {
		return nil, &ScriptError{Errors: evalErrs}
	}

	results := make([]JobResult, 0, len(prog.Jobs))
	for i, job := range prog.Jobs {
		jr := JobResult{Index: i, Job: job}
		switch job.Kind {
		case engine.JobThread:
			jr.Build, jr.Err = a.build(job.Spec, job.Origin,
				fmt.Sprintf("job%02d-%s", i, partName("thread", job.Spec)))
		case engine.JobCalibrate:
			req := feature.BatchRequest{Base: job.Spec, Count: job.Count, Steps: job.Steps, Origin: job.Origin}
			jr.Calibration, jr.Err = a.calibrate(req, fmt.Sprintf("job%02d-%s", i, calibrationName(req)))
		default:
			jr.Err = fmt.Errorf("unknown job kind %s", job.Kind)
		}
		if jr.Err != nil {
			a.log.Warn("script job failed", zap.Int("job", i), zap.Stringer("kind", job.Kind), zap.Error(jr.Err))
		}
		results = append(results, jr)
	}
	return results, nil
}

func (a *App) backend() *sdfx.SdfxBackend {
	return sdfx.New(sdfx.WithMeshCells(a.cfg.Render.Cells))
}

// export meshes every body on backend and writes the mesh to
// <output dir>/<name>.stl.
func (a *App) export(backend *sdfx.SdfxBackend, name string) (Part, error) {
	mesh, err := backend.ToMesh()
	if err != nil {
		return Part{}, fmt.Errorf("meshing %s: %w", name, err)
	}
	mesh.Name = name

	dir := a.cfg.Render.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Part{}, fmt.Errorf("creating output directory: %w", err)
	}
	path := filepath.Join(dir, name+".stl")
	f, err := os.Create(path)
	if err != nil {
		return Part{}, fmt.Errorf("creating %s: %w", path, err)
	}
	if err := mesh.WriteSTL(f); err != nil {
		f.Close()
		return Part{}, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return Part{}, fmt.Errorf("closing %s: %w", path, err)
	}

	a.log.Info("part written",
		zap.String("path", path),
		zap.Int("bodies", backend.Bodies()),
		zap.Int("triangles", mesh.TriangleCount()))
	return Part{Name: name, Path: path, Bodies: backend.Bodies(), Triangles: mesh.TriangleCount()}, nil
}

// partName renders a file-name-safe label such as
// "thread-male-13.16x1.34-l9".
func partName(prefix string, s thread.Spec) string {
	name := fmt.Sprintf("%s-%s-%gx%g-l%g", prefix, s.Sense(), s.MajorDiameter(), s.Pitch(), s.Length())
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		}
		return '_'
	}, name)
}

func calibrationName(req feature.BatchRequest) string {
	return fmt.Sprintf("%s-x%d", partName("calibration", req.Base), req.Count)
}

func sampleErrors(b *feature.Batch) []error {
	var errs []error
	for _, s := range b.Failed() {
		errs = append(errs, s.Err)
	}
	return errs
}
