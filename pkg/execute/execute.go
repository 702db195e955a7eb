// Package execute walks geometry plans and drives a kernel.Backend, one
// call per operation, in plan order. It maps op IDs to the handles the
// backend returns and wraps any backend failure with the stage it occurred in.
package execute

import (
	"fmt"
	"time"

	"github.com/chazu/threadforge/pkg/kernel"
	"github.com/chazu/threadforge/pkg/logging"
	"github.com/chazu/threadforge/pkg/plan"
	"go.uber.org/zap"
)

// Executor runs plans against backends. It holds no per-plan state and may
// be reused; it is not safe for concurrent use with the same backend.
type Executor struct {
	log     *zap.Logger
	metrics *Metrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor's logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithMetrics records backend calls and plan outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// New returns an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{}
	for _, fn := range opts {
		fn(e)
	}
	e.log = logging.OrNop(e.log)
	return e
}

// Result is the outcome of a successful plan execution.
type Result struct {
	Plan     string
	Handles  []kernel.Handle // indexed by plan.OpID
	Bodies   []kernel.Handle // results of the feature ops, in order
	Duration time.Duration
}

// Run validates p and executes its ops against b. Validation errors return a
// *PlanError before any backend call; a failing backend call stops execution
// and returns a *GeometryConstructionError. Geometry created before the
// failure stays in the backend.
func (e *Executor) Run(p *plan.Plan, b kernel.Backend) (*Result, error) {
	if p == nil {
		return nil, fmt.Errorf("execute: nil plan")
	}
	if errs := plan.Errors(plan.Validate(p)); len(errs) > 0 {
		e.countPlan("invalid")
		return nil, &PlanError{Plan: p.Name, Findings: errs}
	}

	start := time.Now()
	res := &Result{Plan: p.Name, Handles: make([]kernel.Handle, len(p.Ops))}

	for _, op := range p.Ops {
		opStart := time.Now()
		h, err := dispatch(b, op, res.Handles)
		e.countOp(op.Kind, opStart, err)
		if err != nil {
			e.countPlan("error")
			e.log.Error("backend call failed",
				zap.String("plan", p.Name),
				zap.Stringer("stage", op.Stage),
				zap.Stringer("op", op.ID),
				zap.Stringer("kind", op.Kind),
				zap.Error(err))
			return nil, &GeometryConstructionError{Plan: p.Name, Stage: op.Stage, OpID: op.ID, Kind: op.Kind, Err: err}
		}
		res.Handles[op.ID] = h
		if op.Kind.IsFeature() {
			res.Bodies = append(res.Bodies, h)
		}
		e.log.Debug("op executed", zap.Stringer("op", op.ID), zap.Stringer("kind", op.Kind))
	}

	res.Duration = time.Since(start)
	e.countPlan("ok")
	e.log.Info("plan executed",
		zap.String("plan", p.Name),
		zap.Int("ops", len(p.Ops)),
		zap.Int("features", len(res.Bodies)),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// dispatch makes the backend call for op. Inputs have already been checked
// to refer to earlier ops of the right kind.
func dispatch(b kernel.Backend, op *plan.Op, handles []kernel.Handle) (kernel.Handle, error) {
	in := func(i int) kernel.Handle { return handles[op.Inputs[i]] }

	switch d := op.Data.(type) {
	case plan.OffsetPlaneData:
		return b.OffsetPlane(d.Base, d.Distance)
	case plan.CurvePlaneData:
		return b.PlaneAtCurveFraction(in(0), d.Fraction)
	case plan.SketchData:
		return b.CreatePlaneSketch(in(0))
	case plan.CircleData:
		return b.AddCircleProfile(in(0), d.Center, d.Diameter)
	case plan.PolygonData:
		return b.AddPolygonProfile(in(0), d.Vertices)
	case plan.FittedCurveData:
		return b.AddFittedCurve(in(0), d.Points)
	case plan.ExtrudeData:
		return b.Extrude(in(0), d.Distance, d.Mode)
	case plan.LoftData:
		last := len(op.Inputs) - 1
		profiles := make([]kernel.Handle, last)
		for i := range profiles {
			profiles[i] = in(i)
		}
		return b.Loft(profiles, in(last), d.Mode)
	case plan.RevolveData:
		return b.Revolve(in(0), d.Axis, d.Angle, d.Mode)
	default:
		return nil, fmt.Errorf("unsupported op payload %T", op.Data)
	}
}

func (e *Executor) countOp(kind plan.OpKind, start time.Time, err error) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	e.metrics.Ops.WithLabelValues(kind.String(), status).Inc()
	e.metrics.OpDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
}

func (e *Executor) countPlan(status string) {
	if e.metrics == nil {
		return
	}
	e.metrics.Plans.WithLabelValues(status).Inc()
}
