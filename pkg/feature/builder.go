// Package feature turns thread specs into geometry plans. Build plans a
// single thread; PlanBatch plans a calibration batch of samples with
// stepped tolerances on a shared base plate.
package feature

import (
	"fmt"

	"github.com/chazu/threadforge/pkg/kernel"
	"github.com/chazu/threadforge/pkg/logging"
	"github.com/chazu/threadforge/pkg/plan"
	"github.com/chazu/threadforge/pkg/thread"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// Option configures a build.
type Option func(*options)

type options struct {
	log   *zap.Logger
	blank bool
}

// WithLogger sets the logger that receives per-stage debug events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithBlank makes Build plan a nut blank ahead of a female thread so the
// hole and thread cuts have a body to act on. It has no effect on male
// threads.
func WithBlank() Option {
	return func(o *options) { o.blank = true }
}

func newOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	o.log = logging.OrNop(o.log)
	return o
}

// Build plans a thread feature for spec with its axis through origin.
// On any error no plan is returned.
func Build(spec thread.Spec, origin r3.Vec, opts ...Option) (*plan.Plan, error) {
	o := newOptions(opts)
	p := plan.New(fmt.Sprintf("thread %s", spec))
	if o.blank && spec.Sense() == thread.Female {
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		addBlank(p, spec, spec.MajorDiameter(), origin)
	}
	if err := buildInto(p, spec, origin, o.log); err != nil {
		return nil, err
	}
	return p, nil
}

// buildInto appends the thread feature ops to p.
func buildInto(p *plan.Plan, spec thread.Spec, origin r3.Vec, log *zap.Logger) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	// Shaft (male) or hole (female): a minor-diameter cylinder.
	stage, mode := plan.StageShaft, kernel.NewBody
	if spec.Sense() == thread.Female {
		stage, mode = plan.StageHole, kernel.Cut
	}
	addCylinder(p, stage, origin, spec.MinorDiameter(), spec.Length(), mode)
	log.Debug("planned base cylinder",
		zap.Stringer("stage", stage),
		zap.Float64("diameter", spec.MinorDiameter()),
		zap.Float64("length", spec.Length()))

	// Helix centreline.
	points, err := thread.GenerateHelix(spec, origin)
	if err != nil {
		return err
	}
	helixPlane := p.Add(plan.StageHelix, plan.OffsetPlaneData{Base: kernel.XYPlane(origin)})
	helixSketch := p.Add(plan.StageHelix, plan.SketchData{}, helixPlane)
	curve := p.Add(plan.StageHelix, plan.FittedCurveData{Points: points}, helixSketch)
	log.Debug("planned helix", zap.Int("points", len(points)))

	// Notch cross-sections at each station.
	notch := thread.BuildNotchProfile(spec)
	stations := thread.SampleStations(len(points))
	profiles := make([]plan.OpID, 0, len(stations)+1)
	for _, st := range stations {
		sp := p.Add(plan.StageProfile, plan.CurvePlaneData{Fraction: st.Fraction}, curve)
		sk := p.Add(plan.StageProfile, plan.SketchData{}, sp)
		profiles = append(profiles, p.Add(plan.StageProfile, plan.PolygonData{Vertices: notch.Loop()}, sk))
	}
	log.Debug("planned profiles", zap.Int("stations", len(stations)))

	// Thread body.
	loftMode := kernel.Join
	if spec.Sense() == thread.Female {
		loftMode = kernel.Cut
	}
	p.Add(plan.StageLoft, plan.LoftData{Mode: loftMode}, append(profiles, curve)...)

	// Tip chamfer, male only.
	if spec.Sense() == thread.Male {
		ch, err := thread.BuildChamfer(spec, origin)
		if err != nil {
			return err
		}
		cp := p.Add(plan.StageChamfer, plan.OffsetPlaneData{Base: kernel.AxialPlane(origin)})
		csk := p.Add(plan.StageChamfer, plan.SketchData{}, cp)
		tri := p.Add(plan.StageChamfer, plan.PolygonData{Vertices: ch.Triangle[:]}, csk)
		p.Add(plan.StageChamfer, plan.RevolveData{
			Axis:  kernel.Axis{Origin: ch.Origin, Direction: ch.Axis},
			Angle: ch.Angle,
			Mode:  kernel.Cut,
		}, tri)
		log.Debug("planned chamfer")
	}
	return nil
}

// addBlank appends a nut blank sized from major, the batch's base major
// diameter, and spec's length.
func addBlank(p *plan.Plan, spec thread.Spec, major float64, origin r3.Vec) {
	addCylinder(p, plan.StageBlank, origin, major+BoltThickness*2, spec.Length()-BlankShortfall, kernel.NewBody)
}

// addCylinder appends an XY-plane circle at origin extruded by height.
func addCylinder(p *plan.Plan, stage plan.Stage, origin r3.Vec, diameter, height float64, mode kernel.Operation) plan.OpID {
	pl := p.Add(stage, plan.OffsetPlaneData{Base: kernel.XYPlane(origin)})
	sk := p.Add(stage, plan.SketchData{}, pl)
	c := p.Add(stage, plan.CircleData{Center: origin, Diameter: diameter}, sk)
	return p.Add(stage, plan.ExtrudeData{Distance: height, Mode: mode}, c)
}
