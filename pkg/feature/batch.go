package feature

import (
	"fmt"

	"github.com/chazu/threadforge/pkg/kernel"
	"github.com/chazu/threadforge/pkg/plan"
	"github.com/chazu/threadforge/pkg/thread"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// BoltThickness is the wall around female samples: it widens the plate
	// and sets the nut-blank diameter.
	BoltThickness = 0.25
	// PlateDepth is how far the base plate extends below the sample row.
	PlateDepth = 0.1
	// BlankShortfall shortens the nut blank relative to the thread so the
	// cut runs out of the top.
	BlankShortfall = 0.1
	// MaxBatchCount bounds the number of samples in one batch.
	MaxBatchCount = 100
)

// BatchRequest describes a calibration batch.
type BatchRequest struct {
	Base   thread.Spec
	Count  int
	Steps  thread.Steps
	Origin r3.Vec // plate reference point; sample 0 sits here
}

// Sample is one thread of a batch. Plan is nil when Err is set.
type Sample struct {
	Index   int
	Origin  r3.Vec
	Offsets thread.Offsets
	Spec    thread.Spec
	Plan    *plan.Plan
	Err     error
}

// Batch is a planned calibration run: a base plate and one independent plan
// per sample.
type Batch struct {
	Request     BatchRequest
	PlateWidth  float64
	PlateLength float64
	Plate       *plan.Plan
	Samples     []Sample
}

// Failed returns the samples that could not be planned.
func (b *Batch) Failed() []Sample {
	var out []Sample
	for _, s := range b.Samples {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Plans returns the plate plan followed by every successfully planned
// sample plan, in execution order.
func (b *Batch) Plans() []*plan.Plan {
	out := []*plan.Plan{b.Plate}
	for _, s := range b.Samples {
		if s.Plan != nil {
			out = append(out, s.Plan)
		}
	}
	return out
}

// PlanBatch lays out a row of Count samples along +X, each with the base
// spec adjusted by the tolerance offsets for its index. A sample whose
// adjusted spec is invalid, or whose plan fails, is recorded with its error
// and the remaining samples are still planned.
func PlanBatch(req BatchRequest, opts ...Option) (*Batch, error) {
	o := newOptions(opts)
	if req.Count < 1 || req.Count > MaxBatchCount {
		return nil, fmt.Errorf("batch count %d outside [1, %d]", req.Count, MaxBatchCount)
	}
	if err := req.Base.Validate(); err != nil {
		return nil, err
	}

	base := req.Base
	major := base.MajorDiameter()
	female := base.Sense() == thread.Female

	width := major
	length := major*float64(req.Count)*2 - major
	if female {
		width += BoltThickness * 2
		length += BoltThickness * 2
	}
	offset := width / 2

	b := &Batch{
		Request:     req,
		PlateWidth:  width,
		PlateLength: length,
		Plate:       plan.New("calibration plate"),
	}

	pl := b.Plate.Add(plan.StagePlate, plan.OffsetPlaneData{Base: kernel.XYPlane(req.Origin)})
	sk := b.Plate.Add(plan.StagePlate, plan.SketchData{}, pl)
	rect := b.Plate.Add(plan.StagePlate, plan.PolygonData{Vertices: []r2.Vec{
		{X: -offset, Y: -offset},
		{X: length - offset, Y: -offset},
		{X: length - offset, Y: width - offset},
		{X: -offset, Y: width - offset},
	}}, sk)
	b.Plate.Add(plan.StagePlate, plan.ExtrudeData{Distance: -PlateDepth, Mode: kernel.NewBody}, rect)

	o.log.Debug("planned plate",
		zap.Float64("width", width),
		zap.Float64("length", length),
		zap.Int("count", req.Count))

	for i := 0; i < req.Count; i++ {
		s := Sample{
			Index:   i,
			Origin:  r3.Add(req.Origin, r3.Vec{X: major * float64(i) * 2}),
			Offsets: thread.OffsetsFor(i, req.Steps),
		}

		spec, err := base.Adjusted(s.Offsets)
		if err != nil {
			s.Err = fmt.Errorf("sample %d: %w", i, err)
			o.log.Warn("skipping calibration sample", zap.Int("index", i), zap.Error(err))
			b.Samples = append(b.Samples, s)
			continue
		}
		s.Spec = spec

		p := plan.New(fmt.Sprintf("sample %d %s", i, spec))
		if female {
			addBlank(p, spec, major, s.Origin)
		}
		if err := buildInto(p, spec, s.Origin, o.log); err != nil {
			s.Err = fmt.Errorf("sample %d: %w", i, err)
			o.log.Warn("skipping calibration sample", zap.Int("index", i), zap.Error(err))
			b.Samples = append(b.Samples, s)
			continue
		}
		s.Plan = p
		b.Samples = append(b.Samples, s)
	}

	return b, nil
}
