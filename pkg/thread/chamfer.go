package thread

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// ChamferOvershoot extends the chamfer triangle past the part so the
// revolved cut leaves no sliver.
const ChamferOvershoot = 0.01

// Chamfer is the tip chamfer of a male thread: a triangle in the axial
// half-plane, revolved a full turn about the thread axis and subtracted.
type Chamfer struct {
	// Triangle vertices as (radial, axial) pairs measured from Origin. The
	// radial coordinate goes negative when a small minor diameter puts the
	// tip corner past the axis.
	Triangle [3]r2.Vec
	Origin   r3.Vec // axis point the triangle coordinates are relative to
	Axis     r3.Vec // unit direction of the revolution axis
	Angle    float64
}

// BuildChamfer computes the tip chamfer for a male spec whose axis passes
// through origin. Female specs return ErrFemaleChamfer.
func BuildChamfer(spec Spec, origin r3.Vec) (Chamfer, error) {
	if spec.Sense() != Male {
		return Chamfer{}, ErrFemaleChamfer
	}
	o := ChamferOvershoot
	pw := spec.ProtrusionWidth()

	minorX := spec.MinorDiameter()/2 - pw - o
	majorX := spec.MajorDiameter()/2 + o
	minorZ := spec.Length() - pw - o
	majorZ := spec.Length() + spec.CutDepth() + o

	return Chamfer{
		Triangle: [3]r2.Vec{
			{X: minorX, Y: majorZ},
			{X: majorX, Y: majorZ},
			{X: majorX, Y: minorZ},
		},
		Origin: origin,
		Axis:   r3.Vec{Z: 1},
		Angle:  2 * math.Pi,
	}, nil
}
