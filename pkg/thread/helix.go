package thread

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// minHelixPoints is the fewest points a fitted curve can pass through.
	minHelixPoints = 2
	// MaxHelixPoints bounds the sample count of a single helix.
	MaxHelixPoints = 1 << 20
)

// Helix describes the helical centreline a thread profile is swept along.
// The helix winds counter-clockwise about +Z, starting at angle 0.
type Helix struct {
	Origin r3.Vec  // axis point at t=0, already shifted by half the protrusion width
	Radius float64 // major radius
	Rise   float64 // axial rise per radian
	TRange float64 // parameter span in radians
	Steps  int     // number of sample points
}

// Point returns the helix position at parameter t.
func (h Helix) Point(t float64) r3.Vec {
	return r3.Vec{
		X: h.Origin.X + h.Radius*math.Cos(t),
		Y: h.Origin.Y + h.Radius*math.Sin(t),
		Z: h.Origin.Z + h.Rise*t,
	}
}

// Lead is the axial advance per full turn.
func (h Helix) Lead() float64 {
	return h.Rise * 2 * math.Pi
}

// Points samples the helix at Steps evenly spaced parameters covering
// [0, TRange].
func (h Helix) Points() []r3.Vec {
	pts := make([]r3.Vec, h.Steps)
	for i := range pts {
		t := h.TRange * float64(i) / float64(h.Steps-1)
		pts[i] = h.Point(t)
	}
	return pts
}

// HelixFor derives the helix for spec with its axis through axisOrigin.
// The start is pushed up by half the protrusion width so the first profile
// sits fully above the base plane.
func HelixFor(spec Spec, axisOrigin r3.Vec) (Helix, error) {
	pw := spec.ProtrusionWidth()
	usable := spec.Length() - pw/2
	if usable <= 0 {
		return Helix{}, &DegenerateHelixError{Reason: "no axial length left after protrusion shift", Usable: usable}
	}

	angle := math.Asin(spec.Pitch() / (math.Pi * spec.MajorDiameter()))
	rise := math.Tan(angle) * spec.MajorDiameter() / 2
	if math.IsNaN(rise) || math.IsInf(rise, 0) || rise <= 0 {
		return Helix{}, &DegenerateHelixError{Reason: "rise per radian is not a positive finite number", Usable: usable}
	}

	tRange := usable / rise
	if math.IsNaN(tRange) || math.IsInf(tRange, 0) {
		return Helix{}, &DegenerateHelixError{Reason: "parameter range is not finite", Usable: usable}
	}

	// Roughly 1.9 points per radian.
	n := 3 * tRange / math.Pi * 2
	if n > MaxHelixPoints {
		return Helix{}, &DegenerateHelixError{Reason: fmt.Sprintf("more than %d points", MaxHelixPoints), Usable: usable}
	}
	steps := int(n)
	if steps < minHelixPoints {
		steps = minHelixPoints
	}

	return Helix{
		Origin: r3.Add(axisOrigin, r3.Vec{Z: pw / 2}),
		Radius: spec.MajorDiameter() / 2,
		Rise:   rise,
		TRange: tRange,
		Steps:  steps,
	}, nil
}

// GenerateHelix returns the ordered helix points for spec around the axis
// through axisOrigin. The result always holds at least two points with
// strictly increasing Z.
func GenerateHelix(spec Spec, axisOrigin r3.Vec) ([]r3.Vec, error) {
	h, err := HelixFor(spec, axisOrigin)
	if err != nil {
		return nil, err
	}
	pts := h.Points()
	if len(pts) < minHelixPoints {
		return nil, &DegenerateHelixError{Reason: "too few points", Usable: spec.Length() - spec.ProtrusionWidth()/2, Points: len(pts)}
	}
	return pts, nil
}
