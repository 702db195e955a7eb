package kernel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Plane is an oriented construction plane. Sketch coordinates on the plane
// are (x, y) along XAxis and YAxis(); Normal completes a right-handed frame.
type Plane struct {
	Origin r3.Vec `json:"origin" yaml:"origin"`
	Normal r3.Vec `json:"normal" yaml:"normal"`
	XAxis  r3.Vec `json:"xAxis" yaml:"xAxis"`
}

// XYPlane returns the plane through origin with normal +Z and x along +X.
func XYPlane(origin r3.Vec) Plane {
	return Plane{Origin: origin, Normal: r3.Vec{Z: 1}, XAxis: r3.Vec{X: 1}}
}

// AxialPlane returns the plane through origin containing the +Z axis, with
// sketch x along +X (radial) and sketch y along +Z (axial).
func AxialPlane(origin r3.Vec) Plane {
	return Plane{Origin: origin, Normal: r3.Vec{Y: -1}, XAxis: r3.Vec{X: 1}}
}

// YAxis returns Normal × XAxis.
func (p Plane) YAxis() r3.Vec {
	return r3.Cross(p.Normal, p.XAxis)
}

// Offset returns the plane moved distance along its normal.
func (p Plane) Offset(distance float64) Plane {
	p.Origin = r3.Add(p.Origin, r3.Scale(distance, p.Normal))
	return p
}

// Validate checks that the frame is orthonormal.
func (p Plane) Validate() error {
	const tol = 1e-9
	if math.Abs(r3.Norm(p.Normal)-1) > tol {
		return fmt.Errorf("plane normal %v is not unit length", p.Normal)
	}
	if math.Abs(r3.Norm(p.XAxis)-1) > tol {
		return fmt.Errorf("plane x axis %v is not unit length", p.XAxis)
	}
	if math.Abs(r3.Dot(p.Normal, p.XAxis)) > tol {
		return fmt.Errorf("plane x axis %v is not perpendicular to normal %v", p.XAxis, p.Normal)
	}
	return nil
}

// ToWorld maps sketch coordinates on p to world space.
func (p Plane) ToWorld(v r2.Vec) r3.Vec {
	return r3.Add(p.Origin, r3.Add(r3.Scale(v.X, p.XAxis), r3.Scale(v.Y, p.YAxis())))
}

// ToWorld3 maps frame coordinates (x, y along the sketch axes, z along the
// normal) to world space.
func (p Plane) ToWorld3(v r3.Vec) r3.Vec {
	w := r3.Add(r3.Scale(v.X, p.XAxis), r3.Scale(v.Y, p.YAxis()))
	return r3.Add(p.Origin, r3.Add(w, r3.Scale(v.Z, p.Normal)))
}

// FrameAlong returns a plane through origin whose normal is the unit vector
// of dir, with an arbitrary perpendicular x axis.
func FrameAlong(origin, dir r3.Vec) Plane {
	n := r3.Unit(dir)
	ref := r3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		ref = r3.Vec{Y: 1}
	}
	x := r3.Unit(r3.Sub(ref, r3.Scale(r3.Dot(ref, n), n)))
	return Plane{Origin: origin, Normal: n, XAxis: x}
}

// ToLocal maps a world point into the plane frame: x, y along the sketch
// axes and z along the normal.
func (p Plane) ToLocal(w r3.Vec) r3.Vec {
	d := r3.Sub(w, p.Origin)
	return r3.Vec{X: r3.Dot(d, p.XAxis), Y: r3.Dot(d, p.YAxis()), Z: r3.Dot(d, p.Normal)}
}

// Axis is a directed line used as a revolution axis.
type Axis struct {
	Origin    r3.Vec `json:"origin" yaml:"origin"`
	Direction r3.Vec `json:"direction" yaml:"direction"`
}

// ZAxis returns the axis through origin along +Z.
func ZAxis(origin r3.Vec) Axis {
	return Axis{Origin: origin, Direction: r3.Vec{Z: 1}}
}
