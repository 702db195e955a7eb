// Package kernel defines the abstract solid-modeling backend that thread
// plans are executed against. Implementations (sdfx, record) provide the
// primitives behind this interface so the feature code never depends on a
// particular modeler.
package kernel

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Handle is an opaque reference to a backend-owned entity: a plane, sketch,
// profile, curve or body. Handles are only meaningful to the backend that
// returned them.
type Handle interface{}

// Operation selects how a new feature combines with existing bodies.
type Operation int

const (
	NewBody Operation = iota // create a separate body
	Join                     // union with the bodies it touches
	Cut                      // subtract from the bodies it touches
)

func (o Operation) String() string {
	switch o {
	case NewBody:
		return "new-body"
	case Join:
		return "join"
	case Cut:
		return "cut"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// MarshalText renders the operation by name in JSON and YAML dumps.
func (o Operation) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Backend is the geometry backend contract. Every call either returns a
// handle to the created entity or an error; callers treat any error as
// fatal to the current build.
type Backend interface {
	// Construction geometry
	OffsetPlane(base Plane, distance float64) (Handle, error)
	PlaneAtCurveFraction(curve Handle, fraction float64) (Handle, error)

	// Sketching
	CreatePlaneSketch(plane Handle) (Handle, error)
	AddCircleProfile(sketch Handle, center r3.Vec, diameter float64) (Handle, error)
	AddPolygonProfile(sketch Handle, vertices []r2.Vec) (Handle, error)
	AddFittedCurve(sketch Handle, points []r3.Vec) (Handle, error)

	// Features
	Extrude(profile Handle, distance float64, mode Operation) (Handle, error)
	Loft(profiles []Handle, centerline Handle, mode Operation) (Handle, error)
	Revolve(profile Handle, axis Axis, angle float64, mode Operation) (Handle, error)
}

// Mesher is implemented by backends that can tessellate their bodies.
type Mesher interface {
	ToMesh() (*Mesh, error)
}
