package plan

import (
	"fmt"

	"github.com/chazu/threadforge/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// OpID identifies an operation within a single plan. IDs are assigned
// sequentially from zero in the order ops are added.
type OpID int

func (id OpID) String() string {
	return fmt.Sprintf("op%d", int(id))
}

// OpKind enumerates the backend primitives an operation maps to.
type OpKind int

const (
	OpOffsetPlane OpKind = iota // construction plane offset from a base frame
	OpCurvePlane                // construction plane normal to a curve
	OpSketch                    // sketch on a plane
	OpCircle                    // circle profile in a sketch
	OpPolygon                   // closed line-loop profile in a sketch
	OpFittedCurve               // spline through points in a sketch
	OpExtrude                   // extrude a profile
	OpLoft                      // loft profiles along a centreline
	OpRevolve                   // revolve a profile about an axis
)

func (k OpKind) String() string {
	switch k {
	case OpOffsetPlane:
		return "offset-plane"
	case OpCurvePlane:
		return "curve-plane"
	case OpSketch:
		return "sketch"
	case OpCircle:
		return "circle"
	case OpPolygon:
		return "polygon"
	case OpFittedCurve:
		return "fitted-curve"
	case OpExtrude:
		return "extrude"
	case OpLoft:
		return "loft"
	case OpRevolve:
		return "revolve"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON and YAML dumps.
func (k OpKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsFeature reports whether ops of this kind create or modify bodies. These
// are the top-level backend calls of a plan.
func (k OpKind) IsFeature() bool {
	return k == OpExtrude || k == OpLoft || k == OpRevolve
}

// IsProfile reports whether ops of this kind produce a closed profile.
func (k OpKind) IsProfile() bool {
	return k == OpCircle || k == OpPolygon
}

// IsPlane reports whether ops of this kind produce a construction plane.
func (k OpKind) IsPlane() bool {
	return k == OpOffsetPlane || k == OpCurvePlane
}

// Stage names the feature-construction step an operation belongs to.
// Backend failures are reported against the stage of the failing op.
type Stage int

const (
	StageShaft   Stage = iota // male base cylinder
	StageHole                 // female bore
	StageHelix                // helical centreline
	StageProfile              // notch cross-sections
	StageLoft                 // thread body
	StageChamfer              // tip chamfer
	StagePlate                // calibration base plate
	StageBlank                // female nut blank
)

func (s Stage) String() string {
	switch s {
	case StageShaft:
		return "shaft"
	case StageHole:
		return "hole"
	case StageHelix:
		return "helix"
	case StageProfile:
		return "profile"
	case StageLoft:
		return "loft"
	case StageChamfer:
		return "chamfer"
	case StagePlate:
		return "plate"
	case StageBlank:
		return "blank"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// MarshalText renders the stage by name in JSON and YAML dumps.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Op is a single backend call in a plan. Inputs lists the earlier ops whose
// handles the call consumes, in argument order.
type Op struct {
	ID     OpID   `json:"id" yaml:"id"`
	Kind   OpKind `json:"kind" yaml:"kind"`
	Stage  Stage  `json:"stage" yaml:"stage"`
	Inputs []OpID `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Data   OpData `json:"data" yaml:"data"`
}

func (o *Op) String() string {
	return fmt.Sprintf("%s %s [%s]", o.ID, o.Kind, o.Stage)
}

// OpData is the interface for kind-specific operation payloads. Payloads
// carry semantic parameters only, never backend handles.
type OpData interface {
	Kind() OpKind
	opData() // marker method restricting implementations to this package
}

// ---------------------------------------------------------------------------
// Payloads
// ---------------------------------------------------------------------------

// OffsetPlaneData offsets Base along its normal. Inputs: none.
type OffsetPlaneData struct {
	Base     kernel.Plane `json:"base" yaml:"base"`
	Distance float64      `json:"distance" yaml:"distance"`
}

// CurvePlaneData places a plane normal to a curve at a length fraction.
// Inputs: [curve].
type CurvePlaneData struct {
	Fraction float64 `json:"fraction" yaml:"fraction"`
}

// SketchData opens a sketch. Inputs: [plane].
type SketchData struct{}

// CircleData adds a circle profile. Inputs: [sketch].
type CircleData struct {
	Center   r3.Vec  `json:"center" yaml:"center"`
	Diameter float64 `json:"diameter" yaml:"diameter"`
}

// PolygonData adds a closed line loop in sketch coordinates. Inputs: [sketch].
type PolygonData struct {
	Vertices []r2.Vec `json:"vertices" yaml:"vertices"`
}

// FittedCurveData adds a spline through world points. Inputs: [sketch].
type FittedCurveData struct {
	Points []r3.Vec `json:"points" yaml:"points,flow"`
}

// ExtrudeData extrudes a profile along its sketch normal. A negative
// distance extrudes backwards. Inputs: [profile].
type ExtrudeData struct {
	Distance float64          `json:"distance" yaml:"distance"`
	Mode     kernel.Operation `json:"mode" yaml:"mode"`
}

// LoftData lofts profiles along a centreline.
// Inputs: [profile..., centreline].
type LoftData struct {
	Mode kernel.Operation `json:"mode" yaml:"mode"`
}

// RevolveData revolves a profile about Axis. Inputs: [profile].
type RevolveData struct {
	Axis  kernel.Axis      `json:"axis" yaml:"axis"`
	Angle float64          `json:"angle" yaml:"angle"`
	Mode  kernel.Operation `json:"mode" yaml:"mode"`
}

func (OffsetPlaneData) Kind() OpKind { return OpOffsetPlane }
func (CurvePlaneData) Kind() OpKind  { return OpCurvePlane }
func (SketchData) Kind() OpKind      { return OpSketch }
func (CircleData) Kind() OpKind      { return OpCircle }
func (PolygonData) Kind() OpKind     { return OpPolygon }
func (FittedCurveData) Kind() OpKind { return OpFittedCurve }
func (ExtrudeData) Kind() OpKind     { return OpExtrude }
func (LoftData) Kind() OpKind        { return OpLoft }
func (RevolveData) Kind() OpKind     { return OpRevolve }

func (OffsetPlaneData) opData() {}
func (CurvePlaneData) opData()  {}
func (SketchData) opData()      {}
func (CircleData) opData()      {}
func (PolygonData) opData()     {}
func (FittedCurveData) opData() {}
func (ExtrudeData) opData()     {}
func (LoftData) opData()        {}
func (RevolveData) opData()     {}

// Mode returns the body operation of a feature payload.
func Mode(d OpData) (kernel.Operation, bool) {
	switch v := d.(type) {
	case ExtrudeData:
		return v.Mode, true
	case LoftData:
		return v.Mode, true
	case RevolveData:
		return v.Mode, true
	}
	return 0, false
}
