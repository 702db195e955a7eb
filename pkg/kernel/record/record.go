// Package record implements kernel.Backend as an in-memory call log. It
// creates no geometry; it checks handle types, hands out sequential handles
// and records every call so plans and executors can be tested without a
// modeler. Failures can be injected per method.
package record

import (
	"fmt"

	"github.com/chazu/threadforge/pkg/kernel"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compile-time interface check.
var _ kernel.Backend = (*Backend)(nil)

// Method names as recorded in Call.Method.
const (
	MethodOffsetPlane          = "OffsetPlane"
	MethodPlaneAtCurveFraction = "PlaneAtCurveFraction"
	MethodCreatePlaneSketch    = "CreatePlaneSketch"
	MethodAddCircleProfile     = "AddCircleProfile"
	MethodAddPolygonProfile    = "AddPolygonProfile"
	MethodAddFittedCurve       = "AddFittedCurve"
	MethodExtrude              = "Extrude"
	MethodLoft                 = "Loft"
	MethodRevolve              = "Revolve"
)

// EntityKind classifies what a handle refers to.
type EntityKind int

const (
	EntityPlane EntityKind = iota
	EntitySketch
	EntityProfile
	EntityCurve
	EntityBody
)

func (k EntityKind) String() string {
	switch k {
	case EntityPlane:
		return "plane"
	case EntitySketch:
		return "sketch"
	case EntityProfile:
		return "profile"
	case EntityCurve:
		return "curve"
	case EntityBody:
		return "body"
	default:
		return "unknown"
	}
}

// Entity is the handle type returned by this backend.
type Entity struct {
	ID   int
	Kind EntityKind
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s#%d", e.Kind, e.ID)
}

// Call is one recorded backend invocation.
type Call struct {
	Method string
	Inputs []*Entity
	Mode   kernel.Operation // features only
	Result *Entity          // nil when the call failed
	Err    error
}

// IsFeature reports whether the call created or modified a body.
func (c Call) IsFeature() bool {
	return c.Method == MethodExtrude || c.Method == MethodLoft || c.Method == MethodRevolve
}

type injected struct {
	after int // number of successful calls to allow first
	err   error
}

// Backend records calls. The zero value is not usable; use New.
type Backend struct {
	calls    []Call
	nextID   int
	failures map[string]*injected
	counts   map[string]int
}

// New returns an empty recording backend.
func New() *Backend {
	return &Backend{
		failures: make(map[string]*injected),
		counts:   make(map[string]int),
	}
}

// FailOn makes the call to method fail with err once `after` earlier calls
// to the same method have succeeded. Later calls fail too.
func (b *Backend) FailOn(method string, after int, err error) {
	b.failures[method] = &injected{after: after, err: err}
}

// Calls returns the recorded calls in order.
func (b *Backend) Calls() []Call {
	return b.calls
}

// Features returns the recorded extrude, loft and revolve calls.
func (b *Backend) Features() []Call {
	var out []Call
	for _, c := range b.calls {
		if c.IsFeature() {
			out = append(out, c)
		}
	}
	return out
}

// Count returns how many times method was called, including failures.
func (b *Backend) Count(method string) int {
	return b.counts[method]
}

// Bodies returns the number of bodies created.
func (b *Backend) Bodies() int {
	n := 0
	for _, c := range b.calls {
		if c.Result != nil && c.Result.Kind == EntityBody && c.Mode == kernel.NewBody {
			n++
		}
	}
	return n
}

// Reset clears the call log and injected failures.
func (b *Backend) Reset() {
	b.calls = nil
	b.nextID = 0
	b.failures = make(map[string]*injected)
	b.counts = make(map[string]int)
}

// record checks inputs, applies any injected failure and logs the call.
func (b *Backend) record(method string, kind EntityKind, mode kernel.Operation, inputs []kernel.Handle, want ...EntityKind) (kernel.Handle, error) {
	b.counts[method]++
	call := Call{Method: method, Mode: mode}

	fail := func(err error) (kernel.Handle, error) {
		call.Err = err
		b.calls = append(b.calls, call)
		return nil, err
	}

	for i, h := range inputs {
		e, ok := h.(*Entity)
		if !ok || e == nil {
			return fail(fmt.Errorf("%s: input %d: foreign handle %T", method, i, h))
		}
		call.Inputs = append(call.Inputs, e)
		w := want[len(want)-1]
		if i < len(want) {
			w = want[i]
		}
		if e.Kind != w {
			return fail(fmt.Errorf("%s: input %d is a %s, want %s", method, i, e.Kind, w))
		}
	}

	if f, ok := b.failures[method]; ok {
		if f.after <= 0 {
			return fail(f.err)
		}
		f.after--
	}

	b.nextID++
	call.Result = &Entity{ID: b.nextID, Kind: kind}
	b.calls = append(b.calls, call)
	return call.Result, nil
}

// OffsetPlane records a plane offset.
func (b *Backend) OffsetPlane(base kernel.Plane, distance float64) (kernel.Handle, error) {
	if err := base.Validate(); err != nil {
		b.counts[MethodOffsetPlane]++
		b.calls = append(b.calls, Call{Method: MethodOffsetPlane, Err: err})
		return nil, err
	}
	return b.record(MethodOffsetPlane, EntityPlane, 0, nil)
}

// PlaneAtCurveFraction records a plane along a curve.
func (b *Backend) PlaneAtCurveFraction(curve kernel.Handle, fraction float64) (kernel.Handle, error) {
	if fraction < 0 || fraction > 1 {
		return nil, fmt.Errorf("%s: fraction %g outside [0, 1]", MethodPlaneAtCurveFraction, fraction)
	}
	return b.record(MethodPlaneAtCurveFraction, EntityPlane, 0, []kernel.Handle{curve}, EntityCurve)
}

// CreatePlaneSketch records a sketch.
func (b *Backend) CreatePlaneSketch(plane kernel.Handle) (kernel.Handle, error) {
	return b.record(MethodCreatePlaneSketch, EntitySketch, 0, []kernel.Handle{plane}, EntityPlane)
}

// AddCircleProfile records a circle profile.
func (b *Backend) AddCircleProfile(sketch kernel.Handle, center r3.Vec, diameter float64) (kernel.Handle, error) {
	return b.record(MethodAddCircleProfile, EntityProfile, 0, []kernel.Handle{sketch}, EntitySketch)
}

// AddPolygonProfile records a polygon profile.
func (b *Backend) AddPolygonProfile(sketch kernel.Handle, vertices []r2.Vec) (kernel.Handle, error) {
	if len(vertices) < 3 {
		return nil, fmt.Errorf("%s: %d vertices", MethodAddPolygonProfile, len(vertices))
	}
	return b.record(MethodAddPolygonProfile, EntityProfile, 0, []kernel.Handle{sketch}, EntitySketch)
}

// AddFittedCurve records a fitted curve.
func (b *Backend) AddFittedCurve(sketch kernel.Handle, points []r3.Vec) (kernel.Handle, error) {
	return b.record(MethodAddFittedCurve, EntityCurve, 0, []kernel.Handle{sketch}, EntitySketch)
}

// Extrude records an extrusion.
func (b *Backend) Extrude(profile kernel.Handle, distance float64, mode kernel.Operation) (kernel.Handle, error) {
	return b.record(MethodExtrude, EntityBody, mode, []kernel.Handle{profile}, EntityProfile)
}

// Loft records a loft. The centreline is recorded as the last input.
func (b *Backend) Loft(profiles []kernel.Handle, centerline kernel.Handle, mode kernel.Operation) (kernel.Handle, error) {
	inputs := append(append([]kernel.Handle{}, profiles...), centerline)
	want := make([]EntityKind, len(inputs))
	for i := range profiles {
		want[i] = EntityProfile
	}
	want[len(want)-1] = EntityCurve
	return b.record(MethodLoft, EntityBody, mode, inputs, want...)
}

// Revolve records a revolution.
func (b *Backend) Revolve(profile kernel.Handle, axis kernel.Axis, angle float64, mode kernel.Operation) (kernel.Handle, error) {
	return b.record(MethodRevolve, EntityBody, mode, []kernel.Handle{profile}, EntityProfile)
}
