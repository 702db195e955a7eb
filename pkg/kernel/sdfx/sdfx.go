// Package sdfx implements the kernel.Backend interface using the
// github.com/deadsy/sdfx SDF-based CAD library. Profiles become 2D SDFs,
// features become 3D SDFs placed by their sketch frame, and bodies are
// combined with SDF booleans. Meshes are produced with marching cubes.
package sdfx

import (
	"errors"
	"fmt"
	"math"

	"github.com/chazu/threadforge/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Compile-time interface checks.
var (
	_ kernel.Backend = (*SdfxBackend)(nil)
	_ kernel.Mesher  = (*SdfxBackend)(nil)
)

// DefaultMeshCells controls marching cubes tessellation resolution along the
// longest axis of the model.
const DefaultMeshCells = 200

var (
	// ErrNoTarget is returned for a Cut that touches no existing body.
	ErrNoTarget = errors.New("cut does not intersect any body")
	// ErrEmpty is returned when meshing a backend with no bodies.
	ErrEmpty = errors.New("no bodies to mesh")
)

// ---------------------------------------------------------------------------
// Handle types
// ---------------------------------------------------------------------------

// planeHandle is a construction plane. Planes made along a curve remember
// the curve and parameter so a loft can recover its stations.
type planeHandle struct {
	frame kernel.Plane
	curve *curveHandle
	t     float64
}

type sketchHandle struct {
	plane *planeHandle
}

// profileHandle is a closed region in a sketch, in sketch coordinates.
type profileHandle struct {
	sketch   *sketchHandle
	shape    sdf.SDF2
	vertices []r2.Vec // nil for circles
}

type curveHandle struct {
	points []r3.Vec
	helix  helixFit
}

// bodyHandle refers to the body a feature ended up in.
type bodyHandle struct {
	id int
}

type body struct {
	id int
	s  sdf.SDF3
}

// ---------------------------------------------------------------------------
// Backend
// ---------------------------------------------------------------------------

// SdfxBackend implements kernel.Backend using sdfx.
type SdfxBackend struct {
	bodies []*body
	nextID int
	cells  int
}

// Option configures an SdfxBackend.
type Option func(*SdfxBackend)

// WithMeshCells sets the marching cubes resolution.
func WithMeshCells(cells int) Option {
	return func(b *SdfxBackend) {
		if cells > 0 {
			b.cells = cells
		}
	}
}

// New returns an empty SdfxBackend.
func New(opts ...Option) *SdfxBackend {
	b := &SdfxBackend{cells: DefaultMeshCells}
	for _, fn := range opts {
		fn(b)
	}
	return b
}

// Bodies returns the number of separate bodies.
func (b *SdfxBackend) Bodies() int {
	return len(b.bodies)
}

// Evaluate returns the signed distance from p to the union of all bodies:
// negative inside, positive outside. With no bodies it returns +Inf.
func (b *SdfxBackend) Evaluate(p r3.Vec) float64 {
	d := math.Inf(1)
	for _, bd := range b.bodies {
		d = math.Min(d, bd.s.Evaluate(toV3(p)))
	}
	return d
}

// OffsetPlane returns a plane offset along the base plane's normal.
func (b *SdfxBackend) OffsetPlane(base kernel.Plane, distance float64) (kernel.Handle, error) {
	if err := base.Validate(); err != nil {
		return nil, fmt.Errorf("sdfx: offset plane: %w", err)
	}
	return &planeHandle{frame: base.Offset(distance)}, nil
}

// PlaneAtCurveFraction returns the plane normal to the curve at the given
// fraction of its length. The plane's x axis points at the helix axis.
func (b *SdfxBackend) PlaneAtCurveFraction(curve kernel.Handle, fraction float64) (kernel.Handle, error) {
	c, ok := curve.(*curveHandle)
	if !ok {
		return nil, fmt.Errorf("sdfx: plane at curve: expected curve, got %T", curve)
	}
	if fraction < 0 || fraction > 1 {
		return nil, fmt.Errorf("sdfx: plane at curve: fraction %g outside [0, 1]", fraction)
	}
	t := fraction * c.helix.tRange
	return &planeHandle{frame: c.helix.frameAt(t), curve: c, t: t}, nil
}

// CreatePlaneSketch opens a sketch on a plane.
func (b *SdfxBackend) CreatePlaneSketch(plane kernel.Handle) (kernel.Handle, error) {
	p, ok := plane.(*planeHandle)
	if !ok {
		return nil, fmt.Errorf("sdfx: sketch: expected plane, got %T", plane)
	}
	return &sketchHandle{plane: p}, nil
}

// AddCircleProfile adds a circle whose world-space center is projected onto
// the sketch plane.
func (b *SdfxBackend) AddCircleProfile(sketch kernel.Handle, center r3.Vec, diameter float64) (kernel.Handle, error) {
	sk, ok := sketch.(*sketchHandle)
	if !ok {
		return nil, fmt.Errorf("sdfx: circle: expected sketch, got %T", sketch)
	}
	c, err := sdf.Circle2D(diameter / 2)
	if err != nil {
		return nil, fmt.Errorf("sdfx: circle: %w", err)
	}
	local := sk.plane.frame.ToLocal(center)
	shape := sdf.Transform2D(c, sdf.Translate2d(v2.Vec{X: local.X, Y: local.Y}))
	return &profileHandle{sketch: sk, shape: shape}, nil
}

// AddPolygonProfile adds a closed line loop in sketch coordinates.
func (b *SdfxBackend) AddPolygonProfile(sketch kernel.Handle, vertices []r2.Vec) (kernel.Handle, error) {
	sk, ok := sketch.(*sketchHandle)
	if !ok {
		return nil, fmt.Errorf("sdfx: polygon: expected sketch, got %T", sketch)
	}
	shape, err := polygon(vertices)
	if err != nil {
		return nil, fmt.Errorf("sdfx: polygon: %w", err)
	}
	vs := make([]r2.Vec, len(vertices))
	copy(vs, vertices)
	return &profileHandle{sketch: sk, shape: shape, vertices: vs}, nil
}

// AddFittedCurve adds a curve through points. The points must lie on a
// counter-clockwise helix whose axis is parallel to +Z.
func (b *SdfxBackend) AddFittedCurve(sketch kernel.Handle, points []r3.Vec) (kernel.Handle, error) {
	if _, ok := sketch.(*sketchHandle); !ok {
		return nil, fmt.Errorf("sdfx: fitted curve: expected sketch, got %T", sketch)
	}
	h, err := fitHelix(points)
	if err != nil {
		return nil, fmt.Errorf("sdfx: fitted curve: %w", err)
	}
	pts := make([]r3.Vec, len(points))
	copy(pts, points)
	return &curveHandle{points: pts, helix: h}, nil
}

// Extrude extrudes a profile along its sketch normal. Negative distances
// extrude backwards.
func (b *SdfxBackend) Extrude(profile kernel.Handle, distance float64, mode kernel.Operation) (kernel.Handle, error) {
	pr, ok := profile.(*profileHandle)
	if !ok {
		return nil, fmt.Errorf("sdfx: extrude: expected profile, got %T", profile)
	}
	if distance == 0 {
		return nil, fmt.Errorf("sdfx: extrude: zero distance")
	}
	local := sdf.Extrude3D(pr.shape, math.Abs(distance))
	local = sdf.Transform3D(local, sdf.Translate3d(v3.Vec{Z: distance / 2}))
	return b.apply(newFramed(pr.sketch.plane.frame, local), mode)
}

// Revolve revolves a polygon profile about axis. The profile's plane must
// contain the axis.
func (b *SdfxBackend) Revolve(profile kernel.Handle, axis kernel.Axis, angle float64, mode kernel.Operation) (kernel.Handle, error) {
	pr, ok := profile.(*profileHandle)
	if !ok {
		return nil, fmt.Errorf("sdfx: revolve: expected profile, got %T", profile)
	}
	if pr.vertices == nil {
		return nil, fmt.Errorf("sdfx: revolve: only polygon profiles can be revolved")
	}
	if r3.Norm(axis.Direction) == 0 {
		return nil, fmt.Errorf("sdfx: revolve: zero axis direction")
	}

	// Re-express the profile in (radial, axial) coordinates about the axis.
	// Radial is signed: vertices on the far side of the axis from the
	// sketch x direction are negative.
	dir := r3.Unit(axis.Direction)
	frame := pr.sketch.plane.frame
	ref := r3.Sub(frame.XAxis, r3.Scale(r3.Dot(frame.XAxis, dir), dir))
	if r3.Norm(ref) < 1e-9 {
		ref = r3.Sub(frame.YAxis(), r3.Scale(r3.Dot(frame.YAxis(), dir), dir))
	}
	ra := make([]r2.Vec, len(pr.vertices))
	for i, v := range pr.vertices {
		d := r3.Sub(frame.ToWorld(v), axis.Origin)
		axial := r3.Dot(d, dir)
		perp := r3.Sub(d, r3.Scale(axial, dir))
		radial := r3.Norm(perp)
		if r3.Dot(perp, ref) < 0 {
			radial = -radial
		}
		ra[i] = r2.Vec{X: radial, Y: axial}
	}

	// A profile reaching across the axis sweeps out the union of itself
	// and its mirror image, seen from the non-negative radial side.
	full := angle >= 2*math.Pi-1e-9
	near, far := false, false
	for _, v := range ra {
		near = near || v.X > 0
		far = far || v.X < 0
	}
	if near && far && !full {
		return nil, fmt.Errorf("sdfx: revolve: profile crosses the axis in a partial revolve")
	}
	shape, err := polygon(ra)
	if err != nil {
		return nil, fmt.Errorf("sdfx: revolve: %w", err)
	}
	if far {
		mirrored, err := polygon(mirrorRadial(ra))
		if err != nil {
			return nil, fmt.Errorf("sdfx: revolve: %w", err)
		}
		if near {
			shape = sdf.Union2D(shape, mirrored)
		} else {
			shape = mirrored
		}
	}

	var local sdf.SDF3
	if full {
		local, err = sdf.Revolve3D(shape)
	} else {
		local, err = sdf.RevolveTheta3D(shape, angle)
	}
	if err != nil {
		return nil, fmt.Errorf("sdfx: revolve: %w", err)
	}
	return b.apply(newFramed(kernel.FrameAlong(axis.Origin, dir), local), mode)
}

// Loft sweeps the station profiles along a helical centreline. Every
// profile must sit on a plane made by PlaneAtCurveFraction on centerline.
func (b *SdfxBackend) Loft(profiles []kernel.Handle, centerline kernel.Handle, mode kernel.Operation) (kernel.Handle, error) {
	c, ok := centerline.(*curveHandle)
	if !ok {
		return nil, fmt.Errorf("sdfx: loft: expected curve centreline, got %T", centerline)
	}
	if len(profiles) < 2 {
		return nil, fmt.Errorf("sdfx: loft: need at least 2 profiles, got %d", len(profiles))
	}
	stations := make([]station, len(profiles))
	for i, h := range profiles {
		pr, ok := h.(*profileHandle)
		if !ok {
			return nil, fmt.Errorf("sdfx: loft: profile %d: expected profile, got %T", i, h)
		}
		pl := pr.sketch.plane
		if pl.curve != c {
			return nil, fmt.Errorf("sdfx: loft: profile %d is not on a plane along the centreline", i)
		}
		stations[i] = station{t: pl.t, shape: pr.shape}
	}
	sweep, err := newHelixSweep(c.helix, stations)
	if err != nil {
		return nil, fmt.Errorf("sdfx: loft: %w", err)
	}
	return b.apply(sweep, mode)
}

// apply combines s with the existing bodies according to mode.
func (b *SdfxBackend) apply(s sdf.SDF3, mode kernel.Operation) (kernel.Handle, error) {
	var hits []int
	for i, bd := range b.bodies {
		if boxesOverlap(bd.s.BoundingBox(), s.BoundingBox()) {
			hits = append(hits, i)
		}
	}

	switch mode {
	case kernel.NewBody:
		return b.add(s), nil

	case kernel.Join:
		if len(hits) == 0 {
			return b.add(s), nil
		}
		parts := []sdf.SDF3{s}
		for _, i := range hits {
			parts = append(parts, b.bodies[i].s)
		}
		target := b.bodies[hits[0]]
		target.s = sdf.Union3D(parts...)
		b.removeAll(hits[1:])
		return &bodyHandle{id: target.id}, nil

	case kernel.Cut:
		if len(hits) == 0 {
			return nil, ErrNoTarget
		}
		for _, i := range hits {
			b.bodies[i].s = sdf.Difference3D(b.bodies[i].s, s)
		}
		return &bodyHandle{id: b.bodies[hits[0]].id}, nil
	}
	return nil, fmt.Errorf("sdfx: unsupported operation %s", mode)
}

func (b *SdfxBackend) add(s sdf.SDF3) kernel.Handle {
	b.nextID++
	b.bodies = append(b.bodies, &body{id: b.nextID, s: s})
	return &bodyHandle{id: b.nextID}
}

// removeAll drops the bodies at the given ascending indices.
func (b *SdfxBackend) removeAll(idx []int) {
	for k := len(idx) - 1; k >= 0; k-- {
		i := idx[k]
		b.bodies = append(b.bodies[:i], b.bodies[i+1:]...)
	}
}

// ToMesh tessellates the union of all bodies using marching cubes.
func (b *SdfxBackend) ToMesh() (*kernel.Mesh, error) {
	if len(b.bodies) == 0 {
		return nil, ErrEmpty
	}
	parts := make([]sdf.SDF3, len(b.bodies))
	for i, bd := range b.bodies {
		parts[i] = bd.s
	}
	var s sdf.SDF3 = parts[0]
	if len(parts) > 1 {
		s = sdf.Union3D(parts...)
	}

	renderer := render.NewMarchingCubesUniform(b.cells)
	triangles := render.ToTriangles(s, renderer)

	numTri := len(triangles)
	numVerts := numTri * 3

	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		n := tri.Normal()
		nx := float32(n.X)
		ny := float32(n.Y)
		nz := float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func toV3(p r3.Vec) v3.Vec { return v3.Vec{X: p.X, Y: p.Y, Z: p.Z} }
func toR3(p v3.Vec) r3.Vec { return r3.Vec{X: p.X, Y: p.Y, Z: p.Z} }

func polygon(vertices []r2.Vec) (sdf.SDF2, error) {
	if len(vertices) < 3 {
		return nil, fmt.Errorf("need at least 3 vertices, got %d", len(vertices))
	}
	vs := make([]v2.Vec, len(vertices))
	for i, v := range vertices {
		vs[i] = v2.Vec{X: v.X, Y: v.Y}
	}
	return sdf.Polygon2D(vs)
}

// mirrorRadial reflects a (radial, axial) polygon across the axis.
func mirrorRadial(ra []r2.Vec) []r2.Vec {
	out := make([]r2.Vec, len(ra))
	for i, v := range ra {
		out[i] = r2.Vec{X: -v.X, Y: v.Y}
	}
	return out
}

func boxesOverlap(a, b sdf.Box3) bool {
	return a.Min.X <= b.Max.X && b.Min.X <= a.Max.X &&
		a.Min.Y <= b.Max.Y && b.Min.Y <= a.Max.Y &&
		a.Min.Z <= b.Max.Z && b.Min.Z <= a.Max.Z
}

// framed places a local-frame SDF3 in world space. The frame is
// orthonormal so distances are preserved.
type framed struct {
	frame kernel.Plane
	s     sdf.SDF3
	bb    sdf.Box3
}

func newFramed(frame kernel.Plane, s sdf.SDF3) *framed {
	lb := s.BoundingBox()
	min := r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for i := 0; i < 8; i++ {
		c := r3.Vec{X: lb.Min.X, Y: lb.Min.Y, Z: lb.Min.Z}
		if i&1 != 0 {
			c.X = lb.Max.X
		}
		if i&2 != 0 {
			c.Y = lb.Max.Y
		}
		if i&4 != 0 {
			c.Z = lb.Max.Z
		}
		w := frame.ToWorld3(c)
		min = r3.Vec{X: math.Min(min.X, w.X), Y: math.Min(min.Y, w.Y), Z: math.Min(min.Z, w.Z)}
		max = r3.Vec{X: math.Max(max.X, w.X), Y: math.Max(max.Y, w.Y), Z: math.Max(max.Z, w.Z)}
	}
	return &framed{frame: frame, s: s, bb: sdf.Box3{Min: toV3(min), Max: toV3(max)}}
}

func (f *framed) Evaluate(p v3.Vec) float64 {
	return f.s.Evaluate(toV3(f.frame.ToLocal(toR3(p))))
}

func (f *framed) BoundingBox() sdf.Box3 {
	return f.bb
}
