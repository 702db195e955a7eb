package sdfx

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/chazu/threadforge/pkg/kernel"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// helixFit is a counter-clockwise helix about an axis parallel to +Z,
// parameterised by angle t in [0, tRange] measured from the first point.
type helixFit struct {
	center r2.Vec
	z0     float64
	radius float64
	rise   float64 // z per radian
	t0     float64 // angle of the first point
	tRange float64
}

func (h helixFit) point(t float64) r3.Vec {
	a := h.t0 + t
	return r3.Vec{
		X: h.center.X + h.radius*math.Cos(a),
		Y: h.center.Y + h.radius*math.Sin(a),
		Z: h.z0 + h.rise*t,
	}
}

// arc is the arc length per radian.
func (h helixFit) arc() float64 {
	return math.Hypot(h.radius, h.rise)
}

func (h helixFit) tangent(t float64) r3.Vec {
	a := h.t0 + t
	return r3.Scale(1/h.arc(), r3.Vec{X: -h.radius * math.Sin(a), Y: h.radius * math.Cos(a), Z: h.rise})
}

// frameAt is the plane normal to the helix at t with x pointing at the axis.
// Its y axis is then close to +Z.
func (h helixFit) frameAt(t float64) kernel.Plane {
	a := h.t0 + t
	return kernel.Plane{
		Origin: h.point(t),
		Normal: h.tangent(t),
		XAxis:  r3.Vec{X: -math.Cos(a), Y: -math.Sin(a)},
	}
}

// fitHelix recovers the helix through points. The axis comes from the
// circumcentre of the first three points and the rise from the total
// unwrapped angle.
func fitHelix(points []r3.Vec) (helixFit, error) {
	if len(points) < 3 {
		return helixFit{}, fmt.Errorf("need at least 3 points to fit a helix, got %d", len(points))
	}
	a, b, c := points[0], points[1], points[2]
	d := 2 * (a.X*(b.Y-c.Y) + b.X*(c.Y-a.Y) + c.X*(a.Y-b.Y))
	if math.Abs(d) < 1e-12 {
		return helixFit{}, errors.New("first points are collinear in plan view")
	}
	a2 := a.X*a.X + a.Y*a.Y
	b2 := b.X*b.X + b.Y*b.Y
	c2 := c.X*c.X + c.Y*c.Y
	center := r2.Vec{
		X: (a2*(b.Y-c.Y) + b2*(c.Y-a.Y) + c2*(a.Y-b.Y)) / d,
		Y: (a2*(c.X-b.X) + b2*(a.X-c.X) + c2*(b.X-a.X)) / d,
	}

	rel := func(p r3.Vec) r2.Vec { return r2.Vec{X: p.X - center.X, Y: p.Y - center.Y} }
	radius := r2.Norm(rel(a))
	tol := 1e-6 * math.Max(1, radius)

	var total float64
	prev := rel(a)
	for i, p := range points {
		cur := rel(p)
		if math.Abs(r2.Norm(cur)-radius) > tol {
			return helixFit{}, fmt.Errorf("point %d is off the helix cylinder", i)
		}
		if i > 0 {
			step := math.Atan2(r2.Cross(prev, cur), r2.Dot(prev, cur))
			if step <= 0 {
				return helixFit{}, fmt.Errorf("point %d does not advance counter-clockwise", i)
			}
			if p.Z <= points[i-1].Z {
				return helixFit{}, fmt.Errorf("point %d does not rise", i)
			}
			total += step
		}
		prev = cur
	}

	last := points[len(points)-1]
	return helixFit{
		center: center,
		z0:     a.Z,
		radius: radius,
		rise:   (last.Z - a.Z) / total,
		t0:     math.Atan2(a.Y-center.Y, a.X-center.X),
		tRange: total,
	}, nil
}

// station is a loft cross-section at helix parameter t, in the coordinates
// of the frame returned by frameAt(t).
type station struct {
	t     float64
	shape sdf.SDF2
}

// helixSweep is the solid swept by blending station profiles along a helix.
// A world point is mapped onto the nearest turns of the helix and measured
// against the interpolated profile there. The result is a distance bound
// rather than an exact distance, which is sufficient for meshing and
// inside tests.
type helixSweep struct {
	h        helixFit
	stations []station
	cosLead  float64
	bb       sdf.Box3
}

func newHelixSweep(h helixFit, stations []station) (*helixSweep, error) {
	st := make([]station, len(stations))
	copy(st, stations)
	sort.Slice(st, func(i, j int) bool { return st[i].t < st[j].t })

	var minX, maxY float64
	for i, s := range st {
		if s.t < -1e-9 || s.t > h.tRange+1e-9 {
			return nil, fmt.Errorf("station %d at t=%g is outside the centreline", i, s.t)
		}
		box := s.shape.BoundingBox()
		minX = math.Min(minX, box.Min.X)
		maxY = math.Max(maxY, math.Max(math.Abs(box.Min.Y), math.Abs(box.Max.Y)))
	}

	outer := h.radius - minX + maxY
	pad := 1e-3 * math.Max(1, outer)
	bb := sdf.Box3{
		Min: v3.Vec{X: h.center.X - outer - pad, Y: h.center.Y - outer - pad, Z: h.z0 - maxY - pad},
		Max: v3.Vec{X: h.center.X + outer + pad, Y: h.center.Y + outer + pad, Z: h.z0 + h.rise*h.tRange + maxY + pad},
	}
	return &helixSweep{
		h:        h,
		stations: st,
		cosLead:  h.radius / h.arc(),
		bb:       bb,
	}, nil
}

// profile returns the blended station distance at helix parameter t for
// frame coordinates (x, y). Outside the station range the end profile is
// used.
func (s *helixSweep) profile(t, x, y float64) float64 {
	p := v2.Vec{X: x, Y: y}
	n := len(s.stations)
	if t <= s.stations[0].t {
		return s.stations[0].shape.Evaluate(p)
	}
	if t >= s.stations[n-1].t {
		return s.stations[n-1].shape.Evaluate(p)
	}
	i := sort.Search(n, func(i int) bool { return s.stations[i].t > t }) - 1
	lo, hi := s.stations[i], s.stations[i+1]
	span := hi.t - lo.t
	if span <= 0 {
		return lo.shape.Evaluate(p)
	}
	w := (t - lo.t) / span
	return (1-w)*lo.shape.Evaluate(p) + w*hi.shape.Evaluate(p)
}

func (s *helixSweep) Evaluate(p v3.Vec) float64 {
	h := s.h
	dx, dy := p.X-h.center.X, p.Y-h.center.Y
	r := math.Hypot(dx, dy)
	theta := math.Mod(math.Atan2(dy, dx)-h.t0, 2*math.Pi)
	if theta < 0 {
		theta += 2 * math.Pi
	}
	zr := p.Z - h.z0
	k := math.Floor((zr/h.rise-theta)/(2*math.Pi) + 0.5)

	d := math.Inf(1)
	for turn := k - 1; turn <= k+1; turn++ {
		t := theta + 2*math.Pi*turn
		x := h.radius - r
		y := (zr - h.rise*t) * s.cosLead
		endCap := math.Max(-t, t-h.tRange) * h.arc()
		d = math.Min(d, math.Max(s.profile(t, x, y), endCap))
	}
	return d
}

func (s *helixSweep) BoundingBox() sdf.Box3 {
	return s.bb
}
