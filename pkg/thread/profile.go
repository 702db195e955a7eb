package thread

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// StationInterval is the index spacing between profile stations.
const StationInterval = 10

// ProfileEpsilon pushes the notch tip just past the minor diameter so the
// loft overlaps the shaft rather than touching it.
const ProfileEpsilon = 0.001

// Station is a point along the helix where a cross-section is placed.
type Station struct {
	Index    int
	Fraction float64 // Index/(pathLen-1), in [0, 1]
}

// SampleStations returns stations at indices 0, 10, 20, ... plus the last
// index when it is not already included. pathLen must be at least 2.
func SampleStations(pathLen int) []Station {
	if pathLen < 2 {
		return nil
	}
	last := pathLen - 1
	var out []Station
	for i := 0; i < pathLen; i += StationInterval {
		out = append(out, Station{Index: i, Fraction: float64(i) / float64(last)})
	}
	if out[len(out)-1].Index != last {
		out = append(out, Station{Index: last, Fraction: 1})
	}
	return out
}

// NotchProfile is the trapezoidal thread cross-section in station-local
// coordinates. Local X runs from the helix toward the thread axis; local Y
// runs across the ridge along the axial direction.
type NotchProfile struct {
	Vertices [4]r2.Vec
}

// BuildNotchProfile returns the closed quad for spec. The narrow edge of
// width notchWidth sits on the helix and the wide edge of width
// protrusionWidth sits at depth cutDepth+ProfileEpsilon.
func BuildNotchProfile(spec Spec) NotchProfile {
	nw := spec.NotchWidth() / 2
	pw := spec.ProtrusionWidth() / 2
	d := spec.CutDepth() + ProfileEpsilon
	return NotchProfile{Vertices: [4]r2.Vec{
		{X: 0, Y: nw},
		{X: d, Y: pw},
		{X: d, Y: -pw},
		{X: 0, Y: -nw},
	}}
}

// Loop returns the vertices as a slice in drawing order.
func (p NotchProfile) Loop() []r2.Vec {
	out := make([]r2.Vec, len(p.Vertices))
	copy(out, p.Vertices[:])
	return out
}
