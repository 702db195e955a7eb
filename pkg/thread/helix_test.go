package thread

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestGenerateHelixReferenceThread(t *testing.T) {
	s := gQuarter(t, Male)
	origin := r3.Vec{X: 5, Y: -3, Z: 1}

	pts, err := GenerateHelix(s, origin)
	require.NoError(t, err)

	angle := math.Asin(1.34 / (math.Pi * 13.16))
	c := math.Tan(angle) * 13.16 / 2
	tRange := (9 - s.ProtrusionWidth()/2) / c
	assert.Len(t, pts, int(3*tRange/math.Pi*2))

	first := pts[0]
	assert.InDelta(t, origin.X+13.16/2, first.X, 1e-9)
	assert.InDelta(t, origin.Y, first.Y, 1e-9)
	assert.InDelta(t, origin.Z+s.ProtrusionWidth()/2, first.Z, 1e-9)

	// The path ends exactly at the top of the thread.
	last := pts[len(pts)-1]
	assert.InDelta(t, origin.Z+9, last.Z, 1e-9)

	for i, p := range pts {
		r := math.Hypot(p.X-origin.X, p.Y-origin.Y)
		assert.InDelta(t, 13.16/2, r, 1e-9, "point %d off radius", i)
		if i > 0 {
			assert.Greater(t, p.Z, pts[i-1].Z, "z not increasing at %d", i)
		}
	}
}

func TestHelixLeadMatchesPitch(t *testing.T) {
	s := gQuarter(t, Male)
	h, err := HelixFor(s, r3.Vec{})
	require.NoError(t, err)

	// Lead is pitch/cos(angle), which stays within a micron of pitch here.
	assert.InDelta(t, 1.34/math.Cos(s.LeadAngle()), h.Lead(), 1e-9)
	assert.InDelta(t, 1.34, h.Lead(), 0.001)
}

func TestGenerateHelixClampsToTwoPoints(t *testing.T) {
	s, err := New(0.601, 11, 10, 1, math.Pi/4, 0.2, Male)
	require.NoError(t, err)

	pts, err := GenerateHelix(s, r3.Vec{})
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Greater(t, pts[1].Z, pts[0].Z)
}

func TestGenerateHelixDegenerate(t *testing.T) {
	// Bypass New to reach the guard directly.
	s := Spec{length: 0.4, majorDiameter: 11, minorDiameter: 10, pitch: 1, cutAngle: 0.5, notchWidth: 0.5, protrusionWidth: 1}

	_, err := GenerateHelix(s, r3.Vec{})
	var degErr *DegenerateHelixError
	require.True(t, errors.As(err, &degErr), "expected DegenerateHelixError, got %v", err)
	assert.InDelta(t, -0.1, degErr.Usable, 1e-12)
}

func TestHelixForRejectsTooManyPoints(t *testing.T) {
	s, err := New(1e12, 11, 10, 1, math.Pi/4, 0.2, Male)
	require.NoError(t, err)

	_, err = HelixFor(s, r3.Vec{})
	var degErr *DegenerateHelixError
	require.ErrorAs(t, err, &degErr)
	assert.Contains(t, degErr.Reason, "more than")

	_, err = GenerateHelix(s, r3.Vec{})
	assert.ErrorAs(t, err, &degErr)
}
