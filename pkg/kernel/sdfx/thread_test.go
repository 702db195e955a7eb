package sdfx_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/chazu/threadforge/pkg/execute"
	"github.com/chazu/threadforge/pkg/feature"
	"github.com/chazu/threadforge/pkg/kernel/sdfx"
	"github.com/chazu/threadforge/pkg/thread"
	"gonum.org/v1/gonum/spatial/r3"
)

func quarterInch(t *testing.T, sense thread.Sense) thread.Spec {
	t.Helper()
	s, err := thread.New(9, 13.16, 11.44, 1.34, thread.Degrees(27.5), 0.2, sense)
	if err != nil {
		t.Fatalf("thread.New: %v", err)
	}
	return s
}

// ridgeAndGroove returns a point 0.2 inside the major radius on the thread
// crest two turns up, and the point half a lead above it.
func ridgeAndGroove(t *testing.T, spec thread.Spec) (ridge, groove r3.Vec) {
	t.Helper()
	h, err := thread.HelixFor(spec, r3.Vec{})
	if err != nil {
		t.Fatalf("HelixFor: %v", err)
	}
	crest := h.Point(4 * math.Pi)
	scale := (h.Radius - 0.2) / h.Radius
	ridge = r3.Vec{X: crest.X * scale, Y: crest.Y * scale, Z: crest.Z}
	groove = r3.Add(ridge, r3.Vec{Z: h.Lead() / 2})
	return ridge, groove
}

func build(t *testing.T, spec thread.Spec) *sdfx.SdfxBackend {
	t.Helper()
	p, err := feature.Build(spec, r3.Vec{}, feature.WithBlank())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	b := sdfx.New(sdfx.WithMeshCells(48))
	if _, err := execute.New().Run(p, b); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return b
}

func TestMaleThreadGeometry(t *testing.T) {
	spec := quarterInch(t, thread.Male)
	b := build(t, spec)
	if b.Bodies() != 1 {
		t.Fatalf("bodies = %d, want 1", b.Bodies())
	}
	ridge, groove := ridgeAndGroove(t, spec)

	tests := []struct {
		name   string
		p      r3.Vec
		inside bool
	}{
		{"shaft core", r3.Vec{Z: 4}, true},
		{"thread ridge", ridge, true},
		{"between ridges", groove, false},
		{"beyond major", r3.Vec{X: 7, Z: 4}, false},
		{"chamfered tip edge", r3.Vec{X: 5.6, Z: 8.95}, false},
		{"tip centre", r3.Vec{X: 3, Z: 8.95}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := b.Evaluate(tt.p)
			if (d < 0) != tt.inside {
				t.Errorf("Evaluate(%v) = %v, inside want %v", tt.p, d, tt.inside)
			}
		})
	}
}

func TestSmallMinorChamferCutsTipCentre(t *testing.T) {
	// The chamfer triangle for this spec reaches past the axis.
	spec, err := thread.New(5, 2, 0.2, 0.5, thread.Degrees(30), 0.2, thread.Male)
	if err != nil {
		t.Fatalf("thread.New: %v", err)
	}
	ch, err := thread.BuildChamfer(spec, r3.Vec{})
	if err != nil {
		t.Fatalf("BuildChamfer: %v", err)
	}
	if ch.Triangle[0].X >= 0 {
		t.Fatalf("chamfer triangle %v does not cross the axis", ch.Triangle)
	}

	b := build(t, spec)
	for _, p := range []r3.Vec{{Z: 4.9}, {X: 0.05, Z: 4.95}, {Y: 0.05, Z: 4.95}} {
		if d := b.Evaluate(p); d <= 0 {
			t.Errorf("Evaluate(%v) = %v, want the chamfered tip empty", p, d)
		}
	}
}

func TestFemaleThreadGeometry(t *testing.T) {
	spec := quarterInch(t, thread.Female)
	b := build(t, spec)
	ridge, groove := ridgeAndGroove(t, spec)

	tests := []struct {
		name   string
		p      r3.Vec
		inside bool
	}{
		{"bore", r3.Vec{Z: 4}, false},
		{"cut groove", ridge, false},
		{"thread land", groove, true},
		{"blank wall", r3.Vec{X: 6.7, Z: 4}, true},
		{"above blank", r3.Vec{X: 6.7, Z: 8.95}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := b.Evaluate(tt.p)
			if (d < 0) != tt.inside {
				t.Errorf("Evaluate(%v) = %v, inside want %v", tt.p, d, tt.inside)
			}
		})
	}
}

func TestThreadMeshToSTL(t *testing.T) {
	b := build(t, quarterInch(t, thread.Male))
	mesh, err := b.ToMesh()
	if err != nil {
		t.Fatalf("ToMesh: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	min, max := mesh.Bounds()
	if max[2] > 9.5 || min[2] < -0.5 {
		t.Errorf("z bounds = [%v, %v], want within the thread length", min[2], max[2])
	}
	if max[0] > 7.2 {
		t.Errorf("max x = %v exceeds the major radius", max[0])
	}

	var buf bytes.Buffer
	if err := mesh.WriteSTL(&buf); err != nil {
		t.Fatalf("WriteSTL: %v", err)
	}
	if want := 84 + 50*mesh.TriangleCount(); buf.Len() != want {
		t.Errorf("STL size = %d, want %d", buf.Len(), want)
	}
}
