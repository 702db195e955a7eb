package thread

import (
	"errors"
	"fmt"
)

// InvalidDimensionError reports a thread dimension that violates one of the
// Spec invariants.
type InvalidDimensionError struct {
	Field string
	Value float64
	Rule  string
}

func (e *InvalidDimensionError) Error() string {
	return fmt.Sprintf("invalid thread dimension %s=%g: %s", e.Field, e.Value, e.Rule)
}

// DegenerateHelixError reports a helix that cannot be sampled into at least
// two points.
type DegenerateHelixError struct {
	Reason string
	Usable float64 // usable axial length after the protrusion shift
	Points int
}

func (e *DegenerateHelixError) Error() string {
	return fmt.Sprintf("degenerate helix: %s (usable length %g, %d points)", e.Reason, e.Usable, e.Points)
}

// PresetNotFoundError is returned by Catalog.Lookup for unknown names.
type PresetNotFoundError struct {
	Name string
}

func (e *PresetNotFoundError) Error() string {
	return fmt.Sprintf("thread preset %q not found", e.Name)
}

// ErrFemaleChamfer is returned when a tip chamfer is requested for an
// internal thread. Only external threads are chamfered.
var ErrFemaleChamfer = errors.New("tip chamfer is only defined for male threads")
