// Package thread holds the dimensional model of a screw thread and the pure
// geometry derived from it: the helical path, the notch cross-section, the
// tip chamfer and the tolerance schedule used by calibration batches.
//
// Nothing in this package talks to a geometry backend. All lengths are in
// millimetres and all angles in radians.
package thread

import (
	"fmt"
	"math"
)

// Sense selects whether a thread is cut as a ridge on a shaft or a groove in
// a hole.
type Sense int

const (
	Male   Sense = iota // external thread on a shaft
	Female              // internal thread in a hole
)

func (s Sense) String() string {
	switch s {
	case Male:
		return "male"
	case Female:
		return "female"
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// ParseSense accepts "male"/"female", "m"/"f" and "external"/"internal".
func ParseSense(s string) (Sense, error) {
	switch s {
	case "male", "m", "external":
		return Male, nil
	case "female", "f", "internal":
		return Female, nil
	}
	return Male, fmt.Errorf("invalid thread sense %q, expected male or female", s)
}

// Spec is an immutable, validated set of thread dimensions. The zero value is
// not valid; construct with New or Preset.Spec.
type Spec struct {
	length        float64
	majorDiameter float64
	minorDiameter float64
	pitch         float64
	cutAngle      float64
	notchWidth    float64
	sense         Sense

	// derived once in New
	cutDepth        float64
	protrusionWidth float64
}

// New validates the given dimensions and returns a Spec with its derived
// quantities computed.
func New(length, majorDiameter, minorDiameter, pitch, cutAngle, notchWidth float64, sense Sense) (Spec, error) {
	s := Spec{
		length:        length,
		majorDiameter: majorDiameter,
		minorDiameter: minorDiameter,
		pitch:         pitch,
		cutAngle:      cutAngle,
		notchWidth:    notchWidth,
		sense:         sense,
	}
	s.cutDepth = (majorDiameter - minorDiameter) / 2
	s.protrusionWidth = notchWidth + s.cutDepth*math.Tan(cutAngle)*2
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// Validate re-checks every dimensional invariant. It returns the first
// violation as an *InvalidDimensionError.
func (s Spec) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"length", s.length},
		{"majorDiameter", s.majorDiameter},
		{"minorDiameter", s.minorDiameter},
		{"pitch", s.pitch},
		{"cutAngle", s.cutAngle},
		{"notchWidth", s.notchWidth},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &InvalidDimensionError{Field: f.name, Value: f.value, Rule: "must be finite"}
		}
	}

	switch {
	case s.minorDiameter < 0:
		return &InvalidDimensionError{Field: "minorDiameter", Value: s.minorDiameter, Rule: "must be >= 0"}
	case s.majorDiameter <= s.minorDiameter:
		return &InvalidDimensionError{Field: "majorDiameter", Value: s.majorDiameter,
			Rule: fmt.Sprintf("must be greater than minorDiameter (%g)", s.minorDiameter)}
	case s.cutAngle <= 0 || s.cutAngle >= math.Pi/2:
		return &InvalidDimensionError{Field: "cutAngle", Value: s.cutAngle, Rule: "must be in (0, pi/2)"}
	case s.notchWidth <= 0:
		return &InvalidDimensionError{Field: "notchWidth", Value: s.notchWidth, Rule: "must be > 0"}
	case s.pitch <= 0:
		return &InvalidDimensionError{Field: "pitch", Value: s.pitch, Rule: "must be > 0"}
	case s.pitch >= math.Pi*s.majorDiameter:
		return &InvalidDimensionError{Field: "pitch", Value: s.pitch,
			Rule: fmt.Sprintf("must be less than the major circumference (%g)", math.Pi*s.majorDiameter)}
	case s.length <= s.protrusionWidth/2:
		return &InvalidDimensionError{Field: "length", Value: s.length,
			Rule: fmt.Sprintf("must exceed half the protrusion width (%g)", s.protrusionWidth/2)}
	}
	return nil
}

func (s Spec) Length() float64        { return s.length }
func (s Spec) MajorDiameter() float64 { return s.majorDiameter }
func (s Spec) MinorDiameter() float64 { return s.minorDiameter }
func (s Spec) Pitch() float64         { return s.pitch }
func (s Spec) CutAngle() float64      { return s.cutAngle }
func (s Spec) NotchWidth() float64    { return s.notchWidth }
func (s Spec) Sense() Sense           { return s.sense }

// CutDepth is the radial depth of the notch: (major - minor) / 2.
func (s Spec) CutDepth() float64 { return s.cutDepth }

// ProtrusionWidth is the axial width of the notch at its base.
func (s Spec) ProtrusionWidth() float64 { return s.protrusionWidth }

// LeadAngle is the helix angle measured from the plane normal to the axis.
func (s Spec) LeadAngle() float64 {
	return math.Asin(s.pitch / (math.Pi * s.majorDiameter))
}

// WithSense returns a copy of s cut with the other sense. Dimensions are
// unchanged so no revalidation is needed.
func (s Spec) WithSense(sense Sense) Spec {
	s.sense = sense
	return s
}

// Adjusted returns a new Spec with the notch width and both diameters grown
// by the given offsets. The result is revalidated.
func (s Spec) Adjusted(o Offsets) (Spec, error) {
	return New(s.length, s.majorDiameter+o.Major, s.minorDiameter+o.Minor,
		s.pitch, s.cutAngle, s.notchWidth+o.Notch, s.sense)
}

func (s Spec) String() string {
	return fmt.Sprintf("%s L%g D%g/%g P%g A%.1f° N%g",
		s.sense, s.length, s.majorDiameter, s.minorDiameter, s.pitch,
		s.cutAngle*180/math.Pi, s.notchWidth)
}

// Degrees converts degrees to radians.
func Degrees(deg float64) float64 {
	return deg * math.Pi / 180
}
