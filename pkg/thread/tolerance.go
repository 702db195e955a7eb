package thread

import "math"

// Each dimension starts growing at a different generation index and then
// grows every third generation, so neighbouring samples differ in one
// dimension at a time.
const (
	notchFromStep = 1
	majorFromStep = 2
	minorFromStep = 3
	stepPeriod    = 3
)

// Steps are the per-increment tolerance deltas of a calibration batch.
type Steps struct {
	Notch float64
	Major float64
	Minor float64
}

// Offsets are the cumulative adjustments applied to one batch sample.
type Offsets struct {
	Notch float64
	Major float64
	Minor float64
}

// IsZero reports whether no dimension is adjusted.
func (o Offsets) IsZero() bool {
	return o.Notch == 0 && o.Major == 0 && o.Minor == 0
}

// OffsetsFor returns the tolerance offsets of the sample at index.
func OffsetsFor(index int, steps Steps) Offsets {
	return Offsets{
		Notch: offsetFor(index, notchFromStep, steps.Notch),
		Major: offsetFor(index, majorFromStep, steps.Major),
		Minor: offsetFor(index, minorFromStep, steps.Minor),
	}
}

func offsetFor(index, fromStep int, step float64) float64 {
	n := math.Floor(float64(index-fromStep)/stepPeriod) + 1
	return math.Max(0, n) * step
}
