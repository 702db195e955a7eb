// Package params is the ordered registry of user-facing thread parameters.
// Each parameter has a stable ID, a display name, a flag/config key and a
// kind. The registry binds parameters to command-line flags and turns a set
// of values into a thread spec or a calibration request.
package params

import (
	"fmt"
	"math"
	"strings"

	"github.com/chazu/threadforge/pkg/thread"
	"github.com/spf13/pflag"
)

// Kind is the input type of a parameter.
type Kind int

const (
	Dimension Kind = iota // real value with a unit
	Bool
	Slider // bounded integer
	Choice // one of a fixed set of strings, or empty
)

func (k Kind) String() string {
	switch k {
	case Dimension:
		return "dimension"
	case Bool:
		return "bool"
	case Slider:
		return "slider"
	case Choice:
		return "choice"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Parameter IDs.
const (
	LengthID            = "lengthId"
	MajorDiameterID     = "majorDiameterId"
	MinorDiameterID     = "minorDiameterId"
	PitchID             = "pitchId"
	CutAngleID          = "cutAngleId"
	NotchWidthID        = "notchWidthId"
	IsMaleID            = "isMaleId"
	GenerationCountID   = "generationCountId"
	MajorDiameterStepID = "majorDiameterStepId"
	MinorDiameterStepID = "minorDiameterStepId"
	NotchWidthStepID    = "notchWidthStepId"
	PresetID            = "presetId"
)

// Values holds one value per registered parameter. CutAngle is in degrees.
type Values struct {
	Length          float64 `koanf:"length" yaml:"length"`
	MajorDiameter   float64 `koanf:"major_diameter" yaml:"major_diameter"`
	MinorDiameter   float64 `koanf:"minor_diameter" yaml:"minor_diameter"`
	Pitch           float64 `koanf:"pitch" yaml:"pitch"`
	CutAngle        float64 `koanf:"cut_angle" yaml:"cut_angle"`
	NotchWidth      float64 `koanf:"notch_width" yaml:"notch_width"`
	Male            bool    `koanf:"male" yaml:"male"`
	GenerationCount int     `koanf:"generation_count" yaml:"generation_count"`
	MajorStep       float64 `koanf:"major_diameter_step" yaml:"major_diameter_step"`
	MinorStep       float64 `koanf:"minor_diameter_step" yaml:"minor_diameter_step"`
	NotchStep       float64 `koanf:"notch_width_step" yaml:"notch_width_step"`
	Preset          string  `koanf:"preset" yaml:"preset"`
}

// Param describes one parameter.
type Param struct {
	ID    string
	Name  string
	Key   string // flag name; the config key uses underscores
	Kind  Kind
	Unit  string
	Min   int // sliders only
	Max   int
	Usage string

	field func(*Values) any
}

// ConfigKey returns the key used in config files and environment variables.
func (p Param) ConfigKey() string {
	return strings.ReplaceAll(p.Key, "-", "_")
}

// Ptr returns a pointer to the field of v that backs p: *float64, *bool,
// *int or *string depending on Kind.
func (p Param) Ptr(v *Values) any {
	return p.field(v)
}

// Registry is an ordered set of parameters.
type Registry struct {
	params  []Param
	byKey   map[string]int
	choices map[string][]string
}

// New returns the registry of thread parameters. Preset names offered by
// the preset choice come from catalog.
func New(catalog *thread.Catalog) *Registry {
	r := &Registry{byKey: map[string]int{}, choices: map[string][]string{}}
	dim := func(id, name, key, unit, usage string, f func(*Values) *float64) {
		r.add(Param{ID: id, Name: name, Key: key, Kind: Dimension, Unit: unit, Usage: usage,
			field: func(v *Values) any { return f(v) }})
	}

	dim(LengthID, "Length", "length", "mm", "thread length along the axis",
		func(v *Values) *float64 { return &v.Length })
	dim(MajorDiameterID, "Major Diameter", "major-diameter", "mm", "crest diameter",
		func(v *Values) *float64 { return &v.MajorDiameter })
	dim(MinorDiameterID, "Minor Diameter", "minor-diameter", "mm", "root diameter",
		func(v *Values) *float64 { return &v.MinorDiameter })
	dim(PitchID, "Pitch", "pitch", "mm", "axial advance per turn",
		func(v *Values) *float64 { return &v.Pitch })
	dim(CutAngleID, "Cut Angle", "cut-angle", "deg", "flank angle",
		func(v *Values) *float64 { return &v.CutAngle })
	dim(NotchWidthID, "Notch Width", "notch-width", "mm", "flat width at the root",
		func(v *Values) *float64 { return &v.NotchWidth })
	r.add(Param{ID: IsMaleID, Name: "Male", Key: "male", Kind: Bool,
		Usage: "cut a male thread on a shaft; false cuts a female thread in a hole",
		field: func(v *Values) any { return &v.Male }})
	r.add(Param{ID: GenerationCountID, Name: "Generation Count", Key: "generation-count", Kind: Slider,
		Min: 1, Max: 10, Usage: "number of calibration samples",
		field: func(v *Values) any { return &v.GenerationCount }})
	dim(MajorDiameterStepID, "Major Diameter Step", "major-diameter-step", "mm", "major diameter increment per calibration step",
		func(v *Values) *float64 { return &v.MajorStep })
	dim(MinorDiameterStepID, "Minor Diameter Step", "minor-diameter-step", "mm", "minor diameter increment per calibration step",
		func(v *Values) *float64 { return &v.MinorStep })
	dim(NotchWidthStepID, "Notch Width Step", "notch-width-step", "mm", "notch width increment per calibration step",
		func(v *Values) *float64 { return &v.NotchStep })
	r.add(Param{ID: PresetID, Name: "Preset", Key: "preset", Kind: Choice,
		Usage: "start from a named preset; explicit dimension flags still win",
		field: func(v *Values) any { return &v.Preset }})
	r.choices[PresetID] = catalog.Names()
	return r
}

func (r *Registry) add(p Param) {
	r.byKey[p.Key] = len(r.params)
	r.params = append(r.params, p)
}

// Params returns the parameters in registration order.
func (r *Registry) Params() []Param {
	out := make([]Param, len(r.params))
	copy(out, r.params)
	return out
}

// Lookup finds a parameter by flag key or ID.
func (r *Registry) Lookup(keyOrID string) (Param, bool) {
	if i, ok := r.byKey[keyOrID]; ok {
		return r.params[i], true
	}
	for _, p := range r.params {
		if p.ID == keyOrID {
			return p, true
		}
	}
	return Param{}, false
}

// Choices returns the allowed values of a Choice parameter.
func (r *Registry) Choices(id string) []string {
	return r.choices[id]
}

// Defaults returns the initial parameter values.
func Defaults() Values {
	d := thread.DefaultPreset
	return Values{
		Length:          d.Length,
		MajorDiameter:   d.Major,
		MinorDiameter:   d.Minor,
		Pitch:           d.Pitch,
		CutAngle:        d.CutAngle * 180 / math.Pi,
		NotchWidth:      d.NotchWidth,
		Male:            true,
		GenerationCount: 1,
	}
}

// BindFlags registers one flag per parameter on fs, bound to the fields of
// v. The current contents of v become the flag defaults.
func (r *Registry) BindFlags(fs *pflag.FlagSet, v *Values) {
	for _, p := range r.params {
		usage := p.Usage
		if p.Unit != "" {
			usage = fmt.Sprintf("%s (%s)", usage, p.Unit)
		}
		if p.Kind == Slider {
			usage = fmt.Sprintf("%s [%d..%d]", usage, p.Min, p.Max)
		}
		if cs := r.choices[p.ID]; len(cs) > 0 {
			usage = fmt.Sprintf("%s (one of %q)", usage, cs)
		}
		switch ptr := p.Ptr(v).(type) {
		case *float64:
			fs.Float64Var(ptr, p.Key, *ptr, usage)
		case *bool:
			fs.BoolVar(ptr, p.Key, *ptr, usage)
		case *int:
			fs.IntVar(ptr, p.Key, *ptr, usage)
		case *string:
			fs.StringVar(ptr, p.Key, *ptr, usage)
		}
	}
}

// Validate checks slider ranges and choice membership. Dimensions are
// validated when a spec is built from them.
func (r *Registry) Validate(v Values) error {
	for _, p := range r.params {
		switch p.Kind {
		case Slider:
			n := *p.Ptr(&v).(*int)
			if n < p.Min || n > p.Max {
				return fmt.Errorf("%s: %d outside [%d, %d]", p.Name, n, p.Min, p.Max)
			}
		case Choice:
			s := *p.Ptr(&v).(*string)
			if s == "" {
				continue
			}
			found := false
			for _, c := range r.choices[p.ID] {
				if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(s)) {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("%s: %q is not one of %q", p.Name, s, r.choices[p.ID])
			}
		}
	}
	return nil
}

// ApplyPreset copies p's dimensions into v for every dimension parameter
// for which explicit reports false. Pass pflag.FlagSet.Changed to let flags
// given on the command line win over the preset.
func (r *Registry) ApplyPreset(v *Values, p thread.Preset, explicit func(key string) bool) {
	from := map[string]float64{
		LengthID:        p.Length,
		MajorDiameterID: p.Major,
		MinorDiameterID: p.Minor,
		PitchID:         p.Pitch,
		CutAngleID:      p.CutAngle * 180 / math.Pi,
		NotchWidthID:    p.NotchWidth,
	}
	for _, prm := range r.params {
		val, ok := from[prm.ID]
		if !ok || (explicit != nil && explicit(prm.Key)) {
			continue
		}
		*prm.Ptr(v).(*float64) = val
	}
}

// Overlay copies into dst the value of every parameter of src whose key
// changed reports true.
func (r *Registry) Overlay(dst *Values, src Values, changed func(key string) bool) {
	for _, p := range r.params {
		if !changed(p.Key) {
			continue
		}
		switch from := p.Ptr(&src).(type) {
		case *float64:
			*p.Ptr(dst).(*float64) = *from
		case *bool:
			*p.Ptr(dst).(*bool) = *from
		case *int:
			*p.Ptr(dst).(*int) = *from
		case *string:
			*p.Ptr(dst).(*string) = *from
		}
	}
}

// Sense returns the thread sense selected by v.
func (v Values) Sense() thread.Sense {
	if v.Male {
		return thread.Male
	}
	return thread.Female
}

// Spec builds the thread spec described by v.
func (v Values) Spec() (thread.Spec, error) {
	return thread.New(v.Length, v.MajorDiameter, v.MinorDiameter, v.Pitch,
		thread.Degrees(v.CutAngle), v.NotchWidth, v.Sense())
}

// Steps returns the calibration tolerance steps in v.
func (v Values) Steps() thread.Steps {
	return thread.Steps{Notch: v.NotchStep, Major: v.MajorStep, Minor: v.MinorStep}
}
