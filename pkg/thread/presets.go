package thread

import (
	"fmt"
	"sort"
	"strings"
)

// Preset is a named set of nominal thread dimensions. CutAngle is in radians.
type Preset struct {
	Name       string
	Length     float64
	Major      float64
	Minor      float64
	Pitch      float64
	CutAngle   float64
	NotchWidth float64
}

// Spec builds a validated Spec from the preset.
func (p Preset) Spec(sense Sense) (Spec, error) {
	s, err := New(p.Length, p.Major, p.Minor, p.Pitch, p.CutAngle, p.NotchWidth, sense)
	if err != nil {
		return Spec{}, fmt.Errorf("preset %q: %w", p.Name, err)
	}
	return s, nil
}

// DefaultPreset holds the dimensions used when nothing else is specified.
var DefaultPreset = Preset{Name: "default", Length: 20, Major: 11, Minor: 10, Pitch: 2, CutAngle: Degrees(30), NotchWidth: 0.5}

// Built-in British Standard Pipe (parallel) sizes.
var builtinPresets = []Preset{
	{Name: "G 1/4", Length: 9, Major: 13.16, Minor: 11.44, Pitch: 1.34, CutAngle: Degrees(27.5), NotchWidth: 0.2},
	{Name: "G 1/8", Length: 9, Major: 9.73, Minor: 8.57, Pitch: 0.91, CutAngle: Degrees(27.5), NotchWidth: 0.2},
}

// Catalog is a name-indexed collection of presets. Names are matched
// case-insensitively with surrounding space ignored. A Catalog is not safe
// for concurrent mutation.
type Catalog struct {
	presets map[string]Preset
}

// NewCatalog returns a catalog holding the built-in presets.
func NewCatalog() *Catalog {
	c := &Catalog{presets: make(map[string]Preset, len(builtinPresets))}
	for _, p := range builtinPresets {
		c.presets[catalogKey(p.Name)] = p
	}
	return c
}

func catalogKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Add registers p, replacing any preset with the same name. The preset's
// dimensions must form a valid male Spec.
func (c *Catalog) Add(p Preset) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("preset name must not be empty")
	}
	if _, err := p.Spec(Male); err != nil {
		return err
	}
	c.presets[catalogKey(p.Name)] = p
	return nil
}

// Lookup returns the preset with the given name.
func (c *Catalog) Lookup(name string) (Preset, error) {
	p, ok := c.presets[catalogKey(name)]
	if !ok {
		return Preset{}, &PresetNotFoundError{Name: name}
	}
	return p, nil
}

// Presets returns all presets sorted by name.
func (c *Catalog) Presets() []Preset {
	out := make([]Preset, 0, len(c.presets))
	for _, p := range c.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the preset names sorted.
func (c *Catalog) Names() []string {
	ps := c.Presets()
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

// Clone returns an independent copy of c.
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{presets: make(map[string]Preset, len(c.presets))}
	for k, p := range c.presets {
		out.presets[k] = p
	}
	return out
}
