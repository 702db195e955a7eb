package params

import (
	"testing"

	"github.com/chazu/threadforge/pkg/thread"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOrderAndIDs(t *testing.T) {
	r := New(thread.NewCatalog())
	var ids []string
	for _, p := range r.Params() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{
		LengthID, MajorDiameterID, MinorDiameterID, PitchID, CutAngleID, NotchWidthID,
		IsMaleID, GenerationCountID, MajorDiameterStepID, MinorDiameterStepID, NotchWidthStepID,
		PresetID,
	}, ids)

	p, ok := r.Lookup("cut-angle")
	require.True(t, ok)
	assert.Equal(t, "deg", p.Unit)
	assert.Equal(t, "cut_angle", p.ConfigKey())

	p, ok = r.Lookup(GenerationCountID)
	require.True(t, ok)
	assert.Equal(t, Slider, p.Kind)
	assert.Equal(t, 1, p.Min)
	assert.Equal(t, 10, p.Max)

	_, ok = r.Lookup("diameter")
	assert.False(t, ok)
}

func TestDefaultsBuildDefaultSpec(t *testing.T) {
	v := Defaults()
	assert.InDelta(t, 30, v.CutAngle, 1e-9)
	assert.Equal(t, 1, v.GenerationCount)
	assert.True(t, v.Male)

	s, err := v.Spec()
	require.NoError(t, err)
	assert.Equal(t, 20.0, s.Length())
	assert.InDelta(t, 0.5, s.CutDepth(), 1e-12)
	assert.Equal(t, thread.Male, s.Sense())
	assert.Equal(t, thread.Steps{}, v.Steps())
}

func TestBindFlags(t *testing.T) {
	r := New(thread.NewCatalog())
	v := Defaults()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	r.BindFlags(fs, &v)

	require.NoError(t, fs.Parse([]string{
		"--pitch=1.5", "--male=false", "--generation-count=4",
		"--notch-width-step=0.05", "--preset", "G 1/8",
	}))
	assert.Equal(t, 1.5, v.Pitch)
	assert.False(t, v.Male)
	assert.Equal(t, thread.Female, v.Sense())
	assert.Equal(t, 4, v.GenerationCount)
	assert.Equal(t, thread.Steps{Notch: 0.05}, v.Steps())
	assert.Equal(t, "G 1/8", v.Preset)
	assert.Equal(t, 20.0, v.Length, "untouched flags keep their defaults")

	f := fs.Lookup("cut-angle")
	require.NotNil(t, f)
	assert.Contains(t, f.Usage, "(deg)")
	assert.Contains(t, fs.Lookup("generation-count").Usage, "[1..10]")
}

func TestValidate(t *testing.T) {
	r := New(thread.NewCatalog())
	tests := []struct {
		name    string
		mutate  func(*Values)
		wantErr string
	}{
		{"defaults", func(*Values) {}, ""},
		{"count too low", func(v *Values) { v.GenerationCount = 0 }, "Generation Count"},
		{"count too high", func(v *Values) { v.GenerationCount = 11 }, "outside"},
		{"known preset", func(v *Values) { v.Preset = "g 1/4" }, ""},
		{"unknown preset", func(v *Values) { v.Preset = "M6" }, "not one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Defaults()
			tt.mutate(&v)
			err := r.Validate(v)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyPresetKeepsExplicitFlags(t *testing.T) {
	c := thread.NewCatalog()
	r := New(c)
	p, err := c.Lookup("G 1/4")
	require.NoError(t, err)

	v := Defaults()
	v.Length = 12
	r.ApplyPreset(&v, p, func(key string) bool { return key == "length" })

	assert.Equal(t, 12.0, v.Length)
	assert.Equal(t, 13.16, v.MajorDiameter)
	assert.Equal(t, 11.44, v.MinorDiameter)
	assert.InDelta(t, 27.5, v.CutAngle, 1e-9)

	s, err := v.Spec()
	require.NoError(t, err)
	assert.InDelta(t, thread.Degrees(27.5), s.CutAngle(), 1e-12)

	all := Defaults()
	r.ApplyPreset(&all, p, nil)
	assert.Equal(t, 9.0, all.Length)
}

func TestOverlayCopiesChangedKeys(t *testing.T) {
	r := New(thread.NewCatalog())
	dst := Defaults()
	src := Values{Length: 7, Pitch: 3, Male: false, GenerationCount: 5, Preset: "G 1/8"}
	changed := map[string]bool{"pitch": true, "male": true, "generation-count": true, "preset": true}
	r.Overlay(&dst, src, func(key string) bool { return changed[key] })

	assert.Equal(t, 3.0, dst.Pitch)
	assert.False(t, dst.Male)
	assert.Equal(t, 5, dst.GenerationCount)
	assert.Equal(t, "G 1/8", dst.Preset)
	assert.Equal(t, 20.0, dst.Length)
}

func TestSpecReportsInvalidDimensions(t *testing.T) {
	v := Defaults()
	v.MinorDiameter = v.MajorDiameter
	_, err := v.Spec()
	var dimErr *thread.InvalidDimensionError
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, "majorDiameter", dimErr.Field)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "dimension", Dimension.String())
	assert.Equal(t, "choice", Choice.String())
	assert.Equal(t, "Kind(9)", Kind(9).String())
}
