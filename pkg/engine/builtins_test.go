package engine

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/chazu/threadforge/pkg/thread"
	zygo "github.com/glycerine/zygomys/zygo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(preset :length 9)`,
			expect: `(preset "__kw_length" 9)`,
		},
		{
			name:   "multiple keywords",
			input:  `(thread :major 13.16 :minor 11.44)`,
			expect: `(thread "__kw_major" 13.16 "__kw_minor" 11.44)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(def-preset "a" :notch-width 0.2)`,
			expect: `(def_preset "a" "__kw_notch-width" 0.2)`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative literal preserved",
			input:  `(vec3 -5 0 0)`,
			expect: `(vec3 -5 0 0)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "preset name with slash preserved",
			input:  `(preset "G 1/4")`,
			expect: `(preset "G 1/4")`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Builtin tests
// ---------------------------------------------------------------------------

// mustEval evaluates source and fails on any error.
func mustEval(t *testing.T, eng *Engine, source string) *Program {
	t.Helper()
	p, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if p == nil {
		t.Fatal("expected non-nil program")
	}
	return p
}

// evalFails evaluates source and returns the joined eval error messages.
func evalFails(t *testing.T, eng *Engine, source string) string {
	t.Helper()
	p, evalErrs, err := eng.Evaluate(source)
	if err != nil {
		t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
	}
	if p != nil {
		t.Fatal("expected nil program on eval error")
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected eval errors")
	}
	var msgs []string
	for _, e := range evalErrs {
		msgs = append(msgs, e.Message)
	}
	return strings.Join(msgs, "; ")
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestThreadFromPreset(t *testing.T) {
	p := mustEval(t, NewEngine(), `(thread :preset "G 1/4")`)
	if len(p.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(p.Jobs))
	}
	j := p.Jobs[0]
	if j.Kind != JobThread {
		t.Errorf("Kind = %s, want thread", j.Kind)
	}
	s := j.Spec
	if s.Length() != 9 || s.MajorDiameter() != 13.16 || s.MinorDiameter() != 11.44 || s.Pitch() != 1.34 {
		t.Errorf("unexpected dimensions: %s", s)
	}
	if !near(s.CutAngle(), thread.Degrees(27.5)) {
		t.Errorf("CutAngle = %v", s.CutAngle())
	}
	if s.Sense() != thread.Male {
		t.Errorf("Sense = %s, want male", s.Sense())
	}
	if j.Origin != (r3.Vec{}) {
		t.Errorf("Origin = %v, want zero", j.Origin)
	}
}

func TestThreadDefaultsAndOverrides(t *testing.T) {
	p := mustEval(t, NewEngine(), `
(thread :length 12 :cut-angle 45 :sense :female :at (vec3 1 -2 3))
`)
	s := p.Jobs[0].Spec
	if s.Length() != 12 {
		t.Errorf("Length = %v, want 12", s.Length())
	}
	if s.MajorDiameter() != thread.DefaultPreset.Major || s.NotchWidth() != thread.DefaultPreset.NotchWidth {
		t.Errorf("defaults not applied: %s", s)
	}
	if !near(s.CutAngle(), math.Pi/4) {
		t.Errorf("CutAngle = %v, want pi/4", s.CutAngle())
	}
	if s.Sense() != thread.Female {
		t.Errorf("Sense = %s, want female", s.Sense())
	}
	if want := (r3.Vec{X: 1, Y: -2, Z: 3}); p.Jobs[0].Origin != want {
		t.Errorf("Origin = %v, want %v", p.Jobs[0].Origin, want)
	}
}

func TestDefPreset(t *testing.T) {
	p := mustEval(t, NewEngine(), `
;; A longer G 1/4 for deep bosses.
(def deep (def-preset "G 1/4 long" :preset "G 1/4" :length 15))
(thread :preset deep)
(thread :preset "g 1/4 LONG" :sense :female)
`)
	if _, err := p.Presets.Lookup("G 1/4 long"); err != nil {
		t.Fatalf("preset not registered: %v", err)
	}
	if len(p.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(p.Jobs))
	}
	for i, j := range p.Jobs {
		if j.Spec.Length() != 15 || j.Spec.MajorDiameter() != 13.16 {
			t.Errorf("job %d: unexpected dimensions %s", i, j.Spec)
		}
	}
	if p.Jobs[1].Spec.Sense() != thread.Female {
		t.Error("second job should be female")
	}
}

func TestCalibrate(t *testing.T) {
	p := mustEval(t, NewEngine(), `
(calibrate :preset (preset "G 1/8") :count 6
           :notch-step 0.05 :major-step 0.1 :minor-step 0.2
           :at (vec3 0 10 0))
`)
	j := p.Jobs[0]
	if j.Kind != JobCalibrate {
		t.Fatalf("Kind = %s, want calibrate", j.Kind)
	}
	if j.Count != 6 {
		t.Errorf("Count = %d, want 6", j.Count)
	}
	want := thread.Steps{Notch: 0.05, Major: 0.1, Minor: 0.2}
	if j.Steps != want {
		t.Errorf("Steps = %+v, want %+v", j.Steps, want)
	}
	if j.Spec.MajorDiameter() != 9.73 {
		t.Errorf("base major = %v, want 9.73", j.Spec.MajorDiameter())
	}
	if j.Origin.Y != 10 {
		t.Errorf("Origin = %v", j.Origin)
	}
}

func TestCalibrateDefaultsToOneSample(t *testing.T) {
	p := mustEval(t, NewEngine(), `(calibrate)`)
	if p.Jobs[0].Count != 1 {
		t.Errorf("Count = %d, want 1", p.Jobs[0].Count)
	}
	if p.Jobs[0].Steps != (thread.Steps{}) {
		t.Errorf("Steps = %+v, want zero", p.Jobs[0].Steps)
	}
}

func TestJobsKeepCallOrder(t *testing.T) {
	p := mustEval(t, NewEngine(), `
(thread :preset "G 1/8")
(calibrate :preset "G 1/4" :count 2)
(thread :preset "G 1/4" :sense :female)
`)
	kinds := []JobKind{JobThread, JobCalibrate, JobThread}
	if len(p.Jobs) != len(kinds) {
		t.Fatalf("expected %d jobs, got %d", len(kinds), len(p.Jobs))
	}
	for i, k := range kinds {
		if p.Jobs[i].Kind != k {
			t.Errorf("job %d kind = %s, want %s", i, p.Jobs[i].Kind, k)
		}
	}
}

func TestEngineOptions(t *testing.T) {
	c := thread.NewCatalog()
	if err := c.Add(thread.Preset{Name: "shop", Length: 10, Major: 8, Minor: 7, Pitch: 1, CutAngle: thread.Degrees(30), NotchWidth: 0.3}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	defaults := thread.Preset{Name: "d", Length: 5, Major: 6, Minor: 5, Pitch: 1, CutAngle: thread.Degrees(30), NotchWidth: 0.2}
	eng := NewEngine(WithCatalog(c), WithDefaults(defaults))

	p := mustEval(t, eng, `(thread :preset "shop") (thread)`)
	if p.Jobs[0].Spec.MajorDiameter() != 8 {
		t.Errorf("catalog preset not used: %s", p.Jobs[0].Spec)
	}
	if p.Jobs[1].Spec.Length() != 5 {
		t.Errorf("defaults not used: %s", p.Jobs[1].Spec)
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantMsg string
	}{
		{"unknown preset", `(thread :preset "G 9")`, "not found"},
		{"invalid dimensions", `(thread :major 5 :minor 6)`, "major"},
		{"bad sense", `(thread :sense :sideways)`, "sense"},
		{"unknown keyword", `(thread :diameter 4)`, "unknown keyword"},
		{"positional argument", `(thread 4)`, "keyword arguments only"},
		{"vec3 arity", `(vec3 1 2)`, "exactly 3"},
		{"at not vec3", `(thread :at 4)`, "vec3"},
		{"non-integer count", `(calibrate :count 2.5)`, "integer"},
		{"empty preset name", `(def-preset "  ")`, "name"},
		{"preset missing", `(preset "nope")`, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := evalFails(t, NewEngine(), tt.source)
			if !strings.Contains(msg, tt.wantMsg) {
				t.Errorf("message = %q, want containing %q", msg, tt.wantMsg)
			}
		})
	}
}

func TestResolveSpecReturnsTypedErrors(t *testing.T) {
	pa := parseArgs([]zygo.Sexp{&zygo.SexpStr{S: kwPrefix + "preset"}, &zygo.SexpStr{S: "missing"}})
	_, err := resolveSpec("thread", pa, thread.NewCatalog(), thread.DefaultPreset)
	var nf *thread.PresetNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected PresetNotFoundError, got %v", err)
	}
	if nf.Name != "missing" {
		t.Errorf("Name = %q, want missing", nf.Name)
	}

	pa = parseArgs([]zygo.Sexp{&zygo.SexpStr{S: kwPrefix + "pitch"}, &zygo.SexpInt{Val: 0}})
	_, err = resolveSpec("thread", pa, thread.NewCatalog(), thread.DefaultPreset)
	var dim *thread.InvalidDimensionError
	if !errors.As(err, &dim) {
		t.Fatalf("expected InvalidDimensionError, got %v", err)
	}
}
