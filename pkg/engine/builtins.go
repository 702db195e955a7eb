package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/threadforge/pkg/thread"
	zygo "github.com/glycerine/zygomys/zygo"
	"gonum.org/v1/gonum/spatial/r3"
)

// ---------------------------------------------------------------------------
// Source preprocessing
// ---------------------------------------------------------------------------

// preprocessSource rewrites script source before passing it to zygomys.
// It performs two transformations:
//
//  1. Keyword conversion: :keyword -> "__kw_keyword" (string literal)
//     This avoids the need to register keyword symbols as globals, which
//     would conflict with user-defined variables of the same name.
//
//  2. Kebab-case to underscore: def-preset -> def_preset
//     zygomys does not allow hyphens in identifiers (it interprets them
//     as the subtraction operator). This converts kebab-case identifiers
//     to underscore form outside of strings and comments.
//
// Both transformations respect string literal boundaries and line comments.
func preprocessSource(source string) string {
	result := make([]byte, 0, len(source)+len(source)/4)
	b := []byte(source)
	i := 0
	for i < len(b) {
		// Skip double-quoted string literals.
		if b[i] == '"' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '"' {
				if b[i] == '\\' && i+1 < len(b) {
					result = append(result, b[i], b[i+1])
					i += 2
					continue
				}
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Skip backtick-quoted string literals.
		if b[i] == '`' {
			result = append(result, b[i])
			i++
			for i < len(b) && b[i] != '`' {
				result = append(result, b[i])
				i++
			}
			if i < len(b) {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Convert ; line comments to // comments for zygomys.
		// zygomys uses // for line comments, not the traditional Lisp ;.
		if b[i] == ';' {
			result = append(result, '/', '/')
			i++
			// Skip additional ; characters (;; style).
			for i < len(b) && b[i] == ';' {
				i++
			}
			for i < len(b) && b[i] != '\n' {
				result = append(result, b[i])
				i++
			}
			continue
		}
		// Transform :keyword to "__kw_keyword".
		if b[i] == ':' && i+1 < len(b) {
			// Preserve := (assignment operator).
			if b[i+1] == '=' {
				result = append(result, b[i], b[i+1])
				i += 2
				continue
			}
			// Check for keyword: colon followed by a letter.
			if isLetter(b[i+1]) {
				j := i + 1
				for j < len(b) && isKWChar(b[j]) {
					j++
				}
				kwName := string(b[i+1 : j])
				result = append(result, '"')
				result = append(result, []byte(kwPrefix)...)
				result = append(result, []byte(kwName)...)
				result = append(result, '"')
				i = j
				continue
			}
		}
		// Transform kebab-case identifiers: alpha-alpha -> alpha_alpha.
		// Only when hyphen sits between identifier characters (not a minus operator).
		if b[i] == '-' && i > 0 && i+1 < len(b) &&
			isIdentChar(b[i-1]) && isIdentStartChar(b[i+1]) {
			result = append(result, '_')
			i++
			continue
		}
		result = append(result, b[i])
		i++
	}
	return string(result)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}

func isIdentStartChar(c byte) bool {
	return isLetter(c)
}


// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpPreset wraps a thread.Preset so it can be passed to :preset.
type sexpPreset struct {
	preset thread.Preset
}

func (p *sexpPreset) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(preset %q)", p.preset.Name)
}
func (p *sexpPreset) Type() *zygo.RegisteredType { return nil }

// sexpVec3 wraps an r3.Vec.
type sexpVec3 struct {
	vec r3.Vec
}

func (v *sexpVec3) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(vec3 %g %g %g)", v.vec.X, v.vec.Y, v.vec.Z)
}
func (v *sexpVec3) Type() *zygo.RegisteredType { return nil }

// sexpJob refers to a job appended to the program.
type sexpJob struct {
	index int
	job   Job
}

func (j *sexpJob) SexpString(ps *zygo.PrintState) string {
	return fmt.Sprintf("(%s %d %q)", j.job.Kind, j.index, j.job.Spec.String())
}
func (j *sexpJob) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	i := 0
	for i < len(args) {
		name, ok := isKW(args[i])
		if ok {
			if i+1 < len(args) {
				result.kw[name] = args[i+1]
				i += 2
			} else {
				result.kw[name] = zygo.SexpNull
				i++
			}
		} else {
			result.positional = append(result.positional, args[i])
			i++
		}
	}
	return result
}

// only rejects keywords outside allowed, which are almost always typos.
func (a kwArgs) only(fn string, allowed ...string) error {
	for k := range a.kw {
		found := false
		for _, name := range allowed {
			if k == name {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: unknown keyword :%s", fn, k)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts an integer from a SexpInt.
func toInt(s zygo.Sexp) (int, error) {
	if v, ok := s.(*zygo.SexpInt); ok {
		return int(v.Val), nil
	}
	return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toKeywordString extracts a keyword name or plain string from a Sexp.
// Handles both preprocessed keywords (__kw_male) and plain strings ("male").
func toKeywordString(s zygo.Sexp) (string, error) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", fmt.Errorf("expected keyword or string, got %T (%s)", s, s.SexpString(nil))
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], nil
	}
	return str.S, nil
}

// toVec3 extracts an r3.Vec from a sexpVec3.
func toVec3(s zygo.Sexp) (r3.Vec, error) {
	if v, ok := s.(*sexpVec3); ok {
		return v.vec, nil
	}
	return r3.Vec{}, fmt.Errorf("expected vec3, got %T (%s)", s, s.SexpString(nil))
}

// toSense converts :male or :female to a thread.Sense.
func toSense(s zygo.Sexp) (thread.Sense, error) {
	name, err := toKeywordString(s)
	if err != nil {
		return 0, fmt.Errorf("expected :male or :female: %w", err)
	}
	return thread.ParseSense(name)
}

// toPreset resolves a preset value or a preset name in catalog.
func toPreset(s zygo.Sexp, catalog *thread.Catalog) (thread.Preset, error) {
	switch v := s.(type) {
	case *sexpPreset:
		return v.preset, nil
	case *zygo.SexpStr:
		return catalog.Lookup(v.S)
	}
	return thread.Preset{}, fmt.Errorf("expected preset or preset name, got %T (%s)", s, s.SexpString(nil))
}

// dimensionKeywords are the keywords that override preset dimensions.
var dimensionKeywords = []string{"length", "major", "minor", "pitch", "cut-angle", "notch-width"}

// applyDimensions overrides fields of base from keyword arguments. The cut
// angle is given in degrees.
func applyDimensions(fn string, pa kwArgs, base thread.Preset) (thread.Preset, error) {
	fields := map[string]*float64{
		"length":      &base.Length,
		"major":       &base.Major,
		"minor":       &base.Minor,
		"pitch":       &base.Pitch,
		"notch-width": &base.NotchWidth,
	}
	for _, k := range dimensionKeywords {
		v, ok := pa.kw[k]
		if !ok {
			continue
		}
		f, err := toFloat64(v)
		if err != nil {
			return base, fmt.Errorf("%s: %s: %w", fn, k, err)
		}
		if k == "cut-angle" {
			base.CutAngle = thread.Degrees(f)
			continue
		}
		*fields[k] = f
	}
	return base, nil
}

// resolveSpec builds the thread.Spec a thread or calibrate call describes: the
// :preset (or the defaults) overridden by explicit dimensions, cut with
// :sense.
func resolveSpec(fn string, pa kwArgs, catalog *thread.Catalog, defaults thread.Preset) (thread.Spec, error) {
	base := defaults
	if v, ok := pa.kw["preset"]; ok {
		p, err := toPreset(v, catalog)
		if err != nil {
			return thread.Spec{}, fmt.Errorf("%s: preset: %w", fn, err)
		}
		base = p
	}
	p, err := applyDimensions(fn, pa, base)
	if err != nil {
		return thread.Spec{}, err
	}
	sense := thread.Male
	if v, ok := pa.kw["sense"]; ok {
		if sense, err = toSense(v); err != nil {
			return thread.Spec{}, fmt.Errorf("%s: sense: %w", fn, err)
		}
	}
	spec, err := p.Spec(sense)
	if err != nil {
		return thread.Spec{}, fmt.Errorf("%s: %w", fn, err)
	}
	return spec, nil
}

func origin(fn string, pa kwArgs) (r3.Vec, error) {
	v, ok := pa.kw["at"]
	if !ok {
		return r3.Vec{}, nil
	}
	vec, err := toVec3(v)
	if err != nil {
		return r3.Vec{}, fmt.Errorf("%s: at: %w", fn, err)
	}
	return vec, nil
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// registerBuiltins installs the threadforge builtins into a zygomys
// environment. Presets are added to prog.Presets and jobs are appended to
// prog.Jobs in call order.
//
// Source code must be preprocessed with preprocessSource() before evaluation so
// that :keyword tokens are converted to recognizable string literals.
func registerBuiltins(env *zygo.Zlisp, prog *Program, defaults thread.Preset) {

	// -----------------------------------------------------------------------
	// (vec3 1 2 3)
	// -----------------------------------------------------------------------
	env.AddFunction("vec3", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("vec3 requires exactly 3 arguments, got %d", len(args))
		}
		var xyz [3]float64
		for i, axis := range []string{"x", "y", "z"} {
			f, err := toFloat64(args[i])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("vec3: %s: %w", axis, err)
			}
			xyz[i] = f
		}
		return &sexpVec3{vec: r3.Vec{X: xyz[0], Y: xyz[1], Z: xyz[2]}}, nil
	})

	// -----------------------------------------------------------------------
	// (def-preset "M12" :preset "G 1/4" :length 12 :major 12 :minor 10.1
	//             :pitch 1.75 :cut-angle 30 :notch-width 0.3)
	//
	// Registered as "def_preset"; the preprocessor rewrites the hyphen.
	// -----------------------------------------------------------------------
	env.AddFunction("def_preset", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) < 1 {
			return zygo.SexpNull, fmt.Errorf("def-preset requires a name")
		}
		presetName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("def-preset: name: %w", err)
		}
		pa := parseArgs(args[1:])
		if err := pa.only("def-preset", append(dimensionKeywords, "preset")...); err != nil {
			return zygo.SexpNull, err
		}

		base := defaults
		if v, ok := pa.kw["preset"]; ok {
			if base, err = toPreset(v, prog.Presets); err != nil {
				return zygo.SexpNull, fmt.Errorf("def-preset: preset: %w", err)
			}
		}
		p, err := applyDimensions("def-preset", pa, base)
		if err != nil {
			return zygo.SexpNull, err
		}
		p.Name = presetName
		if err := prog.Presets.Add(p); err != nil {
			return zygo.SexpNull, fmt.Errorf("def-preset: %w", err)
		}
		return &sexpPreset{preset: p}, nil
	})

	// -----------------------------------------------------------------------
	// (preset "G 1/4")
	// -----------------------------------------------------------------------
	env.AddFunction("preset", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("preset requires exactly 1 argument, got %d", len(args))
		}
		presetName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("preset: name: %w", err)
		}
		p, err := prog.Presets.Lookup(presetName)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("preset: %w", err)
		}
		return &sexpPreset{preset: p}, nil
	})

	// -----------------------------------------------------------------------
	// (thread :preset "G 1/4" :sense :female :at (vec3 0 0 0) :length 12)
	// -----------------------------------------------------------------------
	env.AddFunction("thread", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("thread takes keyword arguments only")
		}
		if err := pa.only("thread", append(dimensionKeywords, "preset", "sense", "at")...); err != nil {
			return zygo.SexpNull, err
		}
		spec, err := resolveSpec("thread", pa, prog.Presets, defaults)
		if err != nil {
			return zygo.SexpNull, err
		}
		at, err := origin("thread", pa)
		if err != nil {
			return zygo.SexpNull, err
		}

		job := Job{Kind: JobThread, Spec: spec, Origin: at}
		prog.Jobs = append(prog.Jobs, job)
		return &sexpJob{index: len(prog.Jobs) - 1, job: job}, nil
	})

	// -----------------------------------------------------------------------
	// (calibrate :preset "G 1/4" :count 6 :notch-step 0.05 :major-step 0.1
	//            :minor-step 0.1 :sense :male :at (vec3 0 0 0))
	// -----------------------------------------------------------------------
	env.AddFunction("calibrate", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) > 0 {
			return zygo.SexpNull, fmt.Errorf("calibrate takes keyword arguments only")
		}
		if err := pa.only("calibrate", append(dimensionKeywords,
			"preset", "sense", "at", "count", "notch-step", "major-step", "minor-step")...); err != nil {
			return zygo.SexpNull, err
		}
		spec, err := resolveSpec("calibrate", pa, prog.Presets, defaults)
		if err != nil {
			return zygo.SexpNull, err
		}
		at, err := origin("calibrate", pa)
		if err != nil {
			return zygo.SexpNull, err
		}

		job := Job{Kind: JobCalibrate, Spec: spec, Origin: at, Count: 1}
		if v, ok := pa.kw["count"]; ok {
			if job.Count, err = toInt(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("calibrate: count: %w", err)
			}
		}
		steps := map[string]*float64{
			"notch-step": &job.Steps.Notch,
			"major-step": &job.Steps.Major,
			"minor-step": &job.Steps.Minor,
		}
		for k, dst := range steps {
			v, ok := pa.kw[k]
			if !ok {
				continue
			}
			if *dst, err = toFloat64(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("calibrate: %s: %w", k, err)
			}
		}

		prog.Jobs = append(prog.Jobs, job)
		return &sexpJob{index: len(prog.Jobs) - 1, job: job}, nil
	})
}
