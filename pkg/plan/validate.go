package plan

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ValidationSeverity indicates whether a validation finding blocks execution
// or is merely informational.
type ValidationSeverity int

const (
	SeverityError   ValidationSeverity = iota // blocks execution
	SeverityWarning                           // informational
)

func (s ValidationSeverity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return fmt.Sprintf("ValidationSeverity(%d)", int(s))
	}
}

// ValidationError describes a single validation finding.
type ValidationError struct {
	OpID     OpID               // which op has the problem (-1 if plan-level)
	Message  string             // human-readable description
	Severity ValidationSeverity // error or warning
}

func (e ValidationError) Error() string {
	if e.OpID < 0 {
		return fmt.Sprintf("[%s] %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.OpID, e.Message)
}

// Validate runs all structural checks on the plan and returns the findings.
// An empty slice means the plan is valid. Validate never mutates the plan.
func Validate(p *Plan) []ValidationError {
	if p == nil {
		return []ValidationError{{OpID: -1, Message: "plan is nil", Severity: SeverityError}}
	}
	var errs []ValidationError
	errs = append(errs, validateIDs(p)...)
	errs = append(errs, validateReferences(p)...)
	errs = append(errs, validateInputs(p)...)
	errs = append(errs, validatePayloads(p)...)
	errs = append(errs, validateUnused(p)...)
	return errs
}

// Errors filters findings down to those that block execution.
func Errors(findings []ValidationError) []ValidationError {
	var out []ValidationError
	for _, f := range findings {
		if f.Severity == SeverityError {
			out = append(out, f)
		}
	}
	return out
}

// validateIDs checks that op IDs match their position and that each op's
// kind agrees with its payload.
func validateIDs(p *Plan) []ValidationError {
	var errs []ValidationError
	for i, op := range p.Ops {
		if op == nil {
			errs = append(errs, ValidationError{OpID: OpID(i), Message: "nil op", Severity: SeverityError})
			continue
		}
		if op.ID != OpID(i) {
			errs = append(errs, ValidationError{
				OpID:     OpID(i),
				Message:  fmt.Sprintf("op at position %d has ID %s", i, op.ID),
				Severity: SeverityError,
			})
		}
		if op.Data == nil {
			errs = append(errs, ValidationError{OpID: op.ID, Message: "op has no payload", Severity: SeverityError})
			continue
		}
		if op.Data.Kind() != op.Kind {
			errs = append(errs, ValidationError{
				OpID:     op.ID,
				Message:  fmt.Sprintf("kind %s does not match %T payload", op.Kind, op.Data),
				Severity: SeverityError,
			})
		}
	}
	return errs
}

// validateReferences checks that every input refers to an op that exists and
// comes earlier in the plan. Forward references are the only way to form a
// cycle, so this also guarantees the plan is acyclic.
func validateReferences(p *Plan) []ValidationError {
	var errs []ValidationError
	for i, op := range p.Ops {
		if op == nil {
			continue
		}
		for _, in := range op.Inputs {
			switch {
			case in < 0 || int(in) >= len(p.Ops):
				errs = append(errs, ValidationError{
					OpID:     op.ID,
					Message:  fmt.Sprintf("input %s does not exist", in),
					Severity: SeverityError,
				})
			case int(in) >= i:
				errs = append(errs, ValidationError{
					OpID:     op.ID,
					Message:  fmt.Sprintf("input %s is not an earlier op", in),
					Severity: SeverityError,
				})
			}
		}
	}
	return errs
}

// validateInputs checks input arity and that each input is of a kind the
// consuming op accepts.
func validateInputs(p *Plan) []ValidationError {
	var errs []ValidationError

	kindOf := func(id OpID) (OpKind, bool) {
		op := p.Get(id)
		if op == nil {
			return 0, false
		}
		return op.Kind, true
	}
	expect := func(op *Op, pos int, ok func(OpKind) bool, want string) {
		k, exists := kindOf(op.Inputs[pos])
		if exists && !ok(k) {
			errs = append(errs, ValidationError{
				OpID:     op.ID,
				Message:  fmt.Sprintf("input %d (%s) is %s, want %s", pos, op.Inputs[pos], k, want),
				Severity: SeverityError,
			})
		}
	}
	arity := func(op *Op, n int) bool {
		if len(op.Inputs) != n {
			errs = append(errs, ValidationError{
				OpID:     op.ID,
				Message:  fmt.Sprintf("%s takes %d inputs, got %d", op.Kind, n, len(op.Inputs)),
				Severity: SeverityError,
			})
			return false
		}
		return true
	}
	is := func(want OpKind) func(OpKind) bool {
		return func(k OpKind) bool { return k == want }
	}

	for _, op := range p.Ops {
		if op == nil {
			continue
		}
		switch op.Kind {
		case OpOffsetPlane:
			arity(op, 0)
		case OpCurvePlane:
			if arity(op, 1) {
				expect(op, 0, is(OpFittedCurve), "fitted-curve")
			}
		case OpSketch:
			if arity(op, 1) {
				expect(op, 0, OpKind.IsPlane, "a plane")
			}
		case OpCircle, OpPolygon, OpFittedCurve:
			if arity(op, 1) {
				expect(op, 0, is(OpSketch), "sketch")
			}
		case OpExtrude, OpRevolve:
			if arity(op, 1) {
				expect(op, 0, OpKind.IsProfile, "a profile")
			}
		case OpLoft:
			if len(op.Inputs) < 3 {
				errs = append(errs, ValidationError{
					OpID:     op.ID,
					Message:  fmt.Sprintf("loft needs at least 2 profiles and a centreline, got %d inputs", len(op.Inputs)),
					Severity: SeverityError,
				})
				continue
			}
			last := len(op.Inputs) - 1
			for i := 0; i < last; i++ {
				expect(op, i, is(OpPolygon), "polygon")
			}
			expect(op, last, is(OpFittedCurve), "fitted-curve")
		}
	}
	return errs
}

// validatePayloads checks the numeric content of each payload.
func validatePayloads(p *Plan) []ValidationError {
	var errs []ValidationError
	bad := func(op *Op, format string, args ...any) {
		errs = append(errs, ValidationError{OpID: op.ID, Message: fmt.Sprintf(format, args...), Severity: SeverityError})
	}

	for _, op := range p.Ops {
		if op == nil {
			continue
		}
		switch d := op.Data.(type) {
		case OffsetPlaneData:
			if err := d.Base.Validate(); err != nil {
				bad(op, "base plane: %v", err)
			}
		case CurvePlaneData:
			if d.Fraction < 0 || d.Fraction > 1 {
				bad(op, "curve fraction %g outside [0, 1]", d.Fraction)
			}
		case CircleData:
			if d.Diameter <= 0 {
				bad(op, "circle diameter %g must be positive", d.Diameter)
			}
		case PolygonData:
			if len(d.Vertices) < 3 {
				bad(op, "polygon needs at least 3 vertices, got %d", len(d.Vertices))
			}
		case FittedCurveData:
			if len(d.Points) < 2 {
				bad(op, "fitted curve needs at least 2 points, got %d", len(d.Points))
			}
		case ExtrudeData:
			if d.Distance == 0 || math.IsNaN(d.Distance) {
				bad(op, "extrude distance %g must be non-zero", d.Distance)
			}
		case RevolveData:
			if r3.Norm(d.Axis.Direction) == 0 {
				bad(op, "revolve axis has zero direction")
			}
			if d.Angle <= 0 || d.Angle > 2*math.Pi+1e-12 {
				bad(op, "revolve angle %g outside (0, 2pi]", d.Angle)
			}
		}
	}
	return errs
}

// validateUnused warns about construction ops whose result nothing
// consumes. Feature ops are terminal and exempt.
func validateUnused(p *Plan) []ValidationError {
	used := make(map[OpID]bool)
	for _, op := range p.Ops {
		if op == nil {
			continue
		}
		for _, in := range op.Inputs {
			used[in] = true
		}
	}

	var errs []ValidationError
	for _, op := range p.Ops {
		if op == nil || op.Kind.IsFeature() || used[op.ID] {
			continue
		}
		errs = append(errs, ValidationError{
			OpID:     op.ID,
			Message:  fmt.Sprintf("%s result is never used", op.Kind),
			Severity: SeverityWarning,
		})
	}
	return errs
}
