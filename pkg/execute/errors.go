package execute

import (
	"fmt"
	"strings"

	"github.com/chazu/threadforge/pkg/plan"
)

// GeometryConstructionError reports a backend call that failed while a plan
// was executing. Stage names the feature step the failing op belongs to.
type GeometryConstructionError struct {
	Plan  string
	Stage plan.Stage
	OpID  plan.OpID
	Kind  plan.OpKind
	Err   error
}

func (e *GeometryConstructionError) Error() string {
	return fmt.Sprintf("geometry construction failed in %s stage (%s %s of %q): %v",
		e.Stage, e.Kind, e.OpID, e.Plan, e.Err)
}

func (e *GeometryConstructionError) Unwrap() error {
	return e.Err
}

// PlanError reports a plan that failed structural validation and was not
// executed.
type PlanError struct {
	Plan     string
	Findings []plan.ValidationError
}

func (e *PlanError) Error() string {
	msgs := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("plan %q is invalid: %s", e.Plan, strings.Join(msgs, "; "))
}
