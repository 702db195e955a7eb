// Package plan defines the geometry plan: an ordered list of typed backend
// operations produced by the feature builder and consumed once by the
// executor. Operations refer to each other by ID, never by backend handle,
// so a plan can be inspected, validated and serialized before anything
// touches a modeler.
package plan

import "fmt"

// Plan is an ordered sequence of operations. Ops execute strictly in order
// and may only consume the results of earlier ops.
type Plan struct {
	Name string `json:"name" yaml:"name"`
	Ops  []*Op  `json:"ops" yaml:"ops"`
}

// New creates an empty plan.
func New(name string) *Plan {
	return &Plan{Name: name}
}

// Add appends an operation and returns its ID.
func (p *Plan) Add(stage Stage, data OpData, inputs ...OpID) OpID {
	id := OpID(len(p.Ops))
	p.Ops = append(p.Ops, &Op{
		ID:     id,
		Kind:   data.Kind(),
		Stage:  stage,
		Inputs: inputs,
		Data:   data,
	})
	return id
}

// Get returns the op with the given ID, or nil.
func (p *Plan) Get(id OpID) *Op {
	if id < 0 || int(id) >= len(p.Ops) {
		return nil
	}
	return p.Ops[id]
}

// MustGet returns the op with the given ID, or panics.
func (p *Plan) MustGet(id OpID) *Op {
	op := p.Get(id)
	if op == nil {
		panic(fmt.Sprintf("plan: no op %s in %q", id, p.Name))
	}
	return op
}

// Len returns the number of operations.
func (p *Plan) Len() int {
	return len(p.Ops)
}

// TopLevel returns the body-creating operations (extrude, loft, revolve) in
// order.
func (p *Plan) TopLevel() []*Op {
	var out []*Op
	for _, op := range p.Ops {
		if op.Kind.IsFeature() {
			out = append(out, op)
		}
	}
	return out
}

// ByStage returns the ops of the given stage in order.
func (p *Plan) ByStage(stage Stage) []*Op {
	var out []*Op
	for _, op := range p.Ops {
		if op.Stage == stage {
			out = append(out, op)
		}
	}
	return out
}

// HasStage reports whether any op belongs to stage.
func (p *Plan) HasStage(stage Stage) bool {
	for _, op := range p.Ops {
		if op.Stage == stage {
			return true
		}
	}
	return false
}

// Consumers returns the ops that take id as an input.
func (p *Plan) Consumers(id OpID) []*Op {
	var out []*Op
	for _, op := range p.Ops {
		for _, in := range op.Inputs {
			if in == id {
				out = append(out, op)
				break
			}
		}
	}
	return out
}
