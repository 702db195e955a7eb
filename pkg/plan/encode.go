package plan

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Format selects a plan serialization.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Encode serializes the plan for inspection. Kinds, stages and body
// operations are written by name.
func (p *Plan) Encode(f Format) ([]byte, error) {
	switch f {
	case FormatYAML, "":
		return yaml.Marshal(p)
	case FormatJSON:
		return json.MarshalIndent(p, "", "  ")
	}
	return nil, fmt.Errorf("unknown plan format %q, expected yaml or json", f)
}

// Summary is a compact, per-stage count of a plan's operations.
type Summary struct {
	Name     string         `json:"name" yaml:"name"`
	Ops      int            `json:"ops" yaml:"ops"`
	Features []string       `json:"features" yaml:"features"`
	Stages   map[string]int `json:"stages" yaml:"stages"`
}

// Summarize returns the plan's summary. Features are rendered as
// "kind(mode)".
func (p *Plan) Summarize() Summary {
	s := Summary{Name: p.Name, Ops: len(p.Ops), Stages: make(map[string]int)}
	for _, op := range p.Ops {
		s.Stages[op.Stage.String()]++
		if mode, ok := Mode(op.Data); ok {
			s.Features = append(s.Features, fmt.Sprintf("%s(%s)", op.Kind, mode))
		}
	}
	return s
}
