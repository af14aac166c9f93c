// Package pipeline composes shapers into a dependency-ordered
// pipeline and executes independent stages concurrently.
//
// A pipeline is declared as a list of Specs, each selecting a concrete
// shaper kind with parameters and naming the specs it depends on. The
// runner resolves the dependency graph, rejects cycles before any
// execution, and runs each wave of ready stages in parallel. Stages
// exchange data exclusively as CSV tables spilled to a scratch
// directory, so a pipeline run leaves a replayable trail and no stage
// ever shares mutable state with another.
package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"ring5/shape"
)

// A Spec declares one pipeline stage. The JSON form of a []Spec is the
// pipeline's persisted configuration.
type Spec struct {
	// ID is unique within a pipeline.
	ID string `json:"id"`

	// Kind selects the concrete shaper: one of "selector",
	// "mixer", "normalizer", "mean", "retyper".
	Kind string `json:"kind"`

	// Params carries the shaper's parameters, decoded by Build.
	Params json.RawMessage `json:"params"`

	// DependsOn names the specs whose merged output this stage
	// consumes. Empty means the stage reads the pipeline input.
	DependsOn []string `json:"dependsOn,omitempty"`
}

// A CycleError reports that the dependency relation of a pipeline is
// not acyclic. It is produced before any shaper executes.
type CycleError struct {
	// Involved lists the spec IDs on the detected cycle.
	Involved []string
}

func (e *CycleError) Error() string {
	return "pipeline: dependency cycle involving " + strings.Join(e.Involved, " -> ")
}

// selectorParams, mixerParams and retyperParams are the JSON shapes of
// the kinds whose constructors take plain arguments.
type selectorParams struct {
	Columns []string `json:"columns"`
}

type mixerParams struct {
	Mixer map[string][]string `json:"mixer"`
}

type retyperParams struct {
	Column     string   `json:"column"`
	TargetType string   `json:"targetType"`
	Order      []string `json:"order,omitempty"`
}

// Build instantiates the shaper a spec declares, validating its
// parameters. The kind mapping is closed: an unknown kind is a
// *shape.ValidationError, and extending the pipeline with a new kind
// means adding a case here.
func Build(s Spec) (shape.Shaper, error) {
	unmarshal := func(v any) error {
		if len(s.Params) == 0 {
			return &shape.ValidationError{Shaper: s.Kind, Param: "params", Reason: "missing"}
		}
		if err := json.Unmarshal(s.Params, v); err != nil {
			return &shape.ValidationError{Shaper: s.Kind, Param: "params", Reason: err.Error()}
		}
		return nil
	}

	switch s.Kind {
	case "selector":
		var p selectorParams
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return shape.NewColumnSelector(p.Columns)
	case "mixer":
		var p mixerParams
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return shape.NewMixer(p.Mixer)
	case "normalizer":
		var p shape.NormalizerConfig
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return shape.NewNormalizer(p)
	case "mean":
		var p shape.MeanReducerConfig
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return shape.NewMeanReducer(p)
	case "retyper":
		var p retyperParams
		if err := unmarshal(&p); err != nil {
			return nil, err
		}
		return shape.NewRetyper(p.Column, shape.RetypeTarget(p.TargetType), p.Order)
	}
	return nil, &shape.ValidationError{Shaper: s.Kind, Param: "kind", Reason: "unknown shaper kind"}
}

// ReadSpecs decodes a pipeline configuration from its JSON form.
func ReadSpecs(r io.Reader) ([]Spec, error) {
	var specs []Spec
	if err := json.NewDecoder(r).Decode(&specs); err != nil {
		return nil, fmt.Errorf("pipeline: decoding specs: %w", err)
	}
	return specs, nil
}

// WriteSpecs encodes a pipeline configuration to its JSON form.
func WriteSpecs(w io.Writer, specs []Spec) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(specs)
}

// validate checks ID uniqueness, dependency resolution and
// acyclicity. It returns a *CycleError for cycles and a
// *shape.ValidationError for structural problems.
func validate(specs []Spec) error {
	byID := make(map[string]*Spec, len(specs))
	for i := range specs {
		s := &specs[i]
		if s.ID == "" {
			return &shape.ValidationError{Shaper: s.Kind, Param: "id", Reason: "must be set"}
		}
		if _, dup := byID[s.ID]; dup {
			return &shape.ValidationError{Shaper: s.Kind, Param: "id", Reason: "duplicate id " + s.ID}
		}
		byID[s.ID] = s
	}
	for _, s := range specs {
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				return &shape.ValidationError{Shaper: s.Kind, Param: "dependsOn",
					Reason: fmt.Sprintf("%s depends on unknown spec %s", s.ID, dep)}
			}
			if dep == s.ID {
				return &CycleError{Involved: []string{s.ID, s.ID}}
			}
		}
	}

	// Depth-first cycle detection with an explicit color map.
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(specs))
	var stack []string
	var visit func(id string) *CycleError
	visit = func(id string) *CycleError {
		color[id] = grey
		stack = append(stack, id)
		for _, dep := range byID[id].DependsOn {
			switch color[dep] {
			case grey:
				// Slice the cycle out of the visit stack.
				for i, on := range stack {
					if on == dep {
						return &CycleError{Involved: append(append([]string(nil), stack[i:]...), dep)}
					}
				}
				return &CycleError{Involved: []string{dep, id, dep}}
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = black
		return nil
	}
	for _, s := range specs {
		if color[s.ID] == white {
			if err := visit(s.ID); err != nil {
				return err
			}
		}
	}
	return nil
}
