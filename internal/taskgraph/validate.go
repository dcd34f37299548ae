package taskgraph

// Validator checks structural well-formedness of task graphs before they
// enter reasoning. Validation never mutates the graph.
type Validator struct {
	allowSelfLoops bool
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// AllowSelfLoops permits edges whose endpoints are the same node. Off by
// default.
func AllowSelfLoops() ValidatorOption {
	return func(v *Validator) { v.allowSelfLoops = true }
}

// NewValidator creates a task graph validator.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks the graph and fails fast on the first violation, in
// order: unique node ids, allowed primitives, edge endpoints declared, no
// self-loops (unless permitted).
func (v *Validator) Validate(g Graph) error {
	ids := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if _, dup := ids[n.ID]; dup {
			return &SchemaError{Check: "duplicate_node", NodeID: n.ID}
		}
		ids[n.ID] = struct{}{}
	}

	for _, n := range g.Nodes {
		if !n.Primitive.Valid() {
			return &SchemaError{Check: "unknown_primitive", NodeID: n.ID}
		}
	}

	for _, e := range g.Edges {
		if _, ok := ids[e.From]; !ok {
			edge := e
			return &SchemaError{Check: "dangling_edge", Edge: &edge}
		}
		if _, ok := ids[e.To]; !ok {
			edge := e
			return &SchemaError{Check: "dangling_edge", Edge: &edge}
		}
	}

	if !v.allowSelfLoops {
		for _, e := range g.Edges {
			if e.From == e.To {
				return &SchemaError{Check: "self_loop", NodeID: e.From}
			}
		}
	}

	return nil
}
