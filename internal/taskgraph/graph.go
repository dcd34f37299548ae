// Package taskgraph defines the task graph vocabulary and its structural
// validation.
package taskgraph

import (
	"fmt"
	"sort"
	"strings"
)

// Primitive is the operation class of a task node.
type Primitive string

// The allowed primitive vocabulary.
const (
	PrimitiveLocate    Primitive = "locate"
	PrimitiveTransform Primitive = "transform"
	PrimitiveValidate  Primitive = "validate"
	PrimitiveExecute   Primitive = "execute"
)

// Valid reports whether p belongs to the allowed vocabulary.
func (p Primitive) Valid() bool {
	switch p {
	case PrimitiveLocate, PrimitiveTransform, PrimitiveValidate, PrimitiveExecute:
		return true
	}
	return false
}

// Node is a single step in a task graph.
type Node struct {
	// ID is the node identifier, unique within a graph.
	ID string `json:"id"`

	// Primitive is the operation class; must be in the allowed vocabulary.
	Primitive Primitive `json:"primitive"`

	// Params are free-form operation parameters (selector, action, ...).
	Params map[string]string `json:"params,omitempty"`
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is a task description submitted by callers. Graphs are validated by
// Validate and compared by the analogy package; the kernel never persists
// them, only the episode derived from running them.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Text flattens the graph's node primitives and parameters into a single
// string for semantic comparison. Parameters are emitted in sorted key
// order so the text is deterministic.
func (g Graph) Text() string {
	var sb strings.Builder
	for _, n := range g.Nodes {
		sb.WriteString(string(n.Primitive))
		keys := make([]string, 0, len(n.Params))
		for k := range n.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(" ")
			sb.WriteString(n.Params[k])
		}
		sb.WriteString(" ")
	}
	return strings.TrimSpace(sb.String())
}

// Primitives returns the node primitives in declaration order.
func (g Graph) Primitives() []Primitive {
	out := make([]Primitive, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.Primitive
	}
	return out
}

// SchemaError reports the first structural violation found in a graph. It
// carries the offending node or edge so callers can act on it.
type SchemaError struct {
	// Check names the failed check: "duplicate_node", "unknown_primitive",
	// "dangling_edge", or "self_loop".
	Check string

	// NodeID is set for node-level violations.
	NodeID string

	// Edge is set for edge-level violations.
	Edge *Edge
}

func (e *SchemaError) Error() string {
	switch e.Check {
	case "duplicate_node":
		return fmt.Sprintf("schema violation: duplicate node id %q", e.NodeID)
	case "unknown_primitive":
		return fmt.Sprintf("schema violation: node %q has a primitive outside the allowed vocabulary", e.NodeID)
	case "dangling_edge":
		return fmt.Sprintf("schema violation: edge %s->%s references an undeclared node", e.Edge.From, e.Edge.To)
	case "self_loop":
		return fmt.Sprintf("schema violation: self-loop on node %q", e.NodeID)
	}
	return fmt.Sprintf("schema violation: %s", e.Check)
}
