package taskgraph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoNodeGraph() Graph {
	return Graph{
		Nodes: []Node{
			{ID: "1", Primitive: PrimitiveLocate, Params: map[string]string{"selector": "#input"}},
			{ID: "2", Primitive: PrimitiveExecute, Params: map[string]string{"action": "click"}},
		},
		Edges: []Edge{{From: "1", To: "2"}},
	}
}

func TestValidate_AcceptsWellFormedGraph(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Validate(twoNodeGraph()))
}

func TestValidate_RejectsDuplicateNodeID(t *testing.T) {
	g := twoNodeGraph()
	g.Nodes = append(g.Nodes, Node{ID: "1", Primitive: PrimitiveValidate})

	err := NewValidator().Validate(g)
	require.Error(t, err)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "duplicate_node", se.Check)
	assert.Equal(t, "1", se.NodeID)
}

func TestValidate_RejectsUnknownPrimitive(t *testing.T) {
	g := twoNodeGraph()
	g.Nodes[1].Primitive = "teleport"

	err := NewValidator().Validate(g)
	require.Error(t, err)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "unknown_primitive", se.Check)
	assert.Equal(t, "2", se.NodeID)
}

func TestValidate_RejectsDanglingEdge(t *testing.T) {
	g := twoNodeGraph()
	g.Edges = append(g.Edges, Edge{From: "2", To: "missing"})

	err := NewValidator().Validate(g)
	require.Error(t, err)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "dangling_edge", se.Check)
	require.NotNil(t, se.Edge)
	assert.Equal(t, "missing", se.Edge.To)
}

func TestValidate_SelfLoops(t *testing.T) {
	g := twoNodeGraph()
	g.Edges = append(g.Edges, Edge{From: "2", To: "2"})

	err := NewValidator().Validate(g)
	require.Error(t, err)

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "self_loop", se.Check)

	assert.NoError(t, NewValidator(AllowSelfLoops()).Validate(g))
}

func TestValidate_ChecksRunInOrder(t *testing.T) {
	// Both a duplicate id and a dangling edge: the duplicate wins because
	// checks fail fast in declaration order.
	g := Graph{
		Nodes: []Node{
			{ID: "a", Primitive: PrimitiveLocate},
			{ID: "a", Primitive: PrimitiveExecute},
		},
		Edges: []Edge{{From: "a", To: "ghost"}},
	}

	var se *SchemaError
	require.True(t, errors.As(NewValidator().Validate(g), &se))
	assert.Equal(t, "duplicate_node", se.Check)
}

func TestGraphText_DeterministicParamOrder(t *testing.T) {
	g := Graph{Nodes: []Node{{
		ID:        "1",
		Primitive: PrimitiveLocate,
		Params:    map[string]string{"b": "two", "a": "one"},
	}}}

	for i := 0; i < 5; i++ {
		assert.Equal(t, "locate one two", g.Text())
	}
}
