package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addNode(t *testing.T, g *Graph, id string) *Node {
	t.Helper()
	n := &Node{ID: id, Name: id}
	require.NoError(t, g.AddNode(n))
	return n
}

func TestAddNodeRejectsDuplicateID(t *testing.T) {
	g := New()
	addNode(t, g, "target.a")

	err := g.AddNode(&Node{ID: "target.a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestAddEdgeWiresBothDirections(t *testing.T) {
	g := New()
	a := addNode(t, g, "target.a")
	b := addNode(t, g, "target.b")

	require.NoError(t, g.AddEdge("target.a", "target.b"))

	assert.Contains(t, b.Deps, "target.a")
	assert.Contains(t, a.Dependents, "target.b")
}

func TestAddEdgeRejectsSelfReference(t *testing.T) {
	g := New()
	addNode(t, g, "target.a")
	assert.Error(t, g.AddEdge("target.a", "target.a"))
}

func TestAddEdgeRequiresBothNodes(t *testing.T) {
	g := New()
	addNode(t, g, "target.a")

	assert.Error(t, g.AddEdge("target.a", "target.missing"))
	assert.Error(t, g.AddEdge("target.missing", "target.a"))
}

func TestOrderedPreservesInsertionOrder(t *testing.T) {
	g := New()
	for _, id := range []string{"target.c", "target.a", "target.b"} {
		addNode(t, g, id)
	}

	var got []string
	for _, n := range g.Ordered() {
		got = append(got, n.ID)
	}
	assert.Equal(t, []string{"target.c", "target.a", "target.b"}, got)
}

func TestSetInitialCounters(t *testing.T) {
	g := New()
	a := addNode(t, g, "target.a")
	b := addNode(t, g, "target.b")
	c := addNode(t, g, "target.c")
	require.NoError(t, g.AddEdge("target.a", "target.c"))
	require.NoError(t, g.AddEdge("target.b", "target.c"))

	g.SetInitialCounters()

	assert.Equal(t, int32(0), a.DepCount())
	assert.Equal(t, int32(0), b.DepCount())
	assert.Equal(t, int32(2), c.DepCount())
}

func TestDetectCyclesAcceptsDAG(t *testing.T) {
	g := New()
	addNode(t, g, "target.a")
	addNode(t, g, "target.b")
	addNode(t, g, "target.c")
	require.NoError(t, g.AddEdge("target.a", "target.b"))
	require.NoError(t, g.AddEdge("target.b", "target.c"))
	require.NoError(t, g.AddEdge("target.a", "target.c"))

	assert.NoError(t, g.DetectCycles())
}

func TestDetectCyclesFindsTwoNodeCycle(t *testing.T) {
	g := New()
	addNode(t, g, "target.a")
	addNode(t, g, "target.b")
	require.NoError(t, g.AddEdge("target.a", "target.b"))
	require.NoError(t, g.AddEdge("target.b", "target.a"))

	err := g.DetectCycles()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestDetectCyclesFindsDeepCycle(t *testing.T) {
	g := New()
	for _, id := range []string{"target.a", "target.b", "target.c", "target.d"} {
		addNode(t, g, id)
	}
	require.NoError(t, g.AddEdge("target.a", "target.b"))
	require.NoError(t, g.AddEdge("target.b", "target.c"))
	require.NoError(t, g.AddEdge("target.c", "target.d"))
	require.NoError(t, g.AddEdge("target.d", "target.b"))

	assert.Error(t, g.DetectCycles())
}

func TestStatusLifecycle(t *testing.T) {
	n := &Node{ID: "target.a"}
	assert.Equal(t, NotBuilt, n.Status())
	assert.False(t, n.Status().Terminal())

	n.SetStatus(Running)
	assert.False(t, n.Status().Terminal())
	assert.False(t, n.Status().Succeeded())

	n.SetStatus(Built)
	assert.True(t, n.Status().Terminal())
	assert.True(t, n.Status().Succeeded())

	n.SetStatus(Blocked)
	assert.True(t, n.Status().Terminal())
	assert.False(t, n.Status().Succeeded())
}

func TestSubTargetIDs(t *testing.T) {
	assert.Equal(t, "target.words", TargetID("words"))
	assert.Equal(t, "target.words[3]", SubTargetID("target.words", 3))
	assert.Equal(t, `target.by_region["east"]`, GroupSubTargetID("target.by_region", "east"))
}
