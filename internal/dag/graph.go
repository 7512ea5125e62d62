package dag

import (
	"fmt"
	"sync"
)

// Graph is a collection of nodes and their dependency edges. All operations
// are concurrency-safe; sub-target nodes may be inserted while a run is in
// progress.
type Graph struct {
	mu sync.RWMutex
	// nodes stores all nodes keyed by their unique id.
	nodes map[string]*Node
	// order preserves insertion order for deterministic iteration and reports.
	order []string
}

// New creates an initialized, empty Graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode inserts a node. Adding a duplicate id is an error: node identity
// is what cache entries and sub-target reads key on.
func (g *Graph) AddNode(n *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[n.ID]; ok {
		return fmt.Errorf("duplicate node id: %s", n.ID)
	}
	if n.Deps == nil {
		n.Deps = make(map[string]*Node)
	}
	if n.Dependents == nil {
		n.Dependents = make(map[string]*Node)
	}
	g.nodes[n.ID] = n
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge creates a directed edge from fromID to toID, meaning toID depends
// on fromID. Both nodes must already exist and self-references are rejected.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.Deps[fromID] = fromNode
	fromNode.Dependents[toID] = toNode
	return nil
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Len returns the current node count.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Ordered returns all nodes in insertion order. The slice is a snapshot;
// nodes inserted afterwards are not reflected in it.
func (g *Graph) Ordered() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// SetInitialCounters arms every node's dependency counter from its edge
// set. Called once after the static graph is built.
func (g *Graph) SetInitialCounters() {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, n := range g.nodes {
		n.SetDepCount(int32(len(n.Deps)))
	}
}

// DetectCycles checks the graph for circular dependencies using
// depth-first search and returns a non-nil error naming the first node
// found inside a cycle.
func (g *Graph) DetectCycles() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visiting := make(map[string]bool)
	visited := make(map[string]bool)

	var visit func(n *Node) error
	visit = func(n *Node) error {
		visiting[n.ID] = true
		for _, dep := range n.Deps {
			if visiting[dep.ID] {
				return fmt.Errorf("cycle detected involving '%s'", dep.ID)
			}
			if !visited[dep.ID] {
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		delete(visiting, n.ID)
		visited[n.ID] = true
		return nil
	}

	for _, id := range g.order {
		if !visited[id] {
			if err := visit(g.nodes[id]); err != nil {
				return err
			}
		}
	}
	return nil
}
