package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/vk/planforge/internal/config"
	"github.com/vk/planforge/internal/dag"
	"github.com/vk/planforge/internal/store"
	"github.com/vk/planforge/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// ReadMode selects how a dynamic target's sub-target values are combined.
type ReadMode string

const (
	// ModeAggregate concatenates sub-target values, in generation order,
	// into one value of the common element type.
	ModeAggregate ReadMode = "aggregate"
	// ModeList returns a mapping keyed by sub-target identity, for elements
	// that are not uniformly concatenable.
	ModeList ReadMode = "list"
)

// Read returns a target's value after a run. For dynamic targets the mode
// decides between the concatenated aggregate and a name-keyed mapping over
// materialized sub-targets; sub-targets that did not build are excluded
// rather than treated as errors.
func (e *Engine) Read(ctx context.Context, name string, mode ReadMode) (cty.Value, error) {
	node := e.graph.Node(dag.TargetID(name))
	if node == nil {
		return cty.NilVal, fmt.Errorf("unknown target %q", name)
	}

	if node.Kind != dag.KindDynamic {
		if !node.Status().Succeeded() {
			return cty.NilVal, fmt.Errorf("target %q has not been built (status %s)", name, node.Status())
		}
		return node.Output, nil
	}

	var built []*dag.Node
	for _, sub := range node.Subs {
		if sub.Status().Succeeded() {
			built = append(built, sub)
		}
	}

	switch mode {
	case ModeAggregate:
		outputs := make([]cty.Value, 0, len(built))
		for _, sub := range built {
			outputs = append(outputs, sub.Output)
		}
		return value.Concat(outputs)
	case ModeList:
		if len(built) == 0 {
			return cty.EmptyObjectVal, nil
		}
		attrs := make(map[string]cty.Value, len(built))
		for _, sub := range built {
			attrs[subIdentity(sub)] = sub.Output
		}
		return cty.ObjectVal(attrs), nil
	default:
		return cty.NilVal, fmt.Errorf("unknown read mode %q", mode)
	}
}

// subIdentity is the stable per-expansion key for a sub-target: the group
// key for group expansions, the generation index otherwise.
func subIdentity(sub *dag.Node) string {
	if sub.Parent != nil && sub.Parent.Dynamic.Op == config.OpGroup {
		return sub.Key
	}
	return strconv.Itoa(sub.Index)
}

// ReadTrace returns the trace values recorded for a dynamic target, aligned
// to sub-target generation order. Traces persist across runs independent of
// rebuild status.
func (e *Engine) ReadTrace(ctx context.Context, name string) ([]store.TraceValue, error) {
	return e.store.ReadTrace(ctx, dag.TargetID(name))
}

// SubTargets returns the ordered ids of the sub-targets materialized for a
// dynamic target in this run.
func (e *Engine) SubTargets(name string) ([]string, error) {
	node := e.graph.Node(dag.TargetID(name))
	if node == nil {
		return nil, fmt.Errorf("unknown target %q", name)
	}
	if node.Kind != dag.KindDynamic {
		return nil, fmt.Errorf("target %q is not dynamic", name)
	}
	ids := make([]string, 0, len(node.Subs))
	for _, sub := range node.Subs {
		ids = append(ids, sub.ID)
	}
	return ids, nil
}

// NodeInfo describes one graph node for external renderers.
type NodeInfo struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	Status string `json:"status"`
}

// EdgeInfo describes one dependency edge: To depends on From.
type EdgeInfo struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GraphInfo is a renderable snapshot of the graph, including sub-targets
// materialized so far.
type GraphInfo struct {
	Nodes []NodeInfo `json:"nodes"`
	Edges []EdgeInfo `json:"edges"`
}

// GraphInfo exports the graph for rendering collaborators. Nodes appear in
// insertion order; each node's incoming edges are sorted by source id.
func (e *Engine) GraphInfo() GraphInfo {
	var info GraphInfo
	for _, node := range e.graph.Ordered() {
		info.Nodes = append(info.Nodes, NodeInfo{
			ID:     node.ID,
			Kind:   node.Kind.String(),
			Status: node.Status().String(),
		})
		froms := make([]string, 0, len(node.Deps))
		for id := range node.Deps {
			froms = append(froms, id)
		}
		sort.Strings(froms)
		for _, from := range froms {
			info.Edges = append(info.Edges, EdgeInfo{From: from, To: node.ID})
		}
	}
	return info
}

// Clean purges cache and trace state through the engine's store handle.
func (e *Engine) Clean(destroy bool) error {
	return e.store.Clean(destroy)
}
