package dag

import (
	"sync/atomic"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/planforge/internal/config"
	"github.com/zclconf/go-cty/cty"
)

// Kind distinguishes the three node varieties in the graph.
type Kind int

const (
	// KindStatic is a plain target declared in the plan.
	KindStatic Kind = iota
	// KindDynamic is a declared target that expands into sub-targets.
	KindDynamic
	// KindSub is a sub-target materialized during execution.
	KindSub
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindDynamic:
		return "dynamic"
	case KindSub:
		return "sub"
	default:
		return "unknown"
	}
}

// Status is a target's position in its lifecycle. Statuses are mutated only
// by the engine's coordinating loop.
type Status int32

const (
	NotBuilt Status = iota
	Running
	UpToDate
	Built
	Errored
	Blocked
)

func (s Status) String() string {
	switch s {
	case NotBuilt:
		return "not_built"
	case Running:
		return "running"
	case UpToDate:
		return "up_to_date"
	case Built:
		return "built"
	case Errored:
		return "errored"
	case Blocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status is final for the current run.
func (s Status) Terminal() bool {
	switch s {
	case UpToDate, Built, Errored, Blocked:
		return true
	default:
		return false
	}
}

// Succeeded reports whether the status satisfies downstream dependencies.
func (s Status) Succeeded() bool {
	return s == UpToDate || s == Built
}

// Node is a single vertex in the graph: a static target, a dynamic target,
// or a materialized sub-target.
type Node struct {
	// ID is the stable node id, e.g. "target.words" or `target.upper[2]`.
	ID string
	// Name is the plan-level target name; sub-targets share their parent's name.
	Name string
	Kind Kind

	// Command is the expression this node evaluates; sub-targets carry their
	// parent's command bound to one slice of each source.
	Command     hcl.Expression
	CommandText string
	// Dynamic is the expansion spec, set on KindDynamic nodes only.
	Dynamic *config.DynamicSpec

	// Parent, Index and Key identify a sub-target within its expansion.
	// Key is set for group sub-targets and empty otherwise.
	Parent *Node
	Index  int
	Key    string
	// Bindings maps source names to the concrete values bound for this
	// sub-target.
	Bindings map[string]cty.Value

	// Deps and Dependents are the incoming and outgoing edges.
	Deps       map[string]*Node
	Dependents map[string]*Node

	// depCount is the number of non-terminal dependencies; a node is ready
	// when it reaches zero. The engine re-arms it on a dynamic node after
	// expansion to count outstanding sub-targets.
	depCount atomic.Int32
	status   atomic.Int32

	// Err, Output and Fingerprint are written by the coordinating loop when
	// the node reaches a terminal state.
	Err         error
	Output      cty.Value
	Fingerprint string

	// Expanded and Truncated track a dynamic node's expansion state.
	Expanded  bool
	Truncated bool
	// Subs holds materialized sub-targets in generation order.
	Subs []*Node
}

// Status returns the node's current status.
func (n *Node) Status() Status {
	return Status(n.status.Load())
}

// SetStatus records a status transition.
func (n *Node) SetStatus(s Status) {
	n.status.Store(int32(s))
}

// DepCountAdd adjusts the outstanding-dependency counter and returns the
// new value.
func (n *Node) DepCountAdd(delta int32) int32 {
	return n.depCount.Add(delta)
}

// SetDepCount re-arms the outstanding-dependency counter.
func (n *Node) SetDepCount(v int32) {
	n.depCount.Store(v)
}

// DepCount returns the outstanding-dependency counter.
func (n *Node) DepCount() int32 {
	return n.depCount.Load()
}
