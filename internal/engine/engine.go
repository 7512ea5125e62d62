package engine

import (
	"fmt"

	"github.com/vk/planforge/internal/dag"
	"github.com/vk/planforge/internal/store"
)

// ExecutionError wraps a command failure for one target.
type ExecutionError struct {
	TargetID string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing %s: %v", e.TargetID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// BlockedError marks a target skipped because an upstream target failed.
type BlockedError struct {
	TargetID string
	Upstream string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s blocked by upstream failure of %s", e.TargetID, e.Upstream)
}

// Options configures a run.
type Options struct {
	// Jobs is the worker pool size. Values below one are clamped to one.
	Jobs int
	// MaxExpand caps how many sub-targets any dynamic target materializes
	// this run, on top of each target's own declared cap. Zero means no
	// run-level cap.
	MaxExpand int
}

// Engine drives one run of a compiled plan against a cache store.
type Engine struct {
	graph     *dag.Graph
	store     *store.Store
	jobs      int
	maxExpand int
}

// New creates an engine for the given graph and store handle.
func New(graph *dag.Graph, st *store.Store, opts Options) *Engine {
	jobs := opts.Jobs
	if jobs < 1 {
		jobs = 1
	}
	return &Engine{
		graph:     graph,
		store:     st,
		jobs:      jobs,
		maxExpand: opts.MaxExpand,
	}
}

// Graph returns the engine's graph, including any sub-targets materialized
// by a completed run.
func (e *Engine) Graph() *dag.Graph {
	return e.graph
}

// effectiveCap combines a target's declared max_expand with the run-level
// cap; the tighter non-zero bound wins.
func (e *Engine) effectiveCap(declared int) int {
	switch {
	case declared > 0 && e.maxExpand > 0:
		return min(declared, e.maxExpand)
	case declared > 0:
		return declared
	default:
		return e.maxExpand
	}
}
