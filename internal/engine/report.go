package engine

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/vk/planforge/internal/dag"
)

// TargetStatus is one target's final outcome in a run.
type TargetStatus struct {
	ID     string
	Kind   string
	Status dag.Status
	Err    error
}

// RunReport is the structured outcome of a single run: every target's final
// status plus execution counters. Errors never escape a run as panics or
// early returns; they are collected here.
type RunReport struct {
	RunID   string
	Targets []TargetStatus
	// Executed counts commands actually evaluated by workers.
	Executed int
	// Cached counts targets served from the store without execution.
	Cached  int
	Elapsed time.Duration
}

func buildReport(graph *dag.Graph, executed, cached int, elapsed time.Duration) *RunReport {
	report := &RunReport{
		RunID:    uuid.NewString(),
		Executed: executed,
		Cached:   cached,
		Elapsed:  elapsed,
	}
	for _, node := range graph.Ordered() {
		report.Targets = append(report.Targets, TargetStatus{
			ID:     node.ID,
			Kind:   node.Kind.String(),
			Status: node.Status(),
			Err:    node.Err,
		})
	}
	return report
}

// Failed reports whether any target errored.
func (r *RunReport) Failed() bool {
	for _, t := range r.Targets {
		if t.Status == dag.Errored {
			return true
		}
	}
	return false
}

// Err aggregates the errors of all errored targets, or nil.
func (r *RunReport) Err() error {
	var errs []error
	for _, t := range r.Targets {
		if t.Status == dag.Errored && t.Err != nil {
			errs = append(errs, t.Err)
		}
	}
	return errors.Join(errs...)
}

// Status returns the final status recorded for a node id, or NotBuilt when
// the id is unknown.
func (r *RunReport) Status(id string) dag.Status {
	for _, t := range r.Targets {
		if t.ID == id {
			return t.Status
		}
	}
	return dag.NotBuilt
}
