package config

import (
	"context"

	"github.com/hashicorp/hcl/v2"
)

// Loader is the interface for a format-specific plan loader.
type Loader interface {
	// Load reads plan declarations from the given paths and translates them
	// into the format-agnostic model.
	Load(ctx context.Context, paths ...string) (*Plan, error)
}

// Plan is the unified, format-agnostic representation of a user's plan:
// an ordered sequence of target declarations.
type Plan struct {
	Targets []*Target
}

// Target is the format-agnostic representation of a `target` block.
type Target struct {
	// Name is the user-visible target name, unique within a plan.
	Name string
	// Command is the expression evaluated to produce the target's value.
	// Its variable references define the target's dependencies.
	Command hcl.Expression
	// CommandText is the verbatim source text of the command expression.
	// It participates in the target's fingerprint, so it must be stable
	// across loads of an unchanged plan.
	CommandText string
	// Dynamic is non-nil for targets that expand into sub-targets at run time.
	Dynamic *DynamicSpec
}

// Op identifies a dynamic expansion operation.
type Op string

const (
	OpMap   Op = "map"
	OpCross Op = "cross"
	OpGroup Op = "group"
)

// Valid reports whether op names a supported expansion operation.
func (op Op) Valid() bool {
	switch op {
	case OpMap, OpCross, OpGroup:
		return true
	default:
		return false
	}
}

// DynamicSpec describes how a dynamic target expands over its sources.
type DynamicSpec struct {
	// Op is the expansion operation: map, cross or group.
	Op Op
	// Sources is the ordered list of target names whose slices drive expansion.
	Sources []string
	// By is the grouping key expression, required for group and ignored otherwise.
	By hcl.Expression
	// ByText is the verbatim source text of By.
	ByText string
	// Trace is an optional expression recorded per sub-target at expansion time.
	Trace hcl.Expression
	// TraceText is the verbatim source text of Trace.
	TraceText string
	// MaxExpand caps how many sub-targets are materialized per run.
	// Zero means unlimited.
	MaxExpand int
}
