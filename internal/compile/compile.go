// Package compile turns a validated plan into the static dependency graph
// skeleton the engine executes. All validation failures surface as
// *CompileError before any target runs.
package compile

import (
	"context"
	"fmt"
	"regexp"

	"github.com/vk/planforge/internal/config"
	"github.com/vk/planforge/internal/ctxlog"
	"github.com/vk/planforge/internal/dag"
	"github.com/vk/planforge/internal/exprs"
)

// CompileError describes a malformed plan: duplicate names, unresolved
// references, unsupported dynamic operations, or dependency cycles.
type CompileError struct {
	msg string
}

func (e *CompileError) Error() string {
	return e.msg
}

func errf(format string, args ...any) *CompileError {
	return &CompileError{msg: fmt.Sprintf(format, args...)}
}

// targetNamePattern matches names that are valid expression identifiers, so
// every declared target can be referenced from a command.
var targetNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]*$`)

// Compile validates the plan and produces the static graph skeleton with
// dynamic targets marked pending-expansion. The check is exhaustive: the
// first failure aborts compilation and nothing executes afterwards.
func Compile(ctx context.Context, plan *config.Plan) (*dag.Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Compile: starting plan compilation.", "target_count", len(plan.Targets))

	declared := make(map[string]*config.Target, len(plan.Targets))
	for _, t := range plan.Targets {
		if !targetNamePattern.MatchString(t.Name) {
			return nil, errf("invalid target name %q", t.Name)
		}
		if _, dup := declared[t.Name]; dup {
			return nil, errf("duplicate target name %q", t.Name)
		}
		declared[t.Name] = t
	}

	graph := dag.New()
	for _, t := range plan.Targets {
		kind := dag.KindStatic
		if t.Dynamic != nil {
			if err := validateDynamic(t, declared); err != nil {
				return nil, err
			}
			kind = dag.KindDynamic
		}
		node := &dag.Node{
			ID:          dag.TargetID(t.Name),
			Name:        t.Name,
			Kind:        kind,
			Command:     t.Command,
			CommandText: t.CommandText,
			Dynamic:     t.Dynamic,
		}
		if err := graph.AddNode(node); err != nil {
			return nil, errf("compiling target %q: %v", t.Name, err)
		}
	}
	logger.Debug("Compile: node creation complete.", "node_count", graph.Len())

	for _, t := range plan.Targets {
		if err := linkTarget(graph, t, declared); err != nil {
			return nil, err
		}
	}
	logger.Debug("Compile: dependency linking complete.")

	graph.SetInitialCounters()

	if err := graph.DetectCycles(); err != nil {
		return nil, errf("validating dependency graph: %v", err)
	}
	logger.Debug("Compile: cycle detection passed.")

	return graph, nil
}

// validateDynamic checks a dynamic spec against the declared target set.
func validateDynamic(t *config.Target, declared map[string]*config.Target) error {
	d := t.Dynamic
	if !d.Op.Valid() {
		return errf("target %q: unsupported dynamic operation %q", t.Name, d.Op)
	}
	if len(d.Sources) == 0 {
		return errf("target %q: dynamic %s requires at least one source", t.Name, d.Op)
	}
	for _, src := range d.Sources {
		if src == t.Name {
			return errf("target %q: cannot use itself as a dynamic source", t.Name)
		}
		if _, ok := declared[src]; !ok {
			return errf("target %q: unknown dynamic source %q", t.Name, src)
		}
	}
	if d.Op == config.OpGroup && d.By == nil {
		return errf("target %q: dynamic group requires a 'by' key expression", t.Name)
	}
	if d.Op != config.OpGroup && d.By != nil {
		return errf("target %q: 'by' is only valid for dynamic group", t.Name)
	}
	if d.MaxExpand < 0 {
		return errf("target %q: max_expand must not be negative", t.Name)
	}
	return nil
}

// linkTarget derives edges from the target's expressions and dynamic
// sources. Every referenced name must resolve to a declared target.
func linkTarget(graph *dag.Graph, t *config.Target, declared map[string]*config.Target) error {
	deps := make(map[string]struct{})

	var refs []string
	if t.Dynamic != nil {
		refs = exprs.References(t.Command, t.Dynamic.By, t.Dynamic.Trace)
		for _, src := range t.Dynamic.Sources {
			deps[src] = struct{}{}
		}
	} else {
		refs = exprs.References(t.Command)
	}

	for _, ref := range refs {
		if _, ok := declared[ref]; !ok {
			return errf("target %q: reference to undeclared target %q", t.Name, ref)
		}
		deps[ref] = struct{}{}
	}

	for dep := range deps {
		if dep == t.Name {
			return errf("target %q: command references itself", t.Name)
		}
		if err := graph.AddEdge(dag.TargetID(dep), dag.TargetID(t.Name)); err != nil {
			return errf("linking target %q: %v", t.Name, err)
		}
	}
	return nil
}
