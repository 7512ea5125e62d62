// Package expand materializes the concrete sub-targets of a dynamic target
// once all of its sources have been built. Expansion is pure: it reads
// source values and produces sub-target plans, leaving graph insertion and
// scheduling to the engine.
package expand

import (
	"fmt"

	"github.com/vk/planforge/internal/config"
	"github.com/vk/planforge/internal/exprs"
	"github.com/vk/planforge/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// ExpansionError describes a dynamic target that cannot expand: mismatched
// slice counts with no viable broadcast, an unusable grouping key, or
// sub-target values that cannot be aggregated. It fails only the affected
// dynamic target and its descendants.
type ExpansionError struct {
	msg string
}

func (e *ExpansionError) Error() string {
	return e.msg
}

// Errorf builds an ExpansionError.
func Errorf(format string, args ...any) *ExpansionError {
	return &ExpansionError{msg: fmt.Sprintf(format, args...)}
}

// SubPlan describes one sub-target to materialize.
type SubPlan struct {
	// Index is the sub-target's position in generation order.
	Index int
	// Key is the grouping key literal; empty for map and cross.
	Key string
	// Bindings maps each source name to the value bound for this sub-target.
	Bindings map[string]cty.Value
	// Trace is the recorded trace value; valid only when HasTrace is set.
	Trace    cty.Value
	HasTrace bool
}

// Result is the outcome of expanding one dynamic target.
type Result struct {
	Subs []SubPlan
	// Truncated is set when a max_expand cap cut the generated sub-target
	// list short. Unmaterialized indices are not errors; a later uncapped
	// run extends the expansion.
	Truncated bool
}

// Expand materializes sub-target plans for a dynamic spec. sources maps
// each source name to its built value; extra supplies the values of any
// other targets the by/trace expressions reference. cap limits how many
// sub-targets are produced; zero means unlimited.
func Expand(spec *config.DynamicSpec, sources map[string]cty.Value, extra map[string]cty.Value, cap int) (*Result, error) {
	var (
		subs []SubPlan
		err  error
	)
	switch spec.Op {
	case config.OpMap:
		subs, err = expandMap(spec, sources, extra)
	case config.OpCross:
		subs, err = expandCross(spec, sources, extra)
	case config.OpGroup:
		subs, err = expandGroup(spec, sources, extra)
	default:
		err = Errorf("unsupported dynamic operation %q", spec.Op)
	}
	if err != nil {
		return nil, err
	}

	res := &Result{Subs: subs}
	if cap > 0 && len(subs) > cap {
		res.Subs = subs[:cap]
		res.Truncated = true
	}
	return res, nil
}

// expandMap binds slice i of each source to sub-target i. Sources must
// share one slice count; single-slice sources broadcast. An empty source
// yields zero sub-targets, but cannot broadcast against a multi-slice one.
func expandMap(spec *config.DynamicSpec, sources, extra map[string]cty.Value) ([]SubPlan, error) {
	n := 1
	empty := ""
	for _, name := range spec.Sources {
		c := value.SliceCount(sources[name])
		switch {
		case c == 0:
			if empty == "" {
				empty = name
			}
		case c == 1:
			// singleton, broadcasts
		case n == 1:
			n = c
		case c != n:
			return nil, Errorf("map source %q has %d slices, want %d (no broadcast possible)", name, c, n)
		}
	}
	if empty != "" {
		if n > 1 {
			return nil, Errorf("map source %q has 0 slices, want %d (no broadcast possible)", empty, n)
		}
		return nil, nil
	}

	subs := make([]SubPlan, 0, n)
	for i := 0; i < n; i++ {
		bindings := make(map[string]cty.Value, len(spec.Sources))
		for _, name := range spec.Sources {
			src := sources[name]
			idx := i
			if value.SliceCount(src) == 1 {
				idx = 0
			}
			bindings[name] = value.Slice(src, idx)
		}
		sub := SubPlan{Index: i, Bindings: bindings}
		if err := evalTrace(spec, &sub, bindings, extra); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// expandCross binds every combination of source slices, one sub-target per
// ordered tuple. Generation order is row-major: the first source varies
// slowest and the last source varies fastest. This order is fixed; it
// defines sub-target identity and aggregate read order.
func expandCross(spec *config.DynamicSpec, sources, extra map[string]cty.Value) ([]SubPlan, error) {
	counts := make([]int, len(spec.Sources))
	n := 1
	for i, name := range spec.Sources {
		counts[i] = value.SliceCount(sources[name])
		n *= counts[i]
	}

	subs := make([]SubPlan, 0, n)
	for i := 0; i < n; i++ {
		bindings := make(map[string]cty.Value, len(spec.Sources))
		rem := i
		stride := n
		for s, name := range spec.Sources {
			stride /= counts[s]
			pos := rem / stride
			rem %= stride
			bindings[name] = value.Slice(sources[name], pos)
		}
		sub := SubPlan{Index: i, Bindings: bindings}
		if err := evalTrace(spec, &sub, bindings, extra); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// expandGroup partitions the first source's slices by the co-sliced value
// of the key expression: one sub-target per distinct key, in first
// appearance order, bound to the collection of all member slices. The key
// literal becomes part of the sub-target's identity.
func expandGroup(spec *config.DynamicSpec, sources, extra map[string]cty.Value) ([]SubPlan, error) {
	base := sources[spec.Sources[0]]
	n := value.SliceCount(base)

	var keys []string
	members := make(map[string][]cty.Value)
	firstIndex := make(map[string]int)

	for i := 0; i < n; i++ {
		vars := cosliceVars(spec, sources, extra, i, n)
		keyVal, err := exprs.Evaluate(spec.By, vars)
		if err != nil {
			return nil, Errorf("evaluating group key for slice %d: %v", i, err)
		}
		key, err := value.KeyString(keyVal)
		if err != nil {
			return nil, Errorf("group key for slice %d: %v", i, err)
		}
		if _, seen := members[key]; !seen {
			keys = append(keys, key)
			firstIndex[key] = i
		}
		members[key] = append(members[key], value.Slice(base, i))
	}

	subs := make([]SubPlan, 0, len(keys))
	for order, key := range keys {
		bindings := make(map[string]cty.Value, len(spec.Sources))
		bindings[spec.Sources[0]] = value.Collect(members[key])
		for _, name := range spec.Sources[1:] {
			bindings[name] = sources[name]
		}
		sub := SubPlan{Index: order, Key: key, Bindings: bindings}
		if spec.Trace != nil {
			// The trace value for a group is taken at the representative
			// (first) member slice.
			vars := cosliceVars(spec, sources, extra, firstIndex[key], n)
			traceVal, err := exprs.Evaluate(spec.Trace, vars)
			if err != nil {
				return nil, Errorf("evaluating trace for group %q: %v", key, err)
			}
			sub.Trace = traceVal
			sub.HasTrace = true
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

// cosliceVars builds the evaluation variables for per-slice expressions:
// each source aligned with the base slice count is bound to its slice i,
// everything else to its whole value.
func cosliceVars(spec *config.DynamicSpec, sources, extra map[string]cty.Value, i, n int) map[string]cty.Value {
	vars := make(map[string]cty.Value, len(sources)+len(extra))
	for name, val := range extra {
		vars[name] = val
	}
	for _, name := range spec.Sources {
		src := sources[name]
		if value.SliceCount(src) == n {
			vars[name] = value.Slice(src, i)
		} else {
			vars[name] = src
		}
	}
	return vars
}

// evalTrace records the trace expression's value for a map or cross
// sub-target, evaluated against the sub-target's own bindings.
func evalTrace(spec *config.DynamicSpec, sub *SubPlan, bindings, extra map[string]cty.Value) error {
	if spec.Trace == nil {
		return nil
	}
	vars := make(map[string]cty.Value, len(bindings)+len(extra))
	for name, val := range extra {
		vars[name] = val
	}
	for name, val := range bindings {
		vars[name] = val
	}
	traceVal, err := exprs.Evaluate(spec.Trace, vars)
	if err != nil {
		return Errorf("evaluating trace for sub-target %d: %v", sub.Index, err)
	}
	sub.Trace = traceVal
	sub.HasTrace = true
	return nil
}
