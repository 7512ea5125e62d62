// Package exprs evaluates plan command expressions. It provides the shared
// evaluation context (variables plus a fixed function table) and reference
// extraction used to derive dependency edges from expressions.
package exprs

import (
	"fmt"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Functions is the fixed table of functions available to plan commands.
// Commands are otherwise opaque: the engine makes no assumptions about what
// a command computes, only that identical inputs yield interchangeable
// outputs.
var Functions = map[string]function.Function{
	"abs":        stdlib.AbsoluteFunc,
	"coalesce":   stdlib.CoalesceFunc,
	"concat":     stdlib.ConcatFunc,
	"csvdecode":  stdlib.CSVDecodeFunc,
	"element":    stdlib.ElementFunc,
	"flatten":    stdlib.FlattenFunc,
	"format":     stdlib.FormatFunc,
	"formatlist": stdlib.FormatListFunc,
	"int":        stdlib.IntFunc,
	"jsondecode": stdlib.JSONDecodeFunc,
	"jsonencode": stdlib.JSONEncodeFunc,
	"length":     stdlib.LengthFunc,
	"lower":      stdlib.LowerFunc,
	"max":        stdlib.MaxFunc,
	"min":        stdlib.MinFunc,
	"range":      stdlib.RangeFunc,
	"slice":      stdlib.SliceFunc,
	"sort":       stdlib.SortFunc,
	"strlen":     stdlib.StrlenFunc,
	"substr":     stdlib.SubstrFunc,
	"upper":      stdlib.UpperFunc,
	"zipmap":     stdlib.ZipmapFunc,
}

// EvalContext builds an hcl.EvalContext exposing the given target values as
// top-level variables alongside the shared function table.
func EvalContext(vars map[string]cty.Value) *hcl.EvalContext {
	ctyVars := make(map[string]cty.Value, len(vars))
	for name, val := range vars {
		ctyVars[name] = val
	}
	return &hcl.EvalContext{
		Variables: ctyVars,
		Functions: Functions,
	}
}

// Evaluate evaluates an expression against the given variables and collapses
// HCL diagnostics into a single error.
func Evaluate(expr hcl.Expression, vars map[string]cty.Value) (cty.Value, error) {
	val, diags := expr.Value(EvalContext(vars))
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluating expression: %w", diags)
	}
	return val, nil
}

// References returns the sorted set of root variable names an expression
// refers to. Each root name is expected to be a declared target.
func References(exprs ...hcl.Expression) []string {
	seen := make(map[string]struct{})
	for _, expr := range exprs {
		if expr == nil {
			continue
		}
		for _, traversal := range expr.Variables() {
			seen[traversal.RootName()] = struct{}{}
		}
	}
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}
