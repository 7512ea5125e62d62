package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/planforge/internal/config"
	"github.com/vk/planforge/internal/schema"
)

// translateTarget converts the HCL-specific target schema into the agnostic
// model, capturing the verbatim source text of each expression so that
// fingerprints remain stable across loads.
func translateTarget(s *schema.Target, fileBytes []byte) (*config.Target, error) {
	command := declaredExpr(s.Command)
	if command == nil {
		return nil, fmt.Errorf("target %q has no command", s.Name)
	}

	t := &config.Target{
		Name:        s.Name,
		Command:     command,
		CommandText: exprText(command, fileBytes),
	}

	if s.Dynamic == nil {
		return t, nil
	}

	d := &config.DynamicSpec{
		Op:      config.Op(s.Dynamic.Op),
		Sources: s.Dynamic.Sources,
	}
	if by := declaredExpr(s.Dynamic.By); by != nil {
		d.By = by
		d.ByText = exprText(by, fileBytes)
	}
	if trace := declaredExpr(s.Dynamic.Trace); trace != nil {
		d.Trace = trace
		d.TraceText = exprText(trace, fileBytes)
	}
	if s.Dynamic.MaxExpand != nil {
		d.MaxExpand = *s.Dynamic.MaxExpand
	}
	t.Dynamic = d
	return t, nil
}

// declaredExpr returns expr, or nil when the attribute was absent from the
// source. gohcl fills absent expression fields with a synthetic static-null
// expression instead of leaving them nil; the synthetic expression carries a
// zero-length source range, which no written expression can have.
func declaredExpr(expr hcl.Expression) hcl.Expression {
	if expr == nil {
		return nil
	}
	rng := expr.Range()
	if rng.Start.Byte >= rng.End.Byte {
		return nil
	}
	return expr
}

// exprText slices the expression's verbatim source text out of the file it
// was parsed from. Falls back to the range string if the range lies outside
// the buffer, which only happens for synthetic expressions.
func exprText(expr hcl.Expression, fileBytes []byte) string {
	rng := expr.Range()
	if rng.Start.Byte < 0 || rng.End.Byte > len(fileBytes) || rng.Start.Byte > rng.End.Byte {
		return rng.String()
	}
	return string(rng.SliceBytes(fileBytes))
}
