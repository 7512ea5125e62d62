// Package schema holds the HCL-specific block structures a plan file is
// decoded into, before translation to the format-agnostic config model.
package schema

import (
	"github.com/hashicorp/hcl/v2"
)

// Target represents a `target` block from a user's plan file.
type Target struct {
	Name    string         `hcl:"name,label"`
	Command hcl.Expression `hcl:"command"`
	Dynamic *Dynamic       `hcl:"dynamic,block"`
}

// Dynamic represents the `dynamic` block within a target. It declares how
// the target expands into sub-targets once its sources are built.
type Dynamic struct {
	Op        string         `hcl:"op"`
	Sources   []string       `hcl:"sources"`
	By        hcl.Expression `hcl:"by,optional"`
	Trace     hcl.Expression `hcl:"trace,optional"`
	MaxExpand *int           `hcl:"max_expand,optional"`
}

// PlanFile represents the top-level structure of a user's plan file,
// containing all declared targets.
type PlanFile struct {
	Targets []*Target `hcl:"target,block"`
	Body    hcl.Body  `hcl:",remain"`
}
