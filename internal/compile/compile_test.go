package compile_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/planforge/internal/compile"
	"github.com/vk/planforge/internal/dag"
	"github.com/vk/planforge/internal/testutil"
)

func TestCompileBuildsStaticGraph(t *testing.T) {
	h := testutil.New(t)
	graph, err := h.Compile(`
		target "words" {
			command = sort(["pear", "apple"])
		}
		target "upper" {
			command = upper(element(words, 0))
		}
	`)
	require.NoError(t, err)
	require.Equal(t, 2, graph.Len())

	upper := graph.Node(dag.TargetID("upper"))
	require.NotNil(t, upper)
	assert.Equal(t, dag.KindStatic, upper.Kind)
	assert.Contains(t, upper.Deps, dag.TargetID("words"))
	assert.Equal(t, int32(1), upper.DepCount())

	words := graph.Node(dag.TargetID("words"))
	assert.Equal(t, int32(0), words.DepCount())
	assert.Contains(t, words.Dependents, dag.TargetID("upper"))
}

func TestCompileMarksDynamicTargets(t *testing.T) {
	h := testutil.New(t)
	graph, err := h.Compile(`
		target "words" {
			command = ["a", "b"]
		}
		target "upper" {
			command = upper(words)
			dynamic {
				op      = "map"
				sources = ["words"]
			}
		}
	`)
	require.NoError(t, err)

	upper := graph.Node(dag.TargetID("upper"))
	require.NotNil(t, upper)
	assert.Equal(t, dag.KindDynamic, upper.Kind)
	require.NotNil(t, upper.Dynamic)
	assert.Contains(t, upper.Deps, dag.TargetID("words"))
}

func TestCompileRejectsDuplicateName(t *testing.T) {
	h := testutil.New(t)
	_, err := h.Compile(`
		target "a" { command = 1 }
		target "a" { command = 2 }
	`)
	requireCompileError(t, err, "duplicate target name")
}

func TestCompileRejectsUndeclaredReference(t *testing.T) {
	h := testutil.New(t)
	_, err := h.Compile(`
		target "a" { command = upper(missing) }
	`)
	requireCompileError(t, err, "undeclared target")
}

func TestCompileRejectsUnknownDynamicSource(t *testing.T) {
	h := testutil.New(t)
	_, err := h.Compile(`
		target "a" {
			command = upper(b)
			dynamic {
				op      = "map"
				sources = ["b"]
			}
		}
	`)
	requireCompileError(t, err, "unknown dynamic source")
}

func TestCompileRejectsUnsupportedOp(t *testing.T) {
	h := testutil.New(t)
	_, err := h.Compile(`
		target "words" { command = ["a"] }
		target "a" {
			command = upper(words)
			dynamic {
				op      = "zip"
				sources = ["words"]
			}
		}
	`)
	requireCompileError(t, err, "unsupported dynamic operation")
}

func TestCompileRejectsGroupWithoutBy(t *testing.T) {
	h := testutil.New(t)
	_, err := h.Compile(`
		target "rows" { command = ["a"] }
		target "grouped" {
			command = length(rows)
			dynamic {
				op      = "group"
				sources = ["rows"]
			}
		}
	`)
	requireCompileError(t, err, "requires a 'by'")
}

func TestCompileRejectsByOutsideGroup(t *testing.T) {
	h := testutil.New(t)
	_, err := h.Compile(`
		target "rows" { command = ["a"] }
		target "mapped" {
			command = upper(rows)
			dynamic {
				op      = "map"
				sources = ["rows"]
				by      = rows
			}
		}
	`)
	requireCompileError(t, err, "only valid for dynamic group")
}

func TestCompileRejectsNegativeMaxExpand(t *testing.T) {
	h := testutil.New(t)
	_, err := h.Compile(`
		target "rows" { command = ["a"] }
		target "mapped" {
			command = upper(rows)
			dynamic {
				op         = "map"
				sources    = ["rows"]
				max_expand = -1
			}
		}
	`)
	requireCompileError(t, err, "max_expand")
}

func TestCompileRejectsSelfSource(t *testing.T) {
	h := testutil.New(t)
	_, err := h.Compile(`
		target "a" {
			command = upper(a)
			dynamic {
				op      = "map"
				sources = ["a"]
			}
		}
	`)
	requireCompileError(t, err, "itself")
}

func TestCompileRejectsCycle(t *testing.T) {
	h := testutil.New(t)
	_, err := h.Compile(`
		target "a" { command = upper(b) }
		target "b" { command = upper(a) }
	`)
	requireCompileError(t, err, "cycle detected")
}

func requireCompileError(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	var cerr *compile.CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), contains)
}
