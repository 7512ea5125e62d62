package exprs

import (
	"testing"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func parseExpr(t *testing.T, src string) hcl.Expression {
	t.Helper()
	expr, diags := hclsyntax.ParseExpression([]byte(src), "test.hcl", hcl.InitialPos)
	require.False(t, diags.HasErrors(), diags.Error())
	return expr
}

func TestEvaluateWithVariablesAndFunctions(t *testing.T) {
	expr := parseExpr(t, `upper(element(words, 1))`)
	got, err := Evaluate(expr, map[string]cty.Value{
		"words": cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
	})
	require.NoError(t, err)
	assert.Equal(t, "B", got.AsString())
}

func TestEvaluateUndefinedVariable(t *testing.T) {
	expr := parseExpr(t, `upper(missing)`)
	_, err := Evaluate(expr, nil)
	assert.Error(t, err)
}

func TestEvaluateFunctionError(t *testing.T) {
	expr := parseExpr(t, `jsondecode("{invalid")`)
	_, err := Evaluate(expr, nil)
	assert.Error(t, err)
}

func TestReferencesCollectsSortedRoots(t *testing.T) {
	cmd := parseExpr(t, `format("%s-%d", zeta.name, length(alpha))`)
	by := parseExpr(t, `alpha`)
	got := References(cmd, by, nil)
	assert.Equal(t, []string{"alpha", "zeta"}, got)
}

func TestReferencesIgnoresFunctionNames(t *testing.T) {
	got := References(parseExpr(t, `sort(["b", "a"])`))
	assert.Empty(t, got)
}
