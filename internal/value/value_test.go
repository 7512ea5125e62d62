package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func TestSliceCount(t *testing.T) {
	cases := []struct {
		name string
		val  cty.Value
		want int
	}{
		{"list", cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)}), 2},
		{"tuple", cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.NumberIntVal(1), cty.True}), 3},
		{"empty_list", cty.ListValEmpty(cty.String), 0},
		{"string_singleton", cty.StringVal("solo"), 1},
		{"number_singleton", cty.NumberIntVal(42), 1},
		{"object_singleton", cty.ObjectVal(map[string]cty.Value{"a": cty.True}), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SliceCount(tc.val))
		})
	}
}

func TestSliceBroadcastsSingletons(t *testing.T) {
	v := cty.StringVal("solo")
	assert.Equal(t, v, Slice(v, 0))
	assert.Equal(t, v, Slice(v, 7))

	list := cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")})
	assert.Equal(t, cty.StringVal("b"), Slice(list, 1))
}

func TestConcatFlattensInGenerationOrder(t *testing.T) {
	got, err := Concat([]cty.Value{
		cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
		cty.StringVal("c"),
		cty.ListVal([]cty.Value{cty.StringVal("d")}),
	})
	require.NoError(t, err)
	require.Equal(t, 4, got.LengthInt())

	want := []string{"a", "b", "c", "d"}
	for i, elem := range Slices(got) {
		assert.Equal(t, want[i], elem.AsString())
	}
}

func TestConcatUnifiesNumbersAndStrings(t *testing.T) {
	// Numbers convert to strings under unification, so this is legal.
	got, err := Concat([]cty.Value{
		cty.ListVal([]cty.Value{cty.StringVal("a")}),
		cty.ListVal([]cty.Value{cty.NumberIntVal(1)}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, got.LengthInt())
}

func TestConcatRejectsMixedStructuralTypes(t *testing.T) {
	_, err := Concat([]cty.Value{
		cty.ListVal([]cty.Value{cty.StringVal("a")}),
		cty.ListVal([]cty.Value{cty.ListVal([]cty.Value{cty.True})}),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot concatenate")
}

func TestConcatEmpty(t *testing.T) {
	got, err := Concat(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, got.LengthInt())
}

func TestCollectKeepsMembersUnflattened(t *testing.T) {
	got := Collect([]cty.Value{
		cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)}),
		cty.ListVal([]cty.Value{cty.NumberIntVal(3)}),
	})
	// Two members, not three flattened elements.
	assert.Equal(t, 2, got.LengthInt())
}

func TestKeyString(t *testing.T) {
	got, err := KeyString(cty.StringVal("east"))
	require.NoError(t, err)
	assert.Equal(t, "east", got)

	got, err = KeyString(cty.NumberIntVal(7))
	require.NoError(t, err)
	assert.Equal(t, "7", got)

	got, err = KeyString(cty.False)
	require.NoError(t, err)
	assert.Equal(t, "false", got)

	_, err = KeyString(cty.NullVal(cty.String))
	assert.Error(t, err)

	_, err = KeyString(cty.ListValEmpty(cty.String))
	assert.Error(t, err)
}
