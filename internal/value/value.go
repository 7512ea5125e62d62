// Package value defines the narrow capability a value must satisfy to
// participate in dynamic expansion: counting slices, addressing one slice,
// and concatenating slices back into one value. Lists, sets and tuples are
// sliceable; every other value is a singleton that broadcasts.
package value

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// Sliceable reports whether v can be addressed slice by slice.
func Sliceable(v cty.Value) bool {
	if v.IsNull() || !v.IsKnown() {
		return false
	}
	ty := v.Type()
	return ty.IsListType() || ty.IsSetType() || ty.IsTupleType()
}

// SliceCount returns the number of addressable slices in v. Singleton
// values count as one slice so they can broadcast across an expansion.
func SliceCount(v cty.Value) int {
	if !Sliceable(v) {
		return 1
	}
	return v.LengthInt()
}

// Slices returns the addressable slices of v in element order. For a
// singleton value the result is the value itself.
func Slices(v cty.Value) []cty.Value {
	if !Sliceable(v) {
		return []cty.Value{v}
	}
	out := make([]cty.Value, 0, v.LengthInt())
	for it := v.ElementIterator(); it.Next(); {
		_, elem := it.Element()
		out = append(out, elem)
	}
	return out
}

// Slice returns slice i of v. Singleton values broadcast: any index yields
// the value itself.
func Slice(v cty.Value, i int) cty.Value {
	if !Sliceable(v) {
		return v
	}
	slices := Slices(v)
	return slices[i]
}

// Concat flattens each input value into its slices and concatenates them,
// in order, into a single list of one unified element type. Inputs whose
// element types cannot be unified are a fatal aggregation error.
func Concat(vals []cty.Value) (cty.Value, error) {
	var elems []cty.Value
	for _, v := range vals {
		elems = append(elems, Slices(v)...)
	}
	if len(elems) == 0 {
		return cty.EmptyTupleVal, nil
	}

	types := make([]cty.Type, len(elems))
	for i, e := range elems {
		types[i] = e.Type()
	}
	unified, conversions := convert.UnifyUnsafe(types)
	if unified == cty.NilType {
		return cty.NilVal, fmt.Errorf("cannot concatenate mixed element types: %s vs %s",
			types[0].FriendlyName(), firstMismatch(types).FriendlyName())
	}

	converted := make([]cty.Value, len(elems))
	for i, e := range elems {
		if conversions[i] == nil {
			converted[i] = e
			continue
		}
		c, err := conversions[i](e)
		if err != nil {
			return cty.NilVal, fmt.Errorf("cannot concatenate element %d: %w", i, err)
		}
		converted[i] = c
	}
	if unified == cty.DynamicPseudoType {
		return cty.TupleVal(converted), nil
	}
	return cty.ListVal(converted), nil
}

// Collect packs elements into a single sliceable value without flattening:
// a list when the element types unify, a tuple otherwise. Used to hand a
// group sub-target the concatenation of its member slices.
func Collect(elems []cty.Value) cty.Value {
	if len(elems) == 0 {
		return cty.EmptyTupleVal
	}
	types := make([]cty.Type, len(elems))
	for i, e := range elems {
		types[i] = e.Type()
	}
	unified, conversions := convert.UnifyUnsafe(types)
	if unified == cty.NilType || unified == cty.DynamicPseudoType {
		return cty.TupleVal(elems)
	}
	converted := make([]cty.Value, len(elems))
	for i, e := range elems {
		if conversions[i] == nil {
			converted[i] = e
			continue
		}
		c, err := conversions[i](e)
		if err != nil {
			return cty.TupleVal(elems)
		}
		converted[i] = c
	}
	return cty.ListVal(converted)
}

// firstMismatch returns the first type that differs from types[0], or
// types[0] itself if all match.
func firstMismatch(types []cty.Type) cty.Type {
	for _, t := range types[1:] {
		if !t.Equals(types[0]) {
			return t
		}
	}
	return types[0]
}

// KeyString renders a grouping key value as the stable string that becomes
// part of a sub-target's identity.
func KeyString(v cty.Value) (string, error) {
	if v.IsNull() || !v.IsKnown() {
		return "", fmt.Errorf("grouping key must be a known, non-null value")
	}
	switch v.Type() {
	case cty.String:
		return v.AsString(), nil
	case cty.Number:
		return v.AsBigFloat().Text('f', -1), nil
	case cty.Bool:
		if v.True() {
			return "true", nil
		}
		return "false", nil
	default:
		return "", fmt.Errorf("grouping key must be a string, number or bool, got %s", v.Type().FriendlyName())
	}
}
