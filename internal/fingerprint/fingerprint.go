// Package fingerprint computes the content hashes that drive staleness
// detection and cache reuse. A fingerprint covers a target's command text
// and the fingerprints of its direct dependencies, so an upstream change
// invalidates exactly the downstream targets that consume it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// hasher accumulates length-prefixed fields so that no two distinct field
// sequences can produce the same byte stream.
type hasher struct {
	h [32]byte
	b []byte
}

func newHasher(kind string) *hasher {
	hs := &hasher{}
	hs.field([]byte(kind))
	return hs
}

func (hs *hasher) field(data []byte) {
	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(data)))
	hs.b = append(hs.b, length[:]...)
	hs.b = append(hs.b, data...)
}

func (hs *hasher) strField(s string) { hs.field([]byte(s)) }

func (hs *hasher) sum() string {
	sum := sha256.Sum256(hs.b)
	return hex.EncodeToString(sum[:])
}

// Dep pairs a dependency's name with its fingerprint.
type Dep struct {
	Name        string
	Fingerprint string
}

// sortedDeps returns a copy of deps sorted by name, so that map iteration
// order never leaks into a fingerprint.
func sortedDeps(deps []Dep) []Dep {
	out := make([]Dep, len(deps))
	copy(out, deps)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Static fingerprints a static target: its command text plus the
// fingerprints of its direct dependencies.
func Static(commandText string, deps []Dep) string {
	hs := newHasher("static")
	hs.strField(commandText)
	for _, d := range sortedDeps(deps) {
		hs.strField(d.Name)
		hs.strField(d.Fingerprint)
	}
	return hs.sum()
}

// Binding pairs a source name with the concrete value bound to it for one
// sub-target.
type Binding struct {
	Name  string
	Value cty.Value
}

// Sub fingerprints one sub-target of a dynamic target. The hash covers the
// parent's command text, the operation, the sub-target's identity within
// the expansion, the serialized bound inputs, and the fingerprints of any
// non-source dependencies.
//
// For group sub-targets the bound value is a concatenation of member
// slices; orderInsensitive hashes the members as a sorted set so that a
// reordered source with unchanged group membership still hits the cache.
func Sub(commandText string, op string, identity string, bindings []Binding, deps []Dep, orderInsensitive bool) string {
	hs := newHasher("sub")
	hs.strField(commandText)
	hs.strField(op)
	hs.strField(identity)

	sorted := make([]Binding, len(bindings))
	copy(sorted, bindings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	for _, b := range sorted {
		hs.strField(b.Name)
		hs.field(marshalValue(b.Value, orderInsensitive))
	}

	for _, d := range sortedDeps(deps) {
		hs.strField(d.Name)
		hs.strField(d.Fingerprint)
	}
	return hs.sum()
}

// Aggregate fingerprints a dynamic target's aggregate value: the command
// text plus the ordered fingerprints of the materialized sub-targets.
func Aggregate(commandText string, op string, subs []Dep) string {
	hs := newHasher("aggregate")
	hs.strField(commandText)
	hs.strField(op)
	for _, s := range subs {
		hs.strField(s.Name)
		hs.strField(s.Fingerprint)
	}
	return hs.sum()
}

// marshalValue serializes a cty value for hashing. With orderInsensitive
// set, a sliceable value is hashed as the sorted multiset of its serialized
// elements instead of the element sequence.
func marshalValue(v cty.Value, orderInsensitive bool) []byte {
	if orderInsensitive && !v.IsNull() && v.IsKnown() &&
		(v.Type().IsListType() || v.Type().IsTupleType() || v.Type().IsSetType()) {
		var parts []string
		for it := v.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			parts = append(parts, string(marshalValue(elem, false)))
		}
		sort.Strings(parts)
		hs := newHasher("set")
		for _, p := range parts {
			hs.strField(p)
		}
		return []byte(hs.sum())
	}

	data, err := ctyjson.Marshal(v, v.Type())
	if err != nil {
		// Unknown or unserializable values cannot participate in a stable
		// fingerprint; hash the type name so the entry is at least distinct.
		return []byte("!" + v.Type().FriendlyName())
	}
	return data
}
