package dag

import "fmt"

// TargetID returns the node id for a declared target.
func TargetID(name string) string {
	return "target." + name
}

// SubTargetID returns the node id for sub-target i of a dynamic target.
func SubTargetID(parentID string, index int) string {
	return fmt.Sprintf("%s[%d]", parentID, index)
}

// GroupSubTargetID returns the node id for the group sub-target with the
// given key. The key literal is part of the identity, so an unchanged group
// keeps its id across runs regardless of where its slices sit in the source.
func GroupSubTargetID(parentID string, key string) string {
	return fmt.Sprintf("%s[%q]", parentID, key)
}
