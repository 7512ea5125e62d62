// Package dag holds the dependency graph the engine executes: nodes keyed
// by stable id, edges derived from command references, and support for
// inserting sub-target nodes while a run is in progress. Readiness is
// tracked with per-node dependency counters that the engine re-arms after
// each expansion event, so no iterator is ever held across a mutation.
package dag
