// Package engine schedules and executes a compiled plan. A single
// coordinating loop owns every status transition, cache write and graph
// mutation, while a fixed-size worker pool evaluates target commands. The
// loop blocks on worker availability and completion signals; it never polls.
//
// Dynamic targets are dispatched twice: the first time the coordinator
// expands them into sub-target nodes and re-arms their dependency counter,
// the second time (once every materialized sub-target is terminal) it
// aggregates the sub-target values into the target's own value. Because the
// coordinator is the only goroutine that expands, concurrent expansion of
// one target cannot produce divergent sub-target sets.
//
// Failure of one target never aborts the run: its transitive descendants
// are marked blocked and skipped while independent branches proceed, and
// the final report aggregates all outcomes.
package engine
