package engine

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/vk/planforge/internal/config"
	"github.com/vk/planforge/internal/ctxlog"
	"github.com/vk/planforge/internal/dag"
	"github.com/vk/planforge/internal/expand"
	"github.com/vk/planforge/internal/exprs"
	"github.com/vk/planforge/internal/fingerprint"
	"github.com/vk/planforge/internal/store"
	"github.com/vk/planforge/internal/value"
	"github.com/zclconf/go-cty/cty"
)

// dispatch is a unit of work handed to the pool: one target command bound
// to its dependency values.
type dispatch struct {
	node *dag.Node
	vars map[string]cty.Value
	fp   string
}

// completion is the result a worker reports back to the coordinator.
type completion struct {
	node  *dag.Node
	value cty.Value
	err   error
	fp    string
}

// run holds the mutable state of one coordinating loop. Only the
// coordinator goroutine touches it, which is what makes every status
// transition plus its cache write a single atomic unit.
type run struct {
	e   *Engine
	ctx context.Context

	queue     []dispatch
	remaining int
	inflight  int
	executed  int
	cached    int
}

// Run executes all outstanding work in the graph and returns a report of
// every target's final status. Target failures are captured in the report;
// the returned error is reserved for engine-level faults. Run consumes the
// engine: build a fresh graph and engine for each run.
func (e *Engine) Run(ctx context.Context) (*RunReport, error) {
	logger := ctxlog.FromContext(ctx)
	started := time.Now()

	work := make(chan dispatch)
	done := make(chan completion)

	var workerWG sync.WaitGroup
	for i := 0; i < e.jobs; i++ {
		workerWG.Add(1)
		go e.worker(ctx, i, work, done, &workerWG)
	}
	logger.Debug("Worker pool started.", "workers", e.jobs)

	r := &run{e: e, ctx: ctx, remaining: e.graph.Len()}

	// Seed the ready set with the graph's roots.
	for _, node := range e.graph.Ordered() {
		if node.DepCount() == 0 {
			r.processReady(node)
		}
	}

	var loopErr error
	cancelled := false
	for r.remaining > 0 {
		if ctx.Err() != nil {
			cancelled = true
			break
		}
		switch {
		case len(r.queue) > 0:
			next := r.queue[0]
			select {
			case work <- next:
				r.queue = r.queue[1:]
				r.inflight++
			case c := <-done:
				r.inflight--
				r.handleCompletion(c)
			case <-ctx.Done():
				cancelled = true
			}
		case r.inflight > 0:
			select {
			case c := <-done:
				r.inflight--
				r.handleCompletion(c)
			case <-ctx.Done():
				cancelled = true
			}
		default:
			// Nothing queued and nothing running, yet targets remain: the
			// graph has a node that can never become ready. Compilation
			// rejects cycles, so this is an engine invariant violation.
			loopErr = fmt.Errorf("no runnable targets with %d outstanding", r.remaining)
			r.remaining = 0
		}
		if cancelled {
			break
		}
	}

	close(work)
	// Already-running commands are allowed to finish; their results are
	// still committed so a later run can reuse them.
	for r.inflight > 0 {
		c := <-done
		r.inflight--
		r.handleCompletion(c)
	}
	workerWG.Wait()

	if cancelled {
		for _, node := range e.graph.Ordered() {
			if !node.Status().Terminal() {
				node.Err = ctx.Err()
				node.SetStatus(dag.Blocked)
			}
		}
	}

	report := buildReport(e.graph, r.executed, r.cached, time.Since(started))
	logger.Info("Run finished.",
		"run_id", report.RunID,
		"executed", report.Executed,
		"cached", report.Cached,
		"failed", report.Failed(),
	)
	return report, loopErr
}

// worker is the processing loop for one pool slot. Commands are opaque
// synchronous computations; the worker evaluates and reports, nothing more.
func (e *Engine) worker(ctx context.Context, id int, work <-chan dispatch, done chan<- completion, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "worker_id", id)

	for d := range work {
		logger.Debug("Worker picked up target.", "worker_id", id, "target", d.node.ID)
		val, err := exprs.Evaluate(d.node.Command, d.vars)
		done <- completion{node: d.node, value: val, err: err, fp: d.fp}
	}
	logger.Debug("Worker finished.", "worker_id", id)
}

// processReady handles a node whose dependencies all reached a terminal,
// successful state. It either resolves the node against the cache,
// dispatches it, expands it, or aggregates it.
func (r *run) processReady(node *dag.Node) {
	if node.Status() != dag.NotBuilt {
		return
	}
	switch {
	case node.Kind == dag.KindDynamic && !node.Expanded:
		r.expandNode(node)
	case node.Kind == dag.KindDynamic:
		r.aggregateNode(node)
	default:
		r.scheduleNode(node)
	}
}

// scheduleNode fingerprints a static or sub-target node, resolves it from
// cache when possible, and otherwise queues it for a worker.
func (r *run) scheduleNode(node *dag.Node) {
	logger := ctxlog.FromContext(r.ctx)

	fp, vars := r.prepare(node)
	if val, hit := r.e.store.Lookup(r.ctx, node.ID, fp); hit {
		logger.Debug("Cache hit, skipping execution.", "target", node.ID)
		node.Output = val
		node.Fingerprint = fp
		r.cached++
		r.finish(node, dag.UpToDate)
		return
	}

	logger.Debug("Cache miss, scheduling execution.", "target", node.ID)
	node.SetStatus(dag.Running)
	r.executed++
	r.queue = append(r.queue, dispatch{node: node, vars: vars, fp: fp})
}

// prepare computes a node's fingerprint and the variables its command
// evaluates against.
func (r *run) prepare(node *dag.Node) (string, map[string]cty.Value) {
	if node.Kind == dag.KindSub {
		return r.prepareSub(node)
	}

	vars := make(map[string]cty.Value, len(node.Deps))
	deps := make([]fingerprint.Dep, 0, len(node.Deps))
	for _, dep := range node.Deps {
		vars[dep.Name] = dep.Output
		deps = append(deps, fingerprint.Dep{Name: dep.Name, Fingerprint: dep.Fingerprint})
	}
	return fingerprint.Static(node.CommandText, deps), vars
}

// prepareSub fingerprints one sub-target: the parent command text, the
// sub-target's identity, its bound source slices, and the fingerprints of
// the parent's non-source dependencies. Group sub-targets hash their bound
// members order-insensitively so that reshuffled sources with unchanged
// membership stay cached.
func (r *run) prepareSub(node *dag.Node) (string, map[string]cty.Value) {
	parent := node.Parent
	spec := parent.Dynamic

	sourceSet := make(map[string]struct{}, len(spec.Sources))
	for _, s := range spec.Sources {
		sourceSet[s] = struct{}{}
	}

	vars := make(map[string]cty.Value)
	var deps []fingerprint.Dep
	for _, dep := range parent.Deps {
		if dep.Kind == dag.KindSub {
			continue
		}
		vars[dep.Name] = dep.Output
		if _, isSource := sourceSet[dep.Name]; !isSource {
			deps = append(deps, fingerprint.Dep{Name: dep.Name, Fingerprint: dep.Fingerprint})
		}
	}

	bindings := make([]fingerprint.Binding, 0, len(node.Bindings))
	for name, val := range node.Bindings {
		vars[name] = val
		bindings = append(bindings, fingerprint.Binding{Name: name, Value: val})
	}

	identity := strconv.Itoa(node.Index)
	if spec.Op == config.OpGroup {
		identity = node.Key
	}
	fp := fingerprint.Sub(node.CommandText, string(spec.Op), identity, bindings, deps, spec.Op == config.OpGroup)
	return fp, vars
}

// expandNode materializes a dynamic target's sub-targets and re-arms its
// dependency counter to wait for them.
func (r *run) expandNode(node *dag.Node) {
	logger := ctxlog.FromContext(r.ctx)
	spec := node.Dynamic

	sources := make(map[string]cty.Value, len(spec.Sources))
	sourceSet := make(map[string]struct{}, len(spec.Sources))
	for _, name := range spec.Sources {
		sources[name] = r.e.graph.Node(dag.TargetID(name)).Output
		sourceSet[name] = struct{}{}
	}
	extra := make(map[string]cty.Value)
	for _, dep := range node.Deps {
		if _, isSource := sourceSet[dep.Name]; !isSource && dep.Kind != dag.KindSub {
			extra[dep.Name] = dep.Output
		}
	}

	res, err := expand.Expand(spec, sources, extra, r.e.effectiveCap(spec.MaxExpand))
	if err != nil {
		logger.Error("Expansion failed.", "target", node.ID, "error", err)
		r.fail(node, err)
		return
	}
	node.Expanded = true
	node.Truncated = res.Truncated
	logger.Debug("Expanded dynamic target.",
		"target", node.ID, "op", spec.Op, "sub_targets", len(res.Subs), "truncated", res.Truncated)

	var traces []store.TraceValue
	for _, sp := range res.Subs {
		id := dag.SubTargetID(node.ID, sp.Index)
		if spec.Op == config.OpGroup {
			id = dag.GroupSubTargetID(node.ID, sp.Key)
		}
		sub := &dag.Node{
			ID:          id,
			Name:        node.Name,
			Kind:        dag.KindSub,
			Command:     node.Command,
			CommandText: node.CommandText,
			Parent:      node,
			Index:       sp.Index,
			Key:         sp.Key,
			Bindings:    sp.Bindings,
		}
		if err := r.e.graph.AddNode(sub); err != nil {
			r.abortExpansion(node, expand.Errorf("materializing %s: %v", id, err))
			return
		}
		if err := r.e.graph.AddEdge(sub.ID, node.ID); err != nil {
			r.abortExpansion(node, expand.Errorf("linking %s: %v", id, err))
			return
		}
		node.Subs = append(node.Subs, sub)
		r.remaining++
		if sp.HasTrace {
			traces = append(traces, store.TraceValue{SubTargetID: id, Value: sp.Trace})
		}
	}

	// Trace values are recorded at expansion time, independent of whether
	// any sub-target is rebuilt or served from cache.
	if spec.Trace != nil {
		if err := r.e.store.CommitTrace(r.ctx, node.ID, traces); err != nil {
			r.fail(node, err)
			return
		}
	}

	node.SetDepCount(int32(len(node.Subs)))
	if len(node.Subs) == 0 {
		r.aggregateNode(node)
		return
	}
	for _, sub := range node.Subs {
		r.processReady(sub)
	}
}

// abortExpansion fails a dynamic target partway through materialization,
// retiring any sub-targets already inserted so the run can still drain.
func (r *run) abortExpansion(node *dag.Node, err error) {
	for _, sub := range node.Subs {
		sub.Err = &BlockedError{TargetID: sub.ID, Upstream: node.ID}
		sub.SetStatus(dag.Blocked)
		r.remaining--
	}
	node.Subs = nil
	r.fail(node, err)
}

// aggregateNode concatenates a dynamic target's materialized sub-target
// values, in generation order, into the target's own value.
func (r *run) aggregateNode(node *dag.Node) {
	logger := ctxlog.FromContext(r.ctx)

	outputs := make([]cty.Value, 0, len(node.Subs))
	subDeps := make([]fingerprint.Dep, 0, len(node.Subs))
	for _, sub := range node.Subs {
		outputs = append(outputs, sub.Output)
		subDeps = append(subDeps, fingerprint.Dep{Name: sub.ID, Fingerprint: sub.Fingerprint})
	}

	agg, err := value.Concat(outputs)
	if err != nil {
		r.fail(node, expand.Errorf("aggregating %s: %v", node.ID, err))
		return
	}

	fp := fingerprint.Aggregate(node.CommandText, string(node.Dynamic.Op), subDeps)
	node.Output = agg
	node.Fingerprint = fp

	if _, hit := r.e.store.Lookup(r.ctx, node.ID, fp); hit {
		r.finish(node, dag.UpToDate)
		return
	}
	if err := r.e.store.Commit(r.ctx, node.ID, fp, agg); err != nil {
		logger.Error("Cache commit failed.", "target", node.ID, "error", err)
		r.fail(node, err)
		return
	}
	r.finish(node, dag.Built)
}

// handleCompletion applies one worker result: commit then transition, as a
// single unit from every other goroutine's point of view.
func (r *run) handleCompletion(c completion) {
	logger := ctxlog.FromContext(r.ctx)
	node := c.node

	if c.err != nil {
		logger.Error("Target execution failed.", "target", node.ID, "error", c.err)
		r.fail(node, &ExecutionError{TargetID: node.ID, Err: c.err})
		return
	}

	if err := r.e.store.Commit(r.ctx, node.ID, c.fp, c.value); err != nil {
		logger.Error("Cache commit failed.", "target", node.ID, "error", err)
		r.fail(node, err)
		return
	}
	node.Output = c.value
	node.Fingerprint = c.fp
	r.finish(node, dag.Built)
}

// finish commits a successful terminal status and unlocks dependents whose
// last outstanding dependency this was.
func (r *run) finish(node *dag.Node, status dag.Status) {
	node.SetStatus(status)
	r.remaining--
	for _, dependent := range node.Dependents {
		if dependent.DepCountAdd(-1) == 0 {
			r.processReady(dependent)
		}
	}
}

// fail records a target error and transitively blocks its descendants.
// Independent branches are untouched and keep executing.
func (r *run) fail(node *dag.Node, err error) {
	node.Err = err
	node.SetStatus(dag.Errored)
	r.remaining--
	r.blockDependents(node)
}

// blockDependents marks every not-yet-started descendant as blocked.
// Descendants already running are left to finish; their results remain
// reusable by a later run.
func (r *run) blockDependents(node *dag.Node) {
	logger := ctxlog.FromContext(r.ctx)
	for _, dependent := range node.Dependents {
		if dependent.Status() != dag.NotBuilt {
			continue
		}
		logger.Warn("Blocking target due to upstream failure.",
			"target", dependent.ID, "upstream", node.ID)
		dependent.Err = &BlockedError{TargetID: dependent.ID, Upstream: node.ID}
		dependent.SetStatus(dag.Blocked)
		r.remaining--
		r.blockDependents(dependent)
	}
}
