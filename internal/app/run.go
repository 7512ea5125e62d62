package app

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vk/planforge/internal/compile"
	"github.com/vk/planforge/internal/ctxlog"
	"github.com/vk/planforge/internal/dag"
	"github.com/vk/planforge/internal/engine"
	"github.com/vk/planforge/internal/store"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Run executes the main application logic: clean verbs, or compile + run +
// any requested inspection output.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	st, err := store.Open(a.config.CacheDir)
	if err != nil {
		return err
	}
	defer st.Close()

	if a.config.Clean || a.config.Destroy {
		a.logger.Info("Purging cache state.", "destroy", a.config.Destroy)
		return st.Clean(a.config.Destroy)
	}

	a.logger.Debug("Compiling plan into dependency graph...")
	graph, err := compile.Compile(ctx, a.plan)
	if err != nil {
		return fmt.Errorf("failed to compile plan: %w", err)
	}
	a.logger.Debug("Dependency graph compiled.", "node_count", graph.Len())

	eng := engine.New(graph, st, engine.Options{
		Jobs:      a.config.Jobs,
		MaxExpand: a.config.MaxExpand,
	})

	a.logger.Info("Starting run.", "jobs", a.config.Jobs, "targets", graph.Len())
	report, err := eng.Run(ctx)
	if err != nil {
		return fmt.Errorf("run aborted: %w", err)
	}
	a.reportOutcomes(report)

	if err := a.inspect(ctx, eng); err != nil {
		return err
	}

	if report.Failed() {
		return fmt.Errorf("run %s finished with failures: %w", report.RunID, report.Err())
	}
	return nil
}

// reportOutcomes logs each target's final status at a level matching its
// outcome.
func (a *App) reportOutcomes(report *engine.RunReport) {
	for _, t := range report.Targets {
		switch t.Status {
		case dag.Errored:
			a.logger.Error("Target errored.", "target", t.ID, "error", t.Err)
		case dag.Blocked:
			a.logger.Warn("Target blocked.", "target", t.ID, "error", t.Err)
		default:
			a.logger.Info("Target finished.", "target", t.ID, "status", t.Status.String())
		}
	}
	a.logger.Info("Run summary.",
		"run_id", report.RunID,
		"executed", report.Executed,
		"cached", report.Cached,
		"elapsed", report.Elapsed,
	)
}

// inspect prints any requested post-run views of the graph, values or
// traces to the application's output writer.
func (a *App) inspect(ctx context.Context, eng *engine.Engine) error {
	if a.config.ReadTarget != "" {
		val, err := eng.Read(ctx, a.config.ReadTarget, engine.ReadMode(a.config.ReadMode))
		if err != nil {
			return err
		}
		data, err := ctyjson.Marshal(val, val.Type())
		if err != nil {
			return fmt.Errorf("rendering value of %s: %w", a.config.ReadTarget, err)
		}
		fmt.Fprintln(a.outW, string(data))
	}

	if a.config.TraceTarget != "" {
		traces, err := eng.ReadTrace(ctx, a.config.TraceTarget)
		if err != nil {
			return err
		}
		for _, tv := range traces {
			data, err := ctyjson.Marshal(tv.Value, tv.Value.Type())
			if err != nil {
				return fmt.Errorf("rendering trace of %s: %w", tv.SubTargetID, err)
			}
			fmt.Fprintf(a.outW, "%s\t%s\n", tv.SubTargetID, string(data))
		}
	}

	if a.config.SubTargetsOf != "" {
		ids, err := eng.SubTargets(a.config.SubTargetsOf)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(a.outW, id)
		}
	}

	if a.config.GraphJSON {
		data, err := json.Marshal(eng.GraphInfo())
		if err != nil {
			return err
		}
		fmt.Fprintln(a.outW, string(data))
	}
	return nil
}
