// Package testutil provides a standardized harness for engine-level tests:
// it writes plan sources to a temp dir, loads and compiles them, and runs
// the engine against a cache store that persists across runs within one
// test.
package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/planforge/internal/compile"
	"github.com/vk/planforge/internal/config"
	"github.com/vk/planforge/internal/ctxlog"
	"github.com/vk/planforge/internal/dag"
	"github.com/vk/planforge/internal/engine"
	"github.com/vk/planforge/internal/hcl"
	"github.com/vk/planforge/internal/store"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Harness holds the shared state of one engine test: a cache directory that
// persists across Run calls, and a debug logger captured in LogBuf.
type Harness struct {
	t        *testing.T
	Ctx      context.Context
	CacheDir string
	LogBuf   *SafeBuffer
}

// New creates a harness with a fresh temp cache directory.
func New(t *testing.T) *Harness {
	t.Helper()
	logBuf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &Harness{
		t:        t,
		Ctx:      ctxlog.WithLogger(context.Background(), logger),
		CacheDir: filepath.Join(t.TempDir(), "cache"),
		LogBuf:   logBuf,
	}
}

// LoadPlan writes the plan source to a file and loads it through the real
// HCL loader.
func (h *Harness) LoadPlan(src string) *config.Plan {
	h.t.Helper()
	dir := h.t.TempDir()
	path := filepath.Join(dir, "plan.hcl")
	require.NoError(h.t, os.WriteFile(path, []byte(src), 0o644))

	plan, err := hcl.NewLoader().Load(h.Ctx, path)
	require.NoError(h.t, err)
	return plan
}

// Compile loads and compiles a plan source.
func (h *Harness) Compile(src string) (*dag.Graph, error) {
	h.t.Helper()
	return compile.Compile(h.Ctx, h.LoadPlan(src))
}

// Run loads, compiles and executes a plan source against the harness's
// cache directory. Repeated calls share the cache, so incremental behavior
// is observable across runs.
func (h *Harness) Run(src string, opts engine.Options) (*engine.Engine, *engine.RunReport) {
	h.t.Helper()

	graph, err := compile.Compile(h.Ctx, h.LoadPlan(src))
	require.NoError(h.t, err)

	st, err := store.Open(h.CacheDir)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { st.Close() })

	if opts.Jobs == 0 {
		opts.Jobs = 4
	}
	eng := engine.New(graph, st, opts)
	report, err := eng.Run(h.Ctx)
	require.NoError(h.t, err)
	return eng, report
}
