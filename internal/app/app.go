package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/vk/planforge/internal/config"
	"github.com/vk/planforge/internal/ctxlog"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// PlanPath is a single .hcl file or a directory of .hcl files.
	PlanPath string
	// CacheDir is where the durable store lives.
	CacheDir string

	LogFormat string
	LogLevel  string

	// Jobs is the worker pool size.
	Jobs int
	// MaxExpand is the run-level cap on sub-targets per dynamic target.
	MaxExpand int

	// Clean purges the cache before exiting instead of running the plan;
	// Destroy additionally removes the store directory.
	Clean   bool
	Destroy bool

	// ReadTarget, when set, prints the named target's value after the run.
	ReadTarget string
	// ReadMode selects aggregate or list output for ReadTarget.
	ReadMode string
	// TraceTarget, when set, prints the named target's trace records.
	TraceTarget string
	// SubTargetsOf, when set, prints the materialized sub-target ids of the
	// named target.
	SubTargetsOf string
	// GraphJSON prints the graph snapshot for external renderers.
	GraphJSON bool
}

// NewConfig validates a Config.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PlanPath == "" && !cfg.Clean && !cfg.Destroy {
		return nil, errors.New("PlanPath is a required configuration field and cannot be empty")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = ".planforge"
	}
	if cfg.Jobs < 1 {
		cfg.Jobs = 1
	}
	if cfg.MaxExpand < 0 {
		return nil, errors.New("MaxExpand must not be negative")
	}
	if cfg.ReadMode == "" {
		cfg.ReadMode = "aggregate"
	}
	return &cfg, nil
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	plan   *config.Plan
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and a loaded plan.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader) *App {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	var plan *config.Plan
	if appConfig.PlanPath != "" {
		loaded, err := loader.Load(ctx, appConfig.PlanPath)
		if err != nil {
			// A failure to load the plan is a fatal startup error.
			panic(fmt.Errorf("failed to load plan: %w", err))
		}
		plan = loaded
		logger.Debug("Plan loaded and translated into unified model.",
			"target_count", len(plan.Targets))
	}

	return &App{
		outW:   outW,
		logger: logger,
		config: appConfig,
		plan:   plan,
	}
}

// Plan returns the loaded plan model. This is primarily for testing.
func (a *App) Plan() *config.Plan {
	return a.plan
}

// newLogger builds the app's isolated logger. Log records and inspection
// output share the same writer, so the level controls how much run
// narrative surrounds any printed values; nothing here touches the global
// default logger.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if formatStr == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
