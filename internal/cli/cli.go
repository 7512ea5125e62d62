package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/planforge/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("planforge", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
planforge - an incremental plan/target execution engine.

Usage:
  planforge [options] [PLAN_PATH]

Arguments:
  PLAN_PATH
    Path to a single .hcl plan file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	planFlag := flagSet.String("plan", "", "Path to the plan file or directory.")
	pFlag := flagSet.String("p", "", "Path to the plan file or directory (shorthand).")
	jobsFlag := flagSet.Int("jobs", 4, "Number of concurrent workers for the engine.")
	maxExpandFlag := flagSet.Int("max-expand", 0, "Cap on sub-targets materialized per dynamic target. 0 is unlimited.")
	cacheDirFlag := flagSet.String("cache-dir", ".planforge", "Directory for the durable cache and trace store.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	cleanFlag := flagSet.Bool("clean", false, "Purge cached values and traces, then exit.")
	destroyFlag := flagSet.Bool("destroy", false, "Remove the cache directory entirely, then exit.")
	readFlag := flagSet.String("read", "", "Print the named target's value after the run.")
	readModeFlag := flagSet.String("read-mode", "aggregate", "How to combine sub-target values. Options: 'aggregate' or 'list'.")
	traceFlag := flagSet.String("trace", "", "Print the named target's trace records after the run.")
	subtargetsFlag := flagSet.String("subtargets", "", "Print the materialized sub-target ids of the named target.")
	graphFlag := flagSet.Bool("graph", false, "Print the graph snapshot as JSON after the run.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *planFlag != "" {
		path = *planFlag
	} else if *pFlag != "" {
		path = *pFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}

	if path == "" && !*cleanFlag && !*destroyFlag {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	readMode := strings.ToLower(*readModeFlag)
	if readMode != "aggregate" && readMode != "list" {
		return nil, false, &ExitError{Code: 2, Message: "invalid read-mode: must be 'aggregate' or 'list'"}
	}

	config, err := app.NewConfig(app.Config{
		PlanPath:     path,
		CacheDir:     *cacheDirFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		Jobs:         *jobsFlag,
		MaxExpand:    *maxExpandFlag,
		Clean:        *cleanFlag,
		Destroy:      *destroyFlag,
		ReadTarget:   *readFlag,
		ReadMode:     readMode,
		TraceTarget:  *traceFlag,
		SubTargetsOf: *subtargetsFlag,
		GraphJSON:    *graphFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
