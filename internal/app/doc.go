// Package app wires the loader, compiler, cache store and engine into one
// runnable application with an isolated logger. It owns the lifecycle: load
// plan, compile, open store, run, report, close.
package app
