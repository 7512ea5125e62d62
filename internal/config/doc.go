// Package config defines the format-agnostic plan model for the engine,
// along with the Loader interface for reading plans from various sources.
//
// The `config.Plan` is the single source of truth for the `compile` and
// `engine` packages. Concrete implementations of the Loader interface, such
// as for HCL, are provided in separate packages.
package config
