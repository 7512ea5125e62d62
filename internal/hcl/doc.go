// Package hcl implements the config.Loader interface for HCL plan files.
// It discovers .hcl files, decodes them into the schema structures and
// translates them into the format-agnostic config model.
package hcl
