package hcl

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/planforge/internal/config"
	"github.com/vk/planforge/internal/ctxlog"
	"github.com/vk/planforge/internal/schema"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL plan loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load orchestrates the entire HCL plan loading process. Targets are
// appended in file order so that a plan's declaration order is stable
// across loads.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Plan, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	planFiles, err := findPlanFiles(paths)
	if err != nil {
		return nil, err
	}
	if len(planFiles) == 0 {
		return nil, fmt.Errorf("no .hcl plan files found in %v", paths)
	}
	logger.Debug("Discovered plan files.", "count", len(planFiles))

	plan := &config.Plan{}
	parser := hclparse.NewParser()

	for _, file := range planFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse plan file %s: %w", file, diags)
		}

		var root schema.PlanFile
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode plan file %s: %w", file, diags)
		}

		for _, target := range root.Targets {
			translated, err := translateTarget(target, hclFile.Bytes)
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			plan.Targets = append(plan.Targets, translated)
		}
	}

	logger.Debug("HCL loader finished.", "target_count", len(plan.Targets))
	return plan, nil
}

// findPlanFiles resolves each path to the list of .hcl files it names: a
// file path is taken as-is, a directory is searched recursively. The result
// is sorted for deterministic load order.
func findPlanFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("plan path %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".hcl") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}
