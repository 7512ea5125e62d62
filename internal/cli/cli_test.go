package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/planforge/internal/testutil"
)

func TestParseDefaults(t *testing.T) {
	out := &testutil.SafeBuffer{}
	cfg, exit, err := Parse([]string{"plan.hcl"}, out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, "plan.hcl", cfg.PlanPath)
	assert.Equal(t, ".planforge", cfg.CacheDir)
	assert.Equal(t, 4, cfg.Jobs)
	assert.Equal(t, 0, cfg.MaxExpand)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "aggregate", cfg.ReadMode)
}

func TestParsePlanFlagVariants(t *testing.T) {
	out := &testutil.SafeBuffer{}

	cfg, _, err := Parse([]string{"-plan", "a.hcl"}, out)
	require.NoError(t, err)
	assert.Equal(t, "a.hcl", cfg.PlanPath)

	cfg, _, err = Parse([]string{"-p", "b.hcl"}, out)
	require.NoError(t, err)
	assert.Equal(t, "b.hcl", cfg.PlanPath)
}

func TestParseAllOptions(t *testing.T) {
	out := &testutil.SafeBuffer{}
	cfg, exit, err := Parse([]string{
		"-jobs", "8",
		"-max-expand", "16",
		"-cache-dir", "/tmp/cache",
		"-log-format", "json",
		"-log-level", "debug",
		"-read", "shout",
		"-read-mode", "list",
		"-trace", "parsed",
		"-subtargets", "parsed",
		"-graph",
		"plan.hcl",
	}, out)
	require.NoError(t, err)
	require.False(t, exit)

	assert.Equal(t, 8, cfg.Jobs)
	assert.Equal(t, 16, cfg.MaxExpand)
	assert.Equal(t, "/tmp/cache", cfg.CacheDir)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "shout", cfg.ReadTarget)
	assert.Equal(t, "list", cfg.ReadMode)
	assert.Equal(t, "parsed", cfg.TraceTarget)
	assert.Equal(t, "parsed", cfg.SubTargetsOf)
	assert.True(t, cfg.GraphJSON)
}

func TestParseNoArgsShowsUsage(t *testing.T) {
	out := &testutil.SafeBuffer{}
	cfg, exit, err := Parse(nil, out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseCleanNeedsNoPlan(t *testing.T) {
	out := &testutil.SafeBuffer{}
	cfg, exit, err := Parse([]string{"-clean"}, out)
	require.NoError(t, err)
	require.False(t, exit)
	assert.True(t, cfg.Clean)
	assert.Empty(t, cfg.PlanPath)
}

func TestParseInvalidValues(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"log_format", []string{"-log-format", "yaml", "plan.hcl"}},
		{"log_level", []string{"-log-level", "loud", "plan.hcl"}},
		{"read_mode", []string{"-read-mode", "table", "plan.hcl"}},
		{"max_expand", []string{"-max-expand", "-2", "plan.hcl"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := &testutil.SafeBuffer{}
			_, _, err := Parse(tc.args, out)
			require.Error(t, err)
			exitErr, ok := err.(*ExitError)
			require.True(t, ok)
			assert.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestParseUnknownFlag(t *testing.T) {
	out := &testutil.SafeBuffer{}
	_, _, err := Parse([]string{"-bogus"}, out)
	require.Error(t, err)
	exitErr, ok := err.(*ExitError)
	require.True(t, ok)
	assert.Equal(t, 2, exitErr.Code)
}
