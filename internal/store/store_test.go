package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/planforge/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCommitLookupRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	val := cty.ObjectVal(map[string]cty.Value{
		"name":  cty.StringVal("alpha"),
		"count": cty.NumberIntVal(3),
	})
	require.NoError(t, s.Commit(ctx, "target.alpha", "fp1", val))

	got, ok := s.Lookup(ctx, "target.alpha", "fp1")
	require.True(t, ok)
	assert.True(t, val.RawEquals(got))
}

func TestLookupMissOnUnknownTarget(t *testing.T) {
	s := openTestStore(t)
	_, ok := s.Lookup(context.Background(), "target.nothing", "fp")
	assert.False(t, ok)
}

func TestLookupMissOnFingerprintMismatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, "target.alpha", "fp1", cty.StringVal("v")))
	_, ok := s.Lookup(ctx, "target.alpha", "fp2")
	assert.False(t, ok)
}

func TestCommitOverwritesPreviousEntry(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, "target.alpha", "fp1", cty.StringVal("old")))
	require.NoError(t, s.Commit(ctx, "target.alpha", "fp2", cty.StringVal("new")))

	_, ok := s.Lookup(ctx, "target.alpha", "fp1")
	assert.False(t, ok)

	got, ok := s.Lookup(ctx, "target.alpha", "fp2")
	require.True(t, ok)
	assert.Equal(t, "new", got.AsString())
}

func TestCorruptEntryIsMissAndWarns(t *testing.T) {
	s := openTestStore(t)

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx := ctxlog.WithLogger(context.Background(), logger)

	require.NoError(t, s.Commit(ctx, "target.alpha", "fp1", cty.StringVal("v")))

	// Clobber the entry file on disk.
	sum := sha256.Sum256([]byte("target.alpha"))
	path := filepath.Join(s.Dir(), "entries", hex.EncodeToString(sum[:12])+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, ok := s.Lookup(ctx, "target.alpha", "fp1")
	assert.False(t, ok)
	assert.Contains(t, logBuf.String(), "Cache entry corrupt")

	// The next commit repairs the entry.
	require.NoError(t, s.Commit(ctx, "target.alpha", "fp1", cty.StringVal("v")))
	_, ok = s.Lookup(ctx, "target.alpha", "fp1")
	assert.True(t, ok)
}

func TestTraceRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	values := []TraceValue{
		{SubTargetID: "target.per[0]", Value: cty.StringVal("alpha.csv")},
		{SubTargetID: "target.per[1]", Value: cty.StringVal("beta.csv")},
	}
	require.NoError(t, s.CommitTrace(ctx, "target.per", values))

	got, err := s.ReadTrace(ctx, "target.per")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "target.per[0]", got[0].SubTargetID)
	assert.Equal(t, "alpha.csv", got[0].Value.AsString())
	assert.Equal(t, "target.per[1]", got[1].SubTargetID)
	assert.Equal(t, "beta.csv", got[1].Value.AsString())
}

func TestReadTraceMissingTarget(t *testing.T) {
	s := openTestStore(t)
	_, err := s.ReadTrace(context.Background(), "target.nothing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no trace recorded")
}

func TestCleanKeepsStoreUsable(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Commit(ctx, "target.alpha", "fp1", cty.StringVal("v")))
	require.NoError(t, s.CommitTrace(ctx, "target.alpha", []TraceValue{{SubTargetID: "target.alpha[0]", Value: cty.True}}))

	require.NoError(t, s.Clean(false))

	_, ok := s.Lookup(ctx, "target.alpha", "fp1")
	assert.False(t, ok)
	_, err := s.ReadTrace(ctx, "target.alpha")
	assert.Error(t, err)

	// Still writable after a clean.
	require.NoError(t, s.Commit(ctx, "target.alpha", "fp1", cty.StringVal("v")))
	_, ok = s.Lookup(ctx, "target.alpha", "fp1")
	assert.True(t, ok)
}

func TestCleanDestroyRemovesDirectory(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Clean(true))

	_, err := os.Stat(s.Dir())
	assert.True(t, os.IsNotExist(err))
}
