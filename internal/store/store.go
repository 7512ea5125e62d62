package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vk/planforge/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Entry is the persisted record for one target.
type Entry struct {
	TargetID    string          `json:"target_id"`
	Fingerprint string          `json:"fingerprint"`
	Type        json.RawMessage `json:"type"`
	Value       json.RawMessage `json:"value"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Store is a durable, content-addressed cache keyed by target id.
type Store struct {
	dir string
}

// Open creates (if necessary) and opens a store rooted at dir.
func Open(dir string) (*Store, error) {
	for _, sub := range []string{entriesDir, tracesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("opening store at %s: %w", dir, err)
		}
	}
	return &Store{dir: dir}, nil
}

// Close releases the store handle. Writes are committed eagerly, so there
// is nothing to flush.
func (s *Store) Close() error {
	return nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

const (
	entriesDir = "entries"
	tracesDir  = "traces"
)

// entryPath maps a target id to its entry file. Ids contain characters that
// are not filename-safe (brackets, quotes), so the filename is a digest.
func (s *Store) entryPath(id string) string {
	sum := sha256.Sum256([]byte(id))
	return filepath.Join(s.dir, entriesDir, hex.EncodeToString(sum[:12])+".json")
}

// Lookup returns the cached value for (id, fingerprint). A missing entry, a
// fingerprint mismatch, or a corrupt entry are all misses; corruption is
// logged as a warning and the entry is left to be overwritten by the next
// commit.
func (s *Store) Lookup(ctx context.Context, id, fp string) (cty.Value, bool) {
	logger := ctxlog.FromContext(ctx)

	data, err := os.ReadFile(s.entryPath(id))
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Cache entry unreadable, treating as miss.", "target", id, "error", err)
		}
		return cty.NilVal, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		logger.Warn("Cache entry corrupt, treating as miss.", "target", id, "error", err)
		return cty.NilVal, false
	}
	if entry.Fingerprint != fp {
		return cty.NilVal, false
	}

	ty, err := ctyjson.UnmarshalType(entry.Type)
	if err != nil {
		logger.Warn("Cache entry has corrupt type, treating as miss.", "target", id, "error", err)
		return cty.NilVal, false
	}
	val, err := ctyjson.Unmarshal(entry.Value, ty)
	if err != nil {
		logger.Warn("Cache entry has corrupt value, treating as miss.", "target", id, "error", err)
		return cty.NilVal, false
	}
	return val, true
}

// Commit atomically replaces the entry for id with the given value and
// fingerprint. The entry is staged to a temp file in the same directory and
// renamed into place, so readers never observe a partial entry.
func (s *Store) Commit(ctx context.Context, id, fp string, val cty.Value) error {
	typeJSON, err := ctyjson.MarshalType(val.Type())
	if err != nil {
		return fmt.Errorf("serializing type for %s: %w", id, err)
	}
	valueJSON, err := ctyjson.Marshal(val, val.Type())
	if err != nil {
		return fmt.Errorf("serializing value for %s: %w", id, err)
	}

	entry := Entry{
		TargetID:    id,
		Fingerprint: fp,
		Type:        typeJSON,
		Value:       valueJSON,
		UpdatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("serializing entry for %s: %w", id, err)
	}

	return s.commitFile(s.entryPath(id), data)
}

// commitFile writes data to a staging file next to path and renames it into
// place. Rename within one directory is atomic on POSIX filesystems.
func (s *Store) commitFile(path string, data []byte) error {
	staging := path + ".stage-" + uuid.NewString()
	if err := os.WriteFile(staging, data, 0o644); err != nil {
		return fmt.Errorf("staging cache write: %w", err)
	}
	if err := os.Rename(staging, path); err != nil {
		os.Remove(staging)
		return fmt.Errorf("committing cache write: %w", err)
	}
	return nil
}

// Clean purges all cache and trace state. With destroy set, the store
// directory itself is removed; otherwise empty subdirectories remain and
// the handle stays usable.
func (s *Store) Clean(destroy bool) error {
	if destroy {
		return os.RemoveAll(s.dir)
	}
	for _, sub := range []string{entriesDir, tracesDir} {
		dir := filepath.Join(s.dir, sub)
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
