package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// TraceRecord is one persisted trace value, aligned to a sub-target.
type TraceRecord struct {
	SubTargetID string          `json:"sub_target_id"`
	Type        json.RawMessage `json:"type"`
	Value       json.RawMessage `json:"value"`
}

// traceFile is the persisted trace index for one dynamic target.
type traceFile struct {
	TargetID string        `json:"target_id"`
	Records  []TraceRecord `json:"records"`
}

func (s *Store) tracePath(id string) string {
	sum := sha256.Sum256([]byte(id))
	return filepath.Join(s.dir, tracesDir, hex.EncodeToString(sum[:12])+".json")
}

// TraceValue pairs a sub-target id with its recorded trace value.
type TraceValue struct {
	SubTargetID string
	Value       cty.Value
}

// CommitTrace atomically replaces the trace index for a dynamic target with
// the given records, in sub-target generation order.
func (s *Store) CommitTrace(ctx context.Context, id string, values []TraceValue) error {
	records := make([]TraceRecord, 0, len(values))
	for _, tv := range values {
		typeJSON, err := ctyjson.MarshalType(tv.Value.Type())
		if err != nil {
			return fmt.Errorf("serializing trace type for %s: %w", tv.SubTargetID, err)
		}
		valueJSON, err := ctyjson.Marshal(tv.Value, tv.Value.Type())
		if err != nil {
			return fmt.Errorf("serializing trace value for %s: %w", tv.SubTargetID, err)
		}
		records = append(records, TraceRecord{
			SubTargetID: tv.SubTargetID,
			Type:        typeJSON,
			Value:       valueJSON,
		})
	}

	data, err := json.Marshal(&traceFile{TargetID: id, Records: records})
	if err != nil {
		return fmt.Errorf("serializing trace index for %s: %w", id, err)
	}
	return s.commitFile(s.tracePath(id), data)
}

// ReadTrace returns the trace values recorded for a dynamic target, in
// sub-target generation order.
func (s *Store) ReadTrace(ctx context.Context, id string) ([]TraceValue, error) {
	data, err := os.ReadFile(s.tracePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no trace recorded for %s", id)
		}
		return nil, err
	}

	var tf traceFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("trace index for %s is corrupt: %w", id, err)
	}

	values := make([]TraceValue, 0, len(tf.Records))
	for _, rec := range tf.Records {
		ty, err := ctyjson.UnmarshalType(rec.Type)
		if err != nil {
			return nil, fmt.Errorf("trace record for %s is corrupt: %w", rec.SubTargetID, err)
		}
		val, err := ctyjson.Unmarshal(rec.Value, ty)
		if err != nil {
			return nil, fmt.Errorf("trace record for %s is corrupt: %w", rec.SubTargetID, err)
		}
		values = append(values, TraceValue{SubTargetID: rec.SubTargetID, Value: val})
	}
	return values, nil
}
