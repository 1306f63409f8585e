package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/tbxark/surveyagent/types"
)

// RecordStore is where the survey schema, customer context and collected
// records live.
type RecordStore interface {
	LoadInitialContext(ctx context.Context) (string, error)
	LoadSchema(ctx context.Context) (*types.Schema, error)
	// LoadPreviousRecords returns stored records, most recent first.
	LoadPreviousRecords(ctx context.Context) (types.PreviousRecords, error)
	// UpsertRecord merges rec into the stored record with the same key field
	// value, or appends it when there is none.
	UpsertRecord(ctx context.Context, rec types.Record) error
}

// FormatContext renders one context row as "column: value" lines.
func FormatContext(columns, values []string) string {
	lines := make([]string, 0, len(columns))
	for i, col := range columns {
		if i >= len(values) {
			break
		}
		v := strings.TrimSpace(values[i])
		if v == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", strings.TrimSpace(col), v))
	}
	return "Customer context:\n" + strings.Join(lines, "\n")
}

// Merge overlays the filled values of incoming onto existing. Unfilled
// incoming fields never clear stored values.
func Merge(schema *types.Schema, existing, incoming types.Record) (types.Record, error) {
	base, err := sonic.Marshal(schema.Conform(existing).Plain())
	if err != nil {
		return nil, fmt.Errorf("marshal stored record: %w", err)
	}
	overlay := make(map[string]string)
	for _, name := range schema.Names() {
		if v, ok := incoming.Get(name); ok {
			overlay[name] = v
		}
	}
	patch, err := sonic.Marshal(overlay)
	if err != nil {
		return nil, fmt.Errorf("marshal merge patch: %w", err)
	}
	merged, err := jsonpatch.MergePatch(base, patch)
	if err != nil {
		return nil, fmt.Errorf("apply merge patch: %w", err)
	}
	var out types.Record
	if err := sonic.Unmarshal(merged, &out); err != nil {
		return nil, fmt.Errorf("unmarshal merged record: %w", err)
	}
	return schema.Conform(out), nil
}

func sameKey(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// upsert returns records with rec merged in, in stored order.
func upsert(schema *types.Schema, records []types.Record, rec types.Record) ([]types.Record, error) {
	key, hasKey := rec.Get(schema.KeyField())
	if hasKey {
		for i, existing := range records {
			stored, ok := existing.Get(schema.KeyField())
			if !ok || !sameKey(stored, key) {
				continue
			}
			merged, err := Merge(schema, existing, withoutKey(schema, rec))
			if err != nil {
				return nil, err
			}
			records[i] = merged
			return records, nil
		}
	}
	return append(records, schema.Conform(rec)), nil
}

// withoutKey drops the key field so a matched record keeps its stored spelling.
func withoutKey(schema *types.Schema, rec types.Record) types.Record {
	out := rec.Clone()
	out[schema.KeyField()] = nil
	return out
}

func newestFirst(records []types.Record) types.PreviousRecords {
	out := make(types.PreviousRecords, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		out = append(out, records[i].Clone())
	}
	return out
}
