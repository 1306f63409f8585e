package patch

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	jsonpatch "github.com/evanphx/json-patch/v5"

	"github.com/tbxark/surveyagent/types"
)

// Apply runs ops against a copy of rec. A replace on a field the record does
// not carry is sent as an add.
func Apply(rec types.Record, ops []Operation) (types.Record, error) {
	if len(ops) == 0 {
		return rec.Clone(), nil
	}
	doc, err := sonic.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	raw, err := sonic.Marshal(addAbsent(rec, ops))
	if err != nil {
		return nil, fmt.Errorf("marshal operations: %w", err)
	}
	p, err := jsonpatch.DecodePatch(raw)
	if err != nil {
		return nil, fmt.Errorf("decode patch: %w", err)
	}
	out, err := p.Apply(doc)
	if err != nil {
		return nil, fmt.Errorf("apply patch: %w", err)
	}
	var next types.Record
	if err := sonic.Unmarshal(out, &next); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return next, nil
}

func addAbsent(rec types.Record, ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		if op.Op == OperationReplace {
			if _, ok := rec[fieldOf(op.Path)]; !ok {
				op.Op = OperationAdd
			}
		}
		out[i] = op
	}
	return out
}

// fieldOf returns the record field a top-level pointer addresses.
func fieldOf(path string) string {
	return unescapeJSONPointer(strings.TrimPrefix(path, "/"))
}
