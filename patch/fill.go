package patch

import (
	"fmt"

	"github.com/tbxark/surveyagent/types"
)

// FillOps builds replace operations for values whose fields are still unfilled
// in rec, in schema order. Values for filled or unknown fields are dropped.
func FillOps(schema *types.Schema, rec types.Record, values map[string]string) []Operation {
	var ops []Operation
	for _, name := range schema.Missing(rec) {
		v, ok := values[name]
		if !ok || v == "" {
			continue
		}
		ops = append(ops, Operation{Op: OperationReplace, Path: Pointer(name), Value: v})
	}
	return ops
}

// AllowedFillPaths returns the pointers of the fields that may still be filled.
func AllowedFillPaths(schema *types.Schema, rec types.Record) map[string]bool {
	allowed := make(map[string]bool)
	for _, name := range schema.Missing(rec) {
		allowed[Pointer(name)] = true
	}
	return allowed
}

// Fill applies values to a copy of rec. Fields that already hold a value are never
// overwritten. It returns the new record and the names of the fields it filled.
func Fill(schema *types.Schema, rec types.Record, values map[string]string) (types.Record, []string, error) {
	rec = schema.Conform(rec)
	ops := FillOps(schema, rec, values)
	if len(ops) == 0 {
		return rec, nil, nil
	}
	if err := ValidatePatchOperations(ops, AllowedFillPaths(schema, rec)); err != nil {
		return nil, nil, fmt.Errorf("validate fill operations: %w", err)
	}
	next, err := Apply(rec, ops)
	if err != nil {
		return nil, nil, err
	}
	filled := make([]string, 0, len(ops))
	for _, op := range ops {
		filled = append(filled, fieldOf(op.Path))
	}
	return schema.Conform(next), filled, nil
}
