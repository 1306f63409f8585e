package extract

import (
	"github.com/tbxark/surveyagent/normalize"
	"github.com/tbxark/surveyagent/patch"
	"github.com/tbxark/surveyagent/types"
)

// Apply normalizes extracted values and fills the still-unfilled fields of a copy
// of rec. Unknown fields and values that normalize to "no value" are dropped.
func Apply(schema *types.Schema, n *normalize.Normalizer, rec types.Record, values map[string]any) (types.Record, []string, error) {
	cleaned := make(map[string]string, len(values))
	for field, raw := range values {
		if rec.IsFilled(field) {
			continue
		}
		if v, ok := n.Normalize(field, raw); ok {
			cleaned[field] = v
		}
	}
	return patch.Fill(schema, rec, cleaned)
}
