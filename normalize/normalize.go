// Package normalize cleans raw extracted values before they are stored in a record.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tbxark/surveyagent/types"
)

var budgetPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(k|m|b|thousand|million|billion)?`)

type Normalizer struct {
	schema *types.Schema
}

func New(schema *types.Schema) *Normalizer {
	return &Normalizer{schema: schema}
}

// Normalize converts a raw value for field into its stored form. The boolean is
// false when the value means "no value" and the field must stay unfilled.
func (n *Normalizer) Normalize(field string, raw any) (string, bool) {
	f, ok := n.schema.Lookup(field)
	if !ok {
		return "", false
	}
	var value string
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		if isEmptyMarker(v) {
			return "", false
		}
		value = strings.TrimSpace(v)
	case []any:
		value = joinList(f.Kind, stringify(v))
	case []string:
		value = joinList(f.Kind, v)
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	default:
		value = strings.TrimSpace(fmt.Sprint(v))
	}
	if isEmptyMarker(value) {
		if f.Default != "" {
			return f.Default, true
		}
		return "", false
	}
	if f.Kind == types.KindBudget {
		return Budget(value), true
	}
	return value, true
}

// Budget standardizes an amount to millions of dollars. A bare number is read
// as thousands. Values without a number are returned unchanged.
func Budget(value string) string {
	m := budgetPattern.FindStringSubmatch(strings.ToLower(value))
	if m == nil {
		return value
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return value
	}
	unit := m[2]
	switch {
	case strings.HasPrefix(unit, "k"):
		return fmt.Sprintf("$%.1fM", amount/1000)
	case strings.HasPrefix(unit, "b"):
		return fmt.Sprintf("$%.0fM", amount*1000)
	case strings.HasPrefix(unit, "m"):
		return fmt.Sprintf("$%.1fM", amount)
	default:
		return fmt.Sprintf("$%.1fM", amount/1000)
	}
}

func isEmptyMarker(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none":
		return true
	}
	return false
}

func stringify(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, fmt.Sprint(item))
	}
	return out
}

func joinList(kind types.FieldKind, items []string) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			parts = append(parts, s)
		}
	}
	if kind == types.KindList {
		return strings.Join(parts, "; ")
	}
	return strings.Join(parts, ", ")
}
