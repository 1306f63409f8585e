package types

import (
	"fmt"
	"strings"
)

// Record maps every schema field to its value; nil means unfilled.
type Record map[string]*string

func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		if v == nil {
			out[k] = nil
			continue
		}
		val := *v
		out[k] = &val
	}
	return out
}

// Get returns the value of a filled field.
func (r Record) Get(name string) (string, bool) {
	v, ok := r[name]
	if !ok || v == nil || strings.TrimSpace(*v) == "" {
		return "", false
	}
	return *v, true
}

func (r Record) Set(name, value string) {
	r[name] = &value
}

func (r Record) IsFilled(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Plain converts the record to a JSON-friendly map with nulls for unfilled fields.
func (r Record) Plain() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		if v == nil {
			out[k] = nil
			continue
		}
		out[k] = *v
	}
	return out
}

// PreviousRecords holds historically stored records, most recent first.
type PreviousRecords []Record

// Examples returns up to n distinct values of field from the five most recent records.
func (p PreviousRecords) Examples(field string, n int) []string {
	seen := make(map[string]struct{})
	var out []string
	for i, rec := range p {
		if i >= 5 || len(out) >= n {
			break
		}
		v, ok := rec.Get(field)
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Summary describes up to n records as "name (type, stage)".
func (p PreviousRecords) Summary(keyField string, n int) string {
	if len(p) == 0 {
		return "None"
	}
	parts := make([]string, 0, n)
	for i, rec := range p {
		if i >= n {
			break
		}
		name, ok := rec.Get(keyField)
		if !ok {
			name = "Unknown"
		}
		var details []string
		if v, ok := rec.Get("Type of AI"); ok {
			details = append(details, v)
		}
		if v, ok := rec.Get("Current Stage"); ok {
			details = append(details, v)
		}
		if len(details) == 0 {
			parts = append(parts, name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, strings.Join(details, ", ")))
	}
	return strings.Join(parts, "; ")
}
