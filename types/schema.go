package types

import (
	"errors"
	"fmt"
	"strings"
)

type FieldKind string

const (
	KindText   FieldKind = "text"
	KindBudget FieldKind = "budget"
	KindList   FieldKind = "list"
)

type Field struct {
	Name       string    `json:"name"`
	Definition string    `json:"definition"`
	Kind       FieldKind `json:"kind,omitempty"`
	Default    string    `json:"default,omitempty"`
}

// InferKind returns the normalization kind conventionally used for a field name.
func InferKind(name string) FieldKind {
	switch name {
	case "Budget":
		return KindBudget
	case "Tech Stack", "Success Metrics":
		return KindList
	default:
		return KindText
	}
}

// DefaultFor returns the fallback value conventionally used for a field name.
func DefaultFor(name string) string {
	if name == "Department" {
		return "Information Technology"
	}
	return ""
}

// Schema is the ordered, immutable set of fields a record must fill.
type Schema struct {
	fields   []Field
	index    map[string]int
	keyField string
}

// NewSchema builds a schema. keyField names the field used to match stored
// records; when empty the first field is used.
func NewSchema(keyField string, fields ...Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errors.New("schema: at least one field is required")
	}
	s := &Schema{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		f.Name = strings.TrimSpace(f.Name)
		f.Definition = strings.TrimSpace(f.Definition)
		if f.Name == "" {
			return nil, errors.New("schema: field name must not be empty")
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		if f.Kind == "" {
			f.Kind = InferKind(f.Name)
		}
		if f.Default == "" {
			f.Default = DefaultFor(f.Name)
		}
		s.index[f.Name] = len(s.fields)
		s.fields = append(s.fields, f)
	}
	if keyField == "" {
		keyField = s.fields[0].Name
	}
	if _, ok := s.index[keyField]; !ok {
		return nil, fmt.Errorf("schema: key field %q is not a schema field", keyField)
	}
	s.keyField = keyField
	return s, nil
}

// MustSchema is like NewSchema but panics on error.
func MustSchema(keyField string, fields ...Field) *Schema {
	s, err := NewSchema(keyField, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

func (s *Schema) Names() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

func (s *Schema) Len() int {
	return len(s.fields)
}

func (s *Schema) KeyField() string {
	return s.keyField
}

func (s *Schema) Lookup(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// NewRecord returns a record with every field present and unfilled.
func (s *Schema) NewRecord() Record {
	rec := make(Record, len(s.fields))
	for _, f := range s.fields {
		rec[f.Name] = nil
	}
	return rec
}

// Missing lists the unfilled fields of rec in schema order.
func (s *Schema) Missing(rec Record) []string {
	missing := make([]string, 0, len(s.fields))
	for _, f := range s.fields {
		if !rec.IsFilled(f.Name) {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Filled counts the filled fields of rec.
func (s *Schema) Filled(rec Record) int {
	n := 0
	for _, f := range s.fields {
		if rec.IsFilled(f.Name) {
			n++
		}
	}
	return n
}

// Conform returns a copy of rec restricted to, and completed with, the schema fields.
func (s *Schema) Conform(rec Record) Record {
	out := s.NewRecord()
	for _, f := range s.fields {
		if v, ok := rec.Get(f.Name); ok {
			out.Set(f.Name, v)
		}
	}
	return out
}

// Definitions renders "name: definition" lines in schema order.
func (s *Schema) Definitions() string {
	var sb strings.Builder
	for i, f := range s.fields {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Definition)
	}
	return sb.String()
}
