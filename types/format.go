package types

import (
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
)

// FormatCollected renders the filled fields of rec as a markdown table section.
func FormatCollected(s *Schema, rec Record) string {
	if s.Filled(rec) == 0 {
		return ""
	}
	var buf strings.Builder
	buf.WriteString("# Information collected so far:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Value")
	for _, f := range s.fields {
		if v, ok := rec.Get(f.Name); ok {
			_ = table.Append(f.Name, v)
		}
	}
	_ = table.Render()
	return strings.TrimRight(buf.String(), "\n")
}

// FormatMissing renders the unfilled fields of rec with their definitions.
func FormatMissing(s *Schema, rec Record) string {
	missing := s.Missing(rec)
	if len(missing) == 0 {
		return "# Missing fields:\n none"
	}
	var buf strings.Builder
	buf.WriteString("# Missing fields:\n")
	table := tablewriter.NewTable(&buf, tablewriter.WithRenderer(renderer.NewMarkdown()))
	table.Header("Field", "Definition")
	for _, name := range missing {
		f, _ := s.Lookup(name)
		_ = table.Append(f.Name, f.Definition)
	}
	_ = table.Render()
	return strings.TrimRight(buf.String(), "\n")
}
