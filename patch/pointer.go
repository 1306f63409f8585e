package patch

import "strings"

// Pointer returns the RFC6901 JSON pointer addressing a top-level record field.
func Pointer(field string) string {
	return "/" + escapeJSONPointer(field)
}

func escapeJSONPointer(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

func unescapeJSONPointer(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}
