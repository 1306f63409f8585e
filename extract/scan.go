package extract

import (
	"errors"
	"strings"

	"github.com/bytedance/sonic"
)

// ScanObject returns the substring from the first "{" through the last "}".
func ScanObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// Decode parses the JSON object embedded in a free-text collaborator reply.
func Decode(text string) *Result {
	raw, ok := ScanObject(text)
	if !ok {
		return failed(NoJSONFound, nil)
	}
	var values map[string]any
	if err := sonic.UnmarshalString(raw, &values); err != nil {
		return failed(ParseError, err)
	}
	if values == nil {
		return failed(ParseError, errors.New("object decoded to null"))
	}
	return &Result{Values: values}
}
