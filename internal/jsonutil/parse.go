// Package jsonutil decodes structured output from model responses that wrap
// the JSON in markdown fences or narrative text.
package jsonutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when a response contains no JSON object or array.
var ErrNoJSON = errors.New("no JSON content found")

// fenceMarker matches an opening or closing code fence, with an optional
// language tag (```json, ```JSON, ```).
var fenceMarker = regexp.MustCompile("```[A-Za-z0-9_-]*")

// StripFences removes every markdown code-fence marker from text and trims
// the result. Text without fences is returned trimmed.
func StripFences(text string) string {
	return strings.TrimSpace(fenceMarker.ReplaceAllString(text, ""))
}

// ExtractJSON returns the span from the first '{' or '[' to the last matching
// closing delimiter, dropping any prose around it.
func ExtractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)

	objIdx := strings.IndexByte(text, '{')
	arrIdx := strings.IndexByte(text, '[')
	if objIdx == -1 && arrIdx == -1 {
		return "", ErrNoJSON
	}

	start, closing := objIdx, byte('}')
	if objIdx == -1 || (arrIdx != -1 && arrIdx < objIdx) {
		start, closing = arrIdx, ']'
	}

	text = text[start:]
	end := strings.LastIndexByte(text, closing)
	if end == -1 {
		return "", fmt.Errorf("no closing %c found", closing)
	}
	return text[:end+1], nil
}

// ParseJSON strips fences from a raw model response, extracts the JSON span
// and unmarshals it into T.
func ParseJSON[T any](raw string) (T, error) {
	var zero T

	jsonStr, err := ExtractJSON(StripFences(raw))
	if err != nil {
		return zero, fmt.Errorf("%w (raw length: %d)", err, len(raw))
	}

	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return zero, fmt.Errorf("invalid JSON: %w (text: %s)", err, Preview(jsonStr, 200))
	}
	return result, nil
}

// Preview truncates s to maxLen bytes, appending "..." if truncated.
func Preview(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
