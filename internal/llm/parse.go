package llm

import (
	"encoding/json"
	"strings"
)

// Result is the tagged outcome of parsing a model completion. Callers branch
// on OK instead of interpreting a successful json.Unmarshal as correctness.
type Result struct {
	OK    bool
	Value json.RawMessage
	Raw   string
}

// StripFences removes an optional ```json ... ``` wrapper around a completion.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Parse strips fence markers and validates that the remainder is JSON. A
// malformed completion comes back with OK=false and the raw text preserved
// for logging.
func Parse(raw string) Result {
	cleaned := StripFences(raw)
	if !json.Valid([]byte(cleaned)) {
		return Result{OK: false, Raw: raw}
	}
	return Result{OK: true, Value: json.RawMessage(cleaned), Raw: raw}
}

// Decode unmarshals a parsed value into v. Calling Decode on a malformed
// result is a programming error and returns the underlying unmarshal error.
func (r Result) Decode(v any) error {
	return json.Unmarshal(r.Value, v)
}
