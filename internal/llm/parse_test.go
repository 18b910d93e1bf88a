package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"bare fence", "```\n[1, 2]\n```", `[1, 2]`},
		{"surrounding whitespace", "  \n{\"a\": 1}\n  ", `{"a": 1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestParseValid(t *testing.T) {
	r := Parse("```json\n{\"selector\": \"#x\"}\n```")
	require.True(t, r.OK)

	var obj map[string]string
	require.NoError(t, r.Decode(&obj))
	assert.Equal(t, "#x", obj["selector"])
}

func TestParseMalformed(t *testing.T) {
	raw := "I could not find a selector, sorry."
	r := Parse(raw)
	assert.False(t, r.OK)
	assert.Equal(t, raw, r.Raw)
}

func TestParsePreservesRawOnSuccess(t *testing.T) {
	raw := "```json\n[]\n```"
	r := Parse(raw)
	require.True(t, r.OK)
	assert.Equal(t, raw, r.Raw)
}
