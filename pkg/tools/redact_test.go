package tools_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/caster-hub/caster/pkg/tools"
)

func TestRedactArgs(t *testing.T) {
	in := map[string]any{
		"query":   "public",
		"api_key": "sk-live-123",
		"nested": map[string]any{
			"Authorization": "Bearer abc",
			"depth":         2,
		},
	}
	out := tools.RedactArgs(in)

	assert.Equal(t, "public", out["query"])
	assert.Equal(t, "[redacted]", out["api_key"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "[redacted]", nested["Authorization"])
	assert.Equal(t, 2, nested["depth"])
	// Original is untouched.
	assert.Equal(t, "sk-live-123", in["api_key"])
}
