package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKnowledgeBase_Valid(t *testing.T) {
	data := []byte(`{
		"billing": ["Refunds take 5-7 business days."],
		"technical": ["Clear the cache and retry.", "Rate limit is 600 rpm."]
	}`)

	assert.NoError(t, ValidateKnowledgeBase(data))
}

func TestValidateKnowledgeBase_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty object", `{}`},
		{"non-array category", `{"billing": "not an array"}`},
		{"empty document", `{"billing": [""]}`},
		{"non-string document", `{"billing": [42]}`},
		{"top-level array", `["billing"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKnowledgeBase([]byte(tt.data))
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Errors)
			assert.Contains(t, err.Error(), "validation failed")
		})
	}
}

func TestValidateKnowledgeBase_MalformedJSON(t *testing.T) {
	err := ValidateKnowledgeBase([]byte(`{"billing": [`))
	require.Error(t, err)
}
