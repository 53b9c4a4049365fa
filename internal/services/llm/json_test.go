package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/profundo/internal/models"
)

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "bare json object",
			response: `{"queries": ["a", "b"]}`,
			want:     `{"queries": ["a", "b"]}`,
		},
		{
			name:     "bare json array",
			response: `["first query", "second query"]`,
			want:     `["first query", "second query"]`,
		},
		{
			name:     "fenced with language tag",
			response: "Here you go:\n```json\n[\"one\", \"two\"]\n```\nLet me know if you need more.",
			want:     `["one", "two"]`,
		},
		{
			name:     "fenced without language tag",
			response: "```\n{\"key\": 1}\n```",
			want:     `{"key": 1}`,
		},
		{
			name:     "prose around object",
			response: `Sure! The answer is {"a": [1, 2], "b": "x"} as requested.`,
			want:     `{"a": [1, 2], "b": "x"}`,
		},
		{
			name:     "braces inside strings",
			response: `Result: {"text": "uses { and } inside"} done`,
			want:     `{"text": "uses { and } inside"}`,
		},
		{
			name:     "no json at all",
			response: "I could not produce a plan for that topic.",
			wantErr:  true,
		},
		{
			name:     "empty response",
			response: "   ",
			wantErr:  true,
		},
		{
			name:     "unbalanced json",
			response: `{"a": [1, 2`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONBlock(tt.response)
			if tt.wantErr {
				require.Error(t, err)
				var parseErr *models.ParsingError
				assert.True(t, errors.As(err, &parseErr), "expected a parsing error, got %T", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertToGenaiSchema(t *testing.T) {
	schema, err := convertToGenaiSchema(map[string]interface{}{
		"type":        "array",
		"description": "search queries",
		"items": map[string]interface{}{
			"type": "string",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, schema)
	assert.Equal(t, "ARRAY", string(schema.Type))
	require.NotNil(t, schema.Items)
	assert.Equal(t, "STRING", string(schema.Items.Type))
	assert.Equal(t, "search queries", schema.Description)
}

func TestConvertToGenaiSchemaObject(t *testing.T) {
	schema, err := convertToGenaiSchema(map[string]interface{}{
		"type":     "object",
		"required": []interface{}{"answer", "citations"},
		"properties": map[string]interface{}{
			"answer":    map[string]interface{}{"type": "string"},
			"citations": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, schema)
	assert.Equal(t, "OBJECT", string(schema.Type))
	assert.ElementsMatch(t, []string{"answer", "citations"}, schema.Required)
	require.Contains(t, schema.Properties, "answer")
	require.Contains(t, schema.Properties, "citations")
}

func TestConvertToGenaiSchemaEmpty(t *testing.T) {
	schema, err := convertToGenaiSchema(nil)
	require.NoError(t, err)
	assert.Nil(t, schema)
}
