package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brightpath/llmgate/internal/domain"
	"github.com/brightpath/llmgate/internal/schema"
)

func answerSchema() *domain.Schema {
	return &domain.Schema{
		Name:        "answer",
		Description: "graded answer",
		SchemaDef: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"answer":     map[string]any{"type": "string"},
				"confidence": map[string]any{"type": "number"},
				"attempts":   map[string]any{"type": "integer"},
				"correct":    map[string]any{"type": "boolean"},
				"steps":      map[string]any{"type": "array"},
				"metadata":   map[string]any{"type": "object"},
			},
			"required": []any{"answer", "correct"},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("should accept a conforming payload", func(t *testing.T) {
		payload := []byte(`{
			"answer": "4",
			"confidence": 0.93,
			"attempts": 2,
			"correct": true,
			"steps": ["add"],
			"metadata": {"source": "arithmetic"}
		}`)

		require.NoError(t, schema.Validate(payload, answerSchema()))
	})

	t.Run("should accept payload with optional properties absent", func(t *testing.T) {
		payload := []byte(`{"answer": "4", "correct": false}`)

		require.NoError(t, schema.Validate(payload, answerSchema()))
	})

	t.Run("should reject invalid JSON", func(t *testing.T) {
		err := schema.Validate([]byte(`{"answer": `), answerSchema())

		var schemaErr *domain.SchemaValidationError
		require.ErrorAs(t, err, &schemaErr)
		require.Equal(t, "answer", schemaErr.Schema)
		require.Contains(t, schemaErr.Reason, "not valid JSON")
	})

	t.Run("should reject non-object payload", func(t *testing.T) {
		err := schema.Validate([]byte(`["answer"]`), answerSchema())

		var schemaErr *domain.SchemaValidationError
		require.ErrorAs(t, err, &schemaErr)
		require.Contains(t, schemaErr.Reason, "not a JSON object")
	})

	t.Run("should reject missing required property", func(t *testing.T) {
		err := schema.Validate([]byte(`{"answer": "4"}`), answerSchema())

		var schemaErr *domain.SchemaValidationError
		require.ErrorAs(t, err, &schemaErr)
		require.Contains(t, schemaErr.Reason, `"correct"`)
	})

	t.Run("should reject mistyped properties", func(t *testing.T) {
		tests := []struct {
			name    string
			payload string
		}{
			{name: "string as number", payload: `{"answer": 4, "correct": true}`},
			{name: "number as string", payload: `{"answer": "4", "correct": true, "confidence": "high"}`},
			{name: "fractional integer", payload: `{"answer": "4", "correct": true, "attempts": 1.5}`},
			{name: "boolean as string", payload: `{"answer": "4", "correct": "yes"}`},
			{name: "array as object", payload: `{"answer": "4", "correct": true, "steps": {"first": "add"}}`},
			{name: "object as array", payload: `{"answer": "4", "correct": true, "metadata": []}`},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := schema.Validate([]byte(tt.payload), answerSchema())

				var schemaErr *domain.SchemaValidationError
				require.ErrorAs(t, err, &schemaErr)
			})
		}
	})

	t.Run("should skip enforcement for unknown declared types", func(t *testing.T) {
		s := &domain.Schema{
			Name: "loose",
			SchemaDef: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"value": map[string]any{"type": "anyOf"},
				},
			},
		}

		require.NoError(t, schema.Validate([]byte(`{"value": 42}`), s))
	})

	t.Run("should accept nil schema", func(t *testing.T) {
		require.NoError(t, schema.Validate([]byte(`not even json`), nil))
	})
}
