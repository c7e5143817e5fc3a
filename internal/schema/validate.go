// Package schema validates structured-output payloads against the
// caller-supplied contract before they are returned. Validation covers
// the top-level object shape: required properties must be present and
// declared property types must match.
package schema

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/brightpath/llmgate/internal/domain"
)

// Validate checks data against the schema contract. A failure is
// reported as *domain.SchemaValidationError regardless of whether the
// provider call itself succeeded.
func Validate(data []byte, s *domain.Schema) error {
	if s == nil {
		return nil
	}

	if !gjson.ValidBytes(data) {
		return &domain.SchemaValidationError{
			Schema: s.Name,
			Reason: "payload is not valid JSON",
		}
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return &domain.SchemaValidationError{
			Schema: s.Name,
			Reason: "payload is not a JSON object",
		}
	}

	for _, field := range requiredFields(s.SchemaDef) {
		if !root.Get(field).Exists() {
			return &domain.SchemaValidationError{
				Schema: s.Name,
				Reason: fmt.Sprintf("missing required property %q", field),
			}
		}
	}

	properties, _ := s.SchemaDef["properties"].(map[string]any)
	for name, raw := range properties {
		prop, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		declared, ok := prop["type"].(string)
		if !ok {
			continue
		}

		value := root.Get(name)
		if !value.Exists() {
			continue // absence of optional properties is fine
		}
		if !typeMatches(value, declared) {
			return &domain.SchemaValidationError{
				Schema: s.Name,
				Reason: fmt.Sprintf("property %q is not of type %s", name, declared),
			}
		}
	}

	return nil
}

func requiredFields(def map[string]any) []string {
	raw, ok := def["required"].([]any)
	if !ok {
		return nil
	}

	fields := make([]string, 0, len(raw))
	for _, item := range raw {
		if field, ok := item.(string); ok {
			fields = append(fields, field)
		}
	}
	return fields
}

func typeMatches(value gjson.Result, declared string) bool {
	switch declared {
	case "string":
		return value.Type == gjson.String
	case "number":
		return value.Type == gjson.Number
	case "integer":
		return value.Type == gjson.Number && value.Num == float64(int64(value.Num))
	case "boolean":
		return value.Type == gjson.True || value.Type == gjson.False
	case "array":
		return value.IsArray()
	case "object":
		return value.IsObject()
	case "null":
		return value.Type == gjson.Null
	default:
		// Unknown declared types are not enforced.
		return true
	}
}
