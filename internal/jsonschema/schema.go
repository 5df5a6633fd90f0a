// Package jsonschema implements the constrained JSON Schema subset tool
// parameters are validated against before a tool's Execute function is
// invoked: object/properties/required/additionalProperties at the top
// level, per-property type/enum/minimum/maximum/minLength/maxLength/
// pattern, and recursive array items. It is deliberately not a general
// draft-07 engine — see DESIGN.md for why this is hand-rolled rather than
// an imported validator.
package jsonschema

import (
	"fmt"
	"regexp"
)

// ValidationError reports a single schema violation with enough context for
// callers to build a useful tool-message error.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("field %q: %s", e.Field, e.Message)
}

// Validate checks params against a minimal JSON Schema object (see package doc
// for the supported subset). schema is expected in the map[string]any shape
// produced by json.Unmarshal or hand-built Go literals.
func Validate(params map[string]any, schema map[string]any) error {
	if schema == nil {
		return nil
	}

	if req, ok := schema["required"]; ok {
		for _, name := range toStringSlice(req) {
			if _, present := params[name]; !present {
				return &ValidationError{Field: name, Message: "required field is missing"}
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)

	if additionalProperties, ok := schema["additionalProperties"].(bool); ok && !additionalProperties {
		for field := range params {
			if _, known := properties[field]; !known {
				return &ValidationError{Field: field, Message: "additional properties are not allowed"}
			}
		}
	}

	for field, value := range params {
		propSchema, ok := properties[field].(map[string]any)
		if !ok {
			continue
		}
		if err := validateValue(field, value, propSchema); err != nil {
			return err
		}
	}

	return nil
}

func validateValue(field string, value any, schema map[string]any) error {
	if value == nil {
		if t, _ := schema["type"].(string); t != "" && t != "null" {
			return &ValidationError{Field: field, Value: value, Message: "value must not be null"}
		}
		return nil
	}

	expectedType, _ := schema["type"].(string)
	if expectedType != "" && !matchesType(value, expectedType) {
		return &ValidationError{Field: field, Value: value, Message: fmt.Sprintf("expected type %s, got %T", expectedType, value)}
	}

	if enum, ok := schema["enum"].([]any); ok {
		matched := false
		for _, allowed := range enum {
			if allowed == value {
				matched = true
				break
			}
		}
		if !matched {
			return &ValidationError{Field: field, Value: value, Message: "value is not one of the allowed enum values"}
		}
	}

	switch v := value.(type) {
	case string:
		if minLen, ok := numberOf(schema["minLength"]); ok && float64(len(v)) < minLen {
			return &ValidationError{Field: field, Value: value, Message: "string shorter than minLength"}
		}
		if maxLen, ok := numberOf(schema["maxLength"]); ok && float64(len(v)) > maxLen {
			return &ValidationError{Field: field, Value: value, Message: "string longer than maxLength"}
		}
		if pattern, ok := schema["pattern"].(string); ok {
			re, err := regexp.Compile(pattern)
			if err != nil {
				return &ValidationError{Field: field, Message: fmt.Sprintf("invalid pattern in schema: %v", err)}
			}
			if !re.MatchString(v) {
				return &ValidationError{Field: field, Value: value, Message: "string does not match pattern"}
			}
		}
	case float64, int, int64:
		n, _ := numberOf(value)
		if minimum, ok := numberOf(schema["minimum"]); ok && n < minimum {
			return &ValidationError{Field: field, Value: value, Message: "value below minimum"}
		}
		if maximum, ok := numberOf(schema["maximum"]); ok && n > maximum {
			return &ValidationError{Field: field, Value: value, Message: "value above maximum"}
		}
	case []any:
		if items, ok := schema["items"].(map[string]any); ok {
			for i, el := range v {
				if err := validateValue(fmt.Sprintf("%s[%d]", field, i), el, items); err != nil {
					return err
				}
			}
		}
	case map[string]any:
		if nested, ok := schema["properties"].(map[string]any); ok {
			_ = nested
			if err := Validate(v, schema); err != nil {
				return err
			}
		}
	}

	return nil
}

func matchesType(value any, expected string) bool {
	switch expected {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}

func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}

func toStringSlice(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, e := range vals {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
