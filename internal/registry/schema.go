package registry

import (
	"encoding/json"
	"fmt"
)

// validateAgainstSchema is a small JSON-Schema subset walker: object/
// array/string/number/integer/boolean types, required, properties,
// items, enum, minLength/maxLength, and minimum/maximum. It covers exactly what the four tool input
// schemas in schemas/ need; it is not a general-purpose validator.
func validateAgainstSchema(schema json.RawMessage, value json.RawMessage) error {
	var schemaObj map[string]any
	if err := json.Unmarshal(schema, &schemaObj); err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	var v any
	if len(value) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(value, &v); err != nil {
		return fmt.Errorf("arguments must be valid JSON: %w", err)
	}
	return validateNode(schemaObj, v, "$")
}

func validateNode(schema map[string]any, value any, path string) error {
	if enumVals, ok := schema["enum"].([]any); ok {
		if !containsValue(enumVals, value) {
			return fmt.Errorf("%s: value not in enum %v", path, enumVals)
		}
	}

	typeName, _ := schema["type"].(string)
	switch typeName {
	case "object":
		return validateObject(schema, value, path)
	case "array":
		return validateArray(schema, value, path)
	case "string":
		return validateString(schema, value, path)
	case "number", "integer":
		return validateNumber(schema, value, typeName, path)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%s: expected boolean, got %s", path, jsonTypeOf(value))
		}
	}
	return nil
}

func validateObject(schema map[string]any, value any, path string) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%s: expected object, got %s", path, jsonTypeOf(value))
	}

	for _, req := range requiredFields(schema) {
		if _, present := obj[req]; !present {
			return fmt.Errorf("%s: missing required field %q", path, req)
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for key, propSchemaRaw := range props {
		propSchema, ok := propSchemaRaw.(map[string]any)
		if !ok {
			continue
		}
		fieldValue, present := obj[key]
		if !present {
			continue
		}
		if err := validateNode(propSchema, fieldValue, fmt.Sprintf("%s.%s", path, key)); err != nil {
			return err
		}
	}
	return nil
}

func validateArray(schema map[string]any, value any, path string) error {
	arr, ok := value.([]any)
	if !ok {
		return fmt.Errorf("%s: expected array, got %s", path, jsonTypeOf(value))
	}
	itemSchema, _ := schema["items"].(map[string]any)
	if itemSchema == nil {
		return nil
	}
	for i, item := range arr {
		if err := validateNode(itemSchema, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
	}
	return nil
}

func validateString(schema map[string]any, value any, path string) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("%s: expected string, got %s", path, jsonTypeOf(value))
	}
	if minLen, ok := schema["minLength"].(float64); ok && len(s) < int(minLen) {
		return fmt.Errorf("%s: string shorter than minLength %d", path, int(minLen))
	}
	if maxLen, ok := schema["maxLength"].(float64); ok && len(s) > int(maxLen) {
		return fmt.Errorf("%s: string longer than maxLength %d", path, int(maxLen))
	}
	return nil
}

func validateNumber(schema map[string]any, value any, typeName, path string) error {
	n, ok := value.(float64)
	if !ok {
		return fmt.Errorf("%s: expected %s, got %s", path, typeName, jsonTypeOf(value))
	}
	if typeName == "integer" && n != float64(int64(n)) {
		return fmt.Errorf("%s: expected integer, got fractional number", path)
	}
	if min, ok := schema["minimum"].(float64); ok && n < min {
		return fmt.Errorf("%s: %v below minimum %v", path, n, min)
	}
	if max, ok := schema["maximum"].(float64); ok && n > max {
		return fmt.Errorf("%s: %v above maximum %v", path, n, max)
	}
	return nil
}

func requiredFields(schema map[string]any) []string {
	raw, ok := schema["required"].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func containsValue(haystack []any, needle any) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}

func jsonTypeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
