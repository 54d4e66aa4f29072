// Package jsonutil provides small helpers for the loose, line-delimited JSON
// emitted by agent CLIs: tolerant line parsing and safe field extraction.
package jsonutil

import (
	"encoding/json"
	"fmt"
)

// UnmarshalWithContext unmarshals JSON data into v and wraps any error
// with the provided context message.
func UnmarshalWithContext(data []byte, v interface{}, context string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", context, err)
	}
	return nil
}

// GetString safely extracts a string value from a map[string]interface{}.
// Returns empty string if the key is absent or not a string.
func GetString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}

// UnmarshalLine unmarshals a single JSON line into v.
// Returns an error if the line is empty or cannot be parsed.
func UnmarshalLine(line string, v interface{}) error {
	if line == "" {
		return fmt.Errorf("empty JSON line")
	}
	return json.Unmarshal([]byte(line), v)
}

// UnmarshalLineSafe unmarshals a single JSON line into v.
// Returns false if the line is empty or cannot be parsed, true on success.
// Useful when scanning mixed output where some lines are not JSON.
func UnmarshalLineSafe(line string, v interface{}) bool {
	return UnmarshalLine(line, v) == nil
}

// StringEnum is a constraint for enum types that have a String() method.
type StringEnum interface {
	String() string
}

// MarshalEnumJSON marshals an enum value to JSON by converting it to its
// string representation. Generic helper for implementing json.Marshaler on
// enum types.
func MarshalEnumJSON[T StringEnum](v T) ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalEnumJSON unmarshals an enum value from JSON by parsing the string
// representation. parseFunc converts a string to the enum value, or returns
// an error if the string is invalid.
func UnmarshalEnumJSON[T StringEnum](data []byte, parseFunc func(string) (T, error)) (T, error) {
	var zero T
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return zero, err
	}
	return parseFunc(s)
}

// ParseEnumError creates a standardized error message for invalid enum
// string values.
func ParseEnumError(enumName, value string) error {
	return fmt.Errorf("unknown %s: %s", enumName, value)
}
