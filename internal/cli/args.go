package cli

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseToolArgs builds the argument map for a tool call from repeated
// key=value pairs and an optional JSON document. The document is
// applied first so explicit pairs win on conflict.
//
// Pair values are parsed as JSON when they look like it, so numbers,
// booleans, arrays and objects come through typed: a=5 sends the number
// 5, name=alice sends the string "alice". Quote a value as name='"5"'
// to force a string.
func ParseToolArgs(pairs []string, argsJSON string) (map[string]interface{}, error) {
	args := make(map[string]interface{})

	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return nil, fmt.Errorf("invalid --args-json document: %w", err)
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid argument %q (expected key=value)", pair)
		}
		args[key] = coerceArgValue(strings.TrimSpace(value))
	}

	return args, nil
}

// coerceArgValue parses value as JSON, falling back to the raw string.
func coerceArgValue(value string) interface{} {
	var parsed interface{}
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return value
	}
	return parsed
}
