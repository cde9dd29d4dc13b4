// Package template resolves {key}-style placeholders against an execution's
// variable bag.
package template

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// Substitute replaces every {key} placeholder in input with the variable of
// that name. Unresolved placeholders pass through unchanged; substitution
// never fails.
func Substitute(input string, variables map[string]any) string {
	if input == "" || !strings.Contains(input, "{") {
		return input
	}

	return placeholderRe.ReplaceAllStringFunc(input, func(match string) string {
		key := match[1 : len(match)-1]

		value, ok := lookup(variables, key)
		if !ok {
			return match
		}

		return stringify(value)
	})
}

// lookup resolves a dotted key path ("response.status") through nested maps.
func lookup(variables map[string]any, key string) (any, bool) {
	if v, ok := variables[key]; ok {
		return v, true
	}

	parts := strings.Split(key, ".")
	if len(parts) == 1 {
		return nil, false
	}

	var current any = variables

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case float64:
		// Render integral floats without a trailing ".0"; JSON numbers all
		// decode as float64.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}

		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
