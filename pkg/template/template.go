// Package template renders {{ path }} placeholders against instance data.
//
// Paths resolve through maps and slices only; a missing segment renders as an
// empty value rather than an error, so misconfigured placeholders surface in
// the output instead of failing the step.
package template

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Render substitutes every {{ path }} placeholder in input with its value
// from data. When the whole input is a single placeholder, the resolved value
// is returned as-is (keeping its type); otherwise values are stringified and
// concatenated into the surrounding text.
func Render(input string, data map[string]any) any {
	matches := placeholderRe.FindAllStringSubmatchIndex(input, -1)
	if len(matches) == 0 {
		return input
	}

	if len(matches) == 1 {
		whole := input[matches[0][0]:matches[0][1]]
		if strings.TrimSpace(input) == whole {
			return ResolvePath(input[matches[0][2]:matches[0][3]], data)
		}
	}

	return placeholderRe.ReplaceAllStringFunc(input, func(match string) string {
		path := placeholderRe.FindStringSubmatch(match)[1]

		value := ResolvePath(path, data)
		if value == nil {
			return ""
		}

		return fmt.Sprintf("%v", value)
	})
}

// RenderString is Render with the result coerced to a string.
func RenderString(input string, data map[string]any) string {
	value := Render(input, data)
	if value == nil {
		return ""
	}

	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}

// ResolvePath follows a dotted path through maps and slices. Integer segments
// index into slices. Returns nil when any segment is missing.
func ResolvePath(path string, data map[string]any) any {
	var current any = data

	for _, part := range strings.Split(path, ".") {
		switch v := current.(type) {
		case map[string]any:
			current = v[part]
		case []any:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil
			}

			current = v[idx]
		default:
			return nil
		}

		if current == nil {
			return nil
		}
	}

	return current
}
