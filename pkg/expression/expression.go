// Package expression implements a minimal, safe expression resolver.
//
// Supported forms:
//   - integer and float literals (42, -3, 3.14, +0.5, .5)
//   - quoted string literals with single or double quotes and the escape
//     sequences \n, \t, \r, \\, \" and \'
//   - dotted variable paths (user.profile.age) resolved against a context
//     map; integer segments index into slices
//
// It deliberately supports no operators and executes no code. Boolean
// conditions in workflow steps are handled separately by the steps package.
package expression

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	numberRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	intRe    = regexp.MustCompile(`^[+-]?\d+$`)
	identRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Error describes an invalid expression or a resolution failure.
type Error struct {
	Expr   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("expression %q: %s", e.Expr, e.Reason)
}

func newError(expr, format string, args ...any) *Error {
	return &Error{Expr: expr, Reason: fmt.Sprintf(format, args...)}
}

// IsNumberLiteral reports whether expr is a numeric literal.
func IsNumberLiteral(expr string) bool {
	return numberRe.MatchString(strings.TrimSpace(expr))
}

// IsStringLiteral reports whether expr is wrapped in matching quotes.
func IsStringLiteral(expr string) bool {
	if len(expr) < 2 {
		return false
	}

	first, last := expr[0], expr[len(expr)-1]

	return (first == '\'' && last == '\'') || (first == '"' && last == '"')
}

// Validate checks expression syntax without resolving values.
func Validate(expr string) error {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return newError(expr, "empty expression")
	}

	if trimmed[0] == '\'' || trimmed[0] == '"' {
		if !IsStringLiteral(trimmed) {
			return newError(expr, "unterminated string literal")
		}

		return nil
	}

	if IsNumberLiteral(trimmed) {
		return nil
	}

	for _, part := range strings.Split(trimmed, ".") {
		if !identRe.MatchString(part) && !intRe.MatchString(part) {
			return newError(expr, "invalid identifier path")
		}
	}

	return nil
}

// Resolve evaluates expr against the context. The result is an int64, a
// float64, a string, or whatever value the context path leads to.
func Resolve(expr string, context map[string]any) (any, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, newError(expr, "empty expression")
	}

	if trimmed[0] == '\'' || trimmed[0] == '"' {
		return parseString(trimmed)
	}

	if IsNumberLiteral(trimmed) {
		return parseNumber(trimmed)
	}

	return resolvePath(trimmed, context)
}

func parseNumber(expr string) (any, error) {
	if intRe.MatchString(expr) {
		n, err := strconv.ParseInt(expr, 10, 64)
		if err != nil {
			return nil, newError(expr, "invalid numeric literal")
		}

		return n, nil
	}

	f, err := strconv.ParseFloat(expr, 64)
	if err != nil {
		return nil, newError(expr, "invalid numeric literal")
	}

	return f, nil
}

var unescaper = strings.NewReplacer(
	`\n`, "\n",
	`\t`, "\t",
	`\r`, "\r",
	`\\`, `\`,
	`\"`, `"`,
	`\'`, "'",
)

func parseString(expr string) (string, error) {
	if !IsStringLiteral(expr) {
		return "", newError(expr, "unterminated string literal")
	}

	return unescaper.Replace(expr[1 : len(expr)-1]), nil
}

func resolvePath(expr string, context map[string]any) (any, error) {
	parts := strings.Split(expr, ".")
	for _, part := range parts {
		if !identRe.MatchString(part) && !intRe.MatchString(part) {
			return nil, newError(expr, "invalid identifier path")
		}
	}

	var current any = context

	for _, part := range parts {
		next, err := lookup(current, part)
		if err != nil {
			return nil, newError(expr, "segment %q: %v", part, err)
		}

		current = next
	}

	return current, nil
}

func lookup(current any, segment string) (any, error) {
	if idx, err := strconv.Atoi(segment); err == nil {
		if list, ok := current.([]any); ok {
			if idx < 0 || idx >= len(list) {
				return nil, fmt.Errorf("index %d out of range", idx)
			}

			return list[idx], nil
		}
	}

	if m, ok := current.(map[string]any); ok {
		value, found := m[segment]
		if !found {
			return nil, fmt.Errorf("not found")
		}

		return value, nil
	}

	return nil, fmt.Errorf("cannot traverse %T", current)
}
