package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNumberLiterals(t *testing.T) {
	tests := []struct {
		expr string
		want any
	}{
		{"42", int64(42)},
		{"-3", int64(-3)},
		{"3.14", 3.14},
		{".5", 0.5},
		{"+0.5", 0.5},
	}

	for _, tt := range tests {
		got, err := Resolve(tt.expr, nil)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}
}

func TestResolveStringLiterals(t *testing.T) {
	got, err := Resolve(`"hello"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	got, err = Resolve(`'it\'s'`, nil)
	require.NoError(t, err)
	assert.Equal(t, "it's", got)

	got, err = Resolve(`"line\nbreak"`, nil)
	require.NoError(t, err)
	assert.Equal(t, "line\nbreak", got)
}

func TestResolveDottedPath(t *testing.T) {
	context := map[string]any{
		"user": map[string]any{
			"profile": map[string]any{"age": 30},
			"tags":    []any{"a", "b"},
		},
	}

	got, err := Resolve("user.profile.age", context)
	require.NoError(t, err)
	assert.Equal(t, 30, got)

	got, err = Resolve("user.tags.1", context)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestResolveErrors(t *testing.T) {
	_, err := Resolve("", nil)
	assert.Error(t, err)

	_, err = Resolve(`"unterminated`, nil)
	assert.Error(t, err)

	_, err = Resolve("user.name", map[string]any{})
	assert.Error(t, err)

	_, err = Resolve("user.0", map[string]any{"user": "scalar"})
	assert.Error(t, err)

	_, err = Resolve("a b", nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("42"))
	assert.NoError(t, Validate(`"text"`))
	assert.NoError(t, Validate("user.profile.age"))
	assert.NoError(t, Validate("items.0"))

	assert.Error(t, Validate(""))
	assert.Error(t, Validate("'open"))
	assert.Error(t, Validate("a-b"))
	assert.Error(t, Validate("a..b"))
}

func TestIsNumberLiteral(t *testing.T) {
	assert.True(t, IsNumberLiteral(" 42 "))
	assert.True(t, IsNumberLiteral("-1.5"))
	assert.False(t, IsNumberLiteral("4x"))
	assert.False(t, IsNumberLiteral(""))
}
