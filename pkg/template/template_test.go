package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderWithoutPlaceholders(t *testing.T) {
	result := Render("plain text", map[string]any{"name": "x"})

	assert.Equal(t, "plain text", result)
}

func TestRenderSinglePlaceholderKeepsType(t *testing.T) {
	data := map[string]any{
		"count": 42,
		"user":  map[string]any{"active": true},
	}

	assert.Equal(t, 42, Render("{{ count }}", data))
	assert.Equal(t, true, Render("{{user.active}}", data))
}

func TestRenderInterpolatesIntoText(t *testing.T) {
	data := map[string]any{
		"user": map[string]any{"name": "Ada"},
		"n":    3,
	}

	result := Render("hello {{ user.name }}, you have {{ n }} messages", data)

	assert.Equal(t, "hello Ada, you have 3 messages", result)
}

func TestRenderMissingPathRendersEmpty(t *testing.T) {
	result := Render("value: {{ missing.path }}!", map[string]any{})

	assert.Equal(t, "value: !", result)
}

func TestRenderSliceIndexing(t *testing.T) {
	data := map[string]any{
		"items": []any{"first", "second"},
	}

	assert.Equal(t, "second", Render("{{ items.1 }}", data))
	assert.Nil(t, Render("{{ items.5 }}", data))
}

func TestRenderString(t *testing.T) {
	data := map[string]any{"n": 7}

	assert.Equal(t, "7", RenderString("{{ n }}", data))
	assert.Equal(t, "", RenderString("{{ missing }}", data))
}

func TestResolvePathNested(t *testing.T) {
	data := map[string]any{
		"a": map[string]any{
			"b": []any{
				map[string]any{"c": "deep"},
			},
		},
	}

	assert.Equal(t, "deep", ResolvePath("a.b.0.c", data))
	assert.Nil(t, ResolvePath("a.b.0.d", data))
	assert.Nil(t, ResolvePath("a.b.x", data))
}
