package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteRendersTemplatedMessage(t *testing.T) {
	action := NewAction(map[string]any{"message": "user {{ user.name }} logged in"})

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	output, err := action.Execute(context.Background(), models.ActionContext{
		Data: map[string]any{"user": map[string]any{"name": "Ada"}},
	}, logger)
	require.NoError(t, err)

	assert.Equal(t, "user Ada logged in", output["logged"])
	assert.Contains(t, buf.String(), "user Ada logged in")
}

func TestExecuteLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error", ""} {
		action := NewAction(map[string]any{"message": "hello", "level": level})

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

		output, err := action.Execute(context.Background(), models.ActionContext{}, logger)
		require.NoError(t, err, level)
		assert.Equal(t, "hello", output["logged"], level)
		assert.Contains(t, buf.String(), "hello", level)
	}
}

func TestFactory(t *testing.T) {
	action, err := Factory(map[string]any{"message": "x"})
	require.NoError(t, err)
	assert.NotNil(t, action)
}
