package registry

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	reg := NewRegistry(logger)
	RegisterBuiltinTriggers(reg)
	RegisterBuiltinServices(reg)

	return reg
}

func TestBuiltinTriggersRegistered(t *testing.T) {
	reg := newTestRegistry()

	for _, id := range []string{"click", "mail", "timer", "code"} {
		assert.NotNil(t, reg.Trigger(id), id)
	}

	assert.Nil(t, reg.Trigger("unknown"))
	assert.Len(t, reg.Triggers(), 4)
}

func TestValidatePayloadAgainstSchema(t *testing.T) {
	def := ClickTrigger()

	ok, err := def.ValidatePayload(map[string]any{
		"element_id": "button-1",
		"timestamp":  "2026-08-31T10:00:00Z",
	}, true)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = def.ValidatePayload(map[string]any{"element_id": "button-1"}, true)
	require.Error(t, err)
	assert.True(t, IsPayloadInvalid(err))

	// raiseErrors false reports the mismatch without an error.
	ok, err = def.ValidatePayload(map[string]any{}, false)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestValidatePayloadWithoutSchemaAcceptsAnything(t *testing.T) {
	def := CodeTrigger()

	ok, err := def.ValidatePayload(nil, true)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = def.ValidatePayload(map[string]any{"whatever": 1}, true)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTimerConfigValidation(t *testing.T) {
	def := TimerTrigger()
	require.NotNil(t, def.ValidateConfig)

	assert.NoError(t, def.ValidateConfig(map[string]any{}))
	assert.NoError(t, def.ValidateConfig(map[string]any{"cron": "*/5 * * * *"}))

	err := def.ValidateConfig(map[string]any{"cron": "not a cron"})
	require.Error(t, err)
	assert.True(t, IsConfigInvalid(err))

	err = def.ValidateConfig(map[string]any{"cron": 5})
	require.Error(t, err)
	assert.True(t, IsConfigInvalid(err))
}

func TestCreateActionUnknownType(t *testing.T) {
	reg := newTestRegistry()

	_, err := reg.CreateAction("missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
