package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/xeipuuv/gojsonschema"
)

// ErrPayloadInvalid indicates a trigger payload failed schema validation.
var ErrPayloadInvalid = errors.New("trigger payload invalid")

// ErrConfigInvalid indicates a trigger's stored configuration is not
// acceptable to its definition.
var ErrConfigInvalid = errors.New("trigger config invalid")

// IsPayloadInvalid checks if an error indicates a rejected trigger payload.
func IsPayloadInvalid(err error) bool {
	return errors.Is(err, ErrPayloadInvalid)
}

// IsConfigInvalid checks if an error indicates a rejected trigger config.
func IsConfigInvalid(err error) bool {
	return errors.Is(err, ErrConfigInvalid)
}

// TriggerDefinition describes one trigger type: metadata for the editor plus
// a JSON schema for the payloads that launch it. Definitions are metadata,
// not runtime events.
type TriggerDefinition struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Icon        string         `json:"icon,omitempty"`
	DataSchema  map[string]any `json:"data_schema,omitempty"`

	// ValidateConfig, when set, checks a trigger's stored configuration.
	ValidateConfig func(config map[string]any) error `json:"-"`
}

// ValidatePayload checks a launch payload against the definition's schema.
// With raiseErrors false, a mismatch returns false instead of an error.
// A definition without a schema accepts every payload.
func (d *TriggerDefinition) ValidatePayload(payload map[string]any, raiseErrors bool) (bool, error) {
	if len(d.DataSchema) == 0 {
		return true, nil
	}

	if payload == nil {
		payload = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(d.DataSchema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return false, fmt.Errorf("schema validation for trigger '%s': %w", d.ID, err)
	}

	if result.Valid() {
		return true, nil
	}

	if !raiseErrors {
		return false, nil
	}

	descriptions := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		descriptions = append(descriptions, desc.String())
	}

	return false, fmt.Errorf("%w: trigger '%s': %s", ErrPayloadInvalid, d.ID, strings.Join(descriptions, "; "))
}

// Built-in trigger definitions. The "code" trigger is the cross-automation
// entry point used by the next-modifier; it accepts any payload.

func ClickTrigger() *TriggerDefinition {
	return &TriggerDefinition{
		ID:          "click",
		Name:        "Manual",
		Description: "Starts when a staff user selects the automation to be started",
		Icon:        "bi-mouse",
		DataSchema: map[string]any{
			"$schema":  "https://json-schema.org/draft/2020-12/schema",
			"type":     "object",
			"required": []any{"element_id", "timestamp"},
			"properties": map[string]any{
				"element_id": map[string]any{"type": "string", "minLength": 1},
				"timestamp":  map[string]any{"type": "string", "format": "date-time"},
				"path":       map[string]any{"type": "string"},
				"metadata":   map[string]any{"type": "object"},
			},
			"additionalProperties": true,
		},
	}
}

func MailTrigger() *TriggerDefinition {
	return &TriggerDefinition{
		ID:          "mail",
		Name:        "Mail",
		Description: "Starts when an email is sent or its status updates",
		Icon:        "bi-envelope-at",
		DataSchema: map[string]any{
			"$schema":  "https://json-schema.org/draft/2020-12/schema",
			"type":     "object",
			"required": []any{"message_id", "recipient", "timestamp"},
			"properties": map[string]any{
				"message_id": map[string]any{"type": "string", "minLength": 1},
				"recipient":  map[string]any{"type": "string", "format": "email"},
				"subject":    map[string]any{"type": "string"},
				"timestamp":  map[string]any{"type": "string", "format": "date-time"},
				"status":     map[string]any{"type": "string", "enum": []any{"queued", "sent", "bounced", "opened"}},
				"provider":   map[string]any{"type": "string"},
			},
			"additionalProperties": true,
		},
	}
}

func TimerTrigger() *TriggerDefinition {
	return &TriggerDefinition{
		ID:          "timer",
		Name:        "Timer",
		Description: "Starts at a scheduled time or recurring interval",
		Icon:        "bi-alarm",
		DataSchema: map[string]any{
			"$schema":  "https://json-schema.org/draft/2020-12/schema",
			"type":     "object",
			"required": []any{"scheduled_at"},
			"properties": map[string]any{
				"scheduled_at": map[string]any{"type": "string", "format": "date-time"},
				"timezone":     map[string]any{"type": "string", "default": "UTC"},
				"metadata":     map[string]any{"type": "object"},
			},
			"additionalProperties": true,
		},
		ValidateConfig: validateTimerConfig,
	}
}

// validateTimerConfig accepts an optional "cron" entry with a standard
// 5-field cron expression.
func validateTimerConfig(config map[string]any) error {
	raw, ok := config["cron"]
	if !ok {
		return nil
	}

	expr, ok := raw.(string)
	if !ok {
		return fmt.Errorf("%w: 'cron' must be a string", ErrConfigInvalid)
	}

	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("%w: 'cron': %v", ErrConfigInvalid, err)
	}

	return nil
}

func CodeTrigger() *TriggerDefinition {
	return &TriggerDefinition{
		ID:          "code",
		Name:        "Automation",
		Description: "Starts when triggered by another automation",
		Icon:        "bi-code-slash",
	}
}

// RegisterBuiltinTriggers installs the built-in trigger definitions.
func RegisterBuiltinTriggers(r *Registry) {
	r.RegisterTrigger(ClickTrigger())
	r.RegisterTrigger(MailTrigger())
	r.RegisterTrigger(TimerTrigger())
	r.RegisterTrigger(CodeTrigger())
}
