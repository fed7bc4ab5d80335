// Package web provides the REST API over automations, triggers and runs.
package web

import "github.com/chainpress/chainpress/pkg/models"

// CreateAutomationRequest is the request body for creating an automation.
type CreateAutomationRequest struct {
	Name   string `json:"name"   validate:"required,min=3"`
	Active bool   `json:"active"`
}

// UpdateAutomationRequest supports partial updates.
type UpdateAutomationRequest struct {
	Name   *string `json:"name,omitempty" validate:"omitempty,min=3"`
	Active *bool   `json:"active,omitempty"`
}

// CreateTriggerRequest is the request body for attaching a trigger to a
// content.
type CreateTriggerRequest struct {
	Slot     string         `json:"slot"     validate:"required"`
	Type     string         `json:"type"     validate:"required"`
	Config   map[string]any `json:"config"`
	Position int            `json:"position"`
}

// UpdateTriggerRequest supports partial updates. Changing the type resets the
// stored config: settings of one trigger type are meaningless to another.
type UpdateTriggerRequest struct {
	Slot     *string        `json:"slot,omitempty"`
	Type     *string        `json:"type,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
	Position *int           `json:"position,omitempty"`
}

// LaunchRequest is the request body for launching a trigger.
type LaunchRequest struct {
	Data    map[string]any `json:"data"`
	Start   *bool          `json:"start,omitempty"`
	Testing bool           `json:"testing,omitempty"`
}

// TaskResponse is an open human-interaction action with its age, so operators
// can spot stale tasks.
type TaskResponse struct {
	*models.Action
	AgeHours float64 `json:"age_hours"`
}

// CreateAPIKeyRequest is the request body for storing a service credential.
type CreateAPIKeyRequest struct {
	Name        string `json:"name"    validate:"required"`
	Service     string `json:"service" validate:"required"`
	Key         string `json:"key"     validate:"required"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}
