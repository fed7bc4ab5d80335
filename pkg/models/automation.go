// Package models defines the core domain models for content-embedded workflow automation.
package models

import "time"

// Automation is a named, versionable workflow definition. The renderable body
// lives in AutomationContent; an automation can carry several content versions
// but only ever executes against one of them at a time.
type Automation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"   validate:"required,min=3"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutomationContent is one version's container. It holds one or more named
// slots, each slot holding a tree of step nodes. Contents are immutable once
// an execution has started against them; edits produce a new content under the
// surrounding versioning system.
type AutomationContent struct {
	ID           string    `json:"id"`
	AutomationID string    `json:"automation_id" validate:"required"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// Trigger is the entry point that starts a content's execution in response to
// an external event. Slot identifies which step tree to run; Type is resolved
// against the trigger-definition registry; Config carries type-specific
// settings validated by the definition's schema.
type Trigger struct {
	ID        string         `json:"id"`
	ContentID string         `json:"content_id" validate:"required"`
	Slot      string         `json:"slot"       validate:"required"`
	Type      string         `json:"type"       validate:"required"`
	Config    map[string]any `json:"config"`
	Position  int            `json:"position"`
}
