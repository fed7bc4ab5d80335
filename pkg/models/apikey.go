package models

import "time"

// APIKey stores a named credential for an external service, referenced by
// business actions through the service registry.
type APIKey struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"    validate:"required"`
	Service     string    `json:"service" validate:"required"`
	Key         string    `json:"key"     validate:"required"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
