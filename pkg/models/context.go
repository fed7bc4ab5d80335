package models

// ActionContext carries the data a business action sees while executing one
// step of a run.
type ActionContext struct {
	InstanceID  string         `json:"instance_id"`
	ActionID    string         `json:"action_id"`
	ContentID   string         `json:"content_id"`
	NodeID      string         `json:"node_id"`
	Data        map[string]any `json:"data,omitempty"`
	InitialData map[string]any `json:"initial_data,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}
