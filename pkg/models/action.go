package models

import "time"

// ActionState is the lifecycle state of one step's execution record.
type ActionState string

const (
	ActionStatePending   ActionState = "PENDING"
	ActionStateRunning   ActionState = "RUNNING"
	ActionStateWaiting   ActionState = "WAITING"
	ActionStateCompleted ActionState = "COMPLETED"
	ActionStateFailed    ActionState = "FAILED"
)

// MessageJoined marks a split action whose paths have all converged. The
// joined path-end action ids are recorded in the result under "joined".
const MessageJoined = "Joined"

// Action is one step's execution record within an Instance.
//
// PluginPtr addresses the step node it executes by the node's stable id.
// PreviousID points at the action that produced this one; ParentID at the
// enclosing split action, if any. Together they form the run's execution DAG:
// previous/parent are back-references for navigation, not ownership, so
// deleting a referenced action nulls the reference rather than cascading.
//
// Locked is an advisory pessimistic guard for steps requiring exclusive
// access; the scheduler itself relies on transactional re-validation instead.
// A claim records ClaimedAt and expires after persistence.StaleClaimAfter, so
// a worker that dies mid-execution cannot hold an action forever.
type Action struct {
	ID                     string         `json:"id"`
	InstanceID             string         `json:"instance_id" validate:"required"`
	PluginPtr              string         `json:"plugin_ptr"  validate:"required"`
	State                  ActionState    `json:"state"`
	PreviousID             *string        `json:"previous_id,omitempty"`
	ParentID               *string        `json:"parent_id,omitempty"`
	PausedUntil            *time.Time     `json:"paused_until,omitempty"`
	Locked                 int            `json:"locked"`
	ClaimedAt              *time.Time     `json:"claimed_at,omitempty"`
	RequiresInteraction    bool           `json:"requires_interaction"`
	InteractionUserID      *string        `json:"interaction_user_id,omitempty"`
	InteractionGroupID     *string        `json:"interaction_group_id,omitempty"`
	InteractionPermissions []string       `json:"interaction_permissions,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	Finished               *time.Time     `json:"finished,omitempty"`
	Message                string         `json:"message,omitempty"`
	Result                 map[string]any `json:"result,omitempty"`
}

// IsFinished reports whether the action reached a terminal state.
func (a *Action) IsFinished() bool {
	return a.Finished != nil
}

// HoursSinceCreated returns how long the action has been open, in hours.
// Zero once finished.
func (a *Action) HoursSinceCreated() float64 {
	if a.Finished != nil {
		return 0
	}

	return time.Since(a.CreatedAt).Hours()
}

// MergeResult shallow-merges step output into the action's result.
func (a *Action) MergeResult(out map[string]any) {
	if len(out) == 0 {
		return
	}

	if a.Result == nil {
		a.Result = make(map[string]any, len(out))
	}

	for k, v := range out {
		a.Result[k] = v
	}
}
