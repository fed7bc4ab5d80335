// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrAutomationNotFound indicates an automation was not found by the given identifier.
	ErrAutomationNotFound = errors.New("automation not found")

	// ErrContentNotFound indicates an automation content was not found.
	ErrContentNotFound = errors.New("automation content not found")

	// ErrTriggerNotFound indicates a trigger was not found.
	ErrTriggerNotFound = errors.New("trigger not found")

	// ErrStepNotFound indicates a step record was not found.
	ErrStepNotFound = errors.New("step not found")

	// ErrInstanceNotFound indicates an execution instance was not found.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrActionNotFound indicates an action was not found.
	ErrActionNotFound = errors.New("action not found")
)

// AutomationError wraps automation-related errors with additional context.
type AutomationError struct {
	Op           string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	AutomationID string
	Err          error
	Message      string
}

func (e *AutomationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s operation failed for automation %s: %s (%v)", e.Op, e.AutomationID, e.Message, e.Err)
	}

	return fmt.Sprintf("%s operation failed for automation %s: %v", e.Op, e.AutomationID, e.Err)
}

func (e *AutomationError) Unwrap() error {
	return e.Err
}

func (e *AutomationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewAutomationError creates a new automation error with context.
func NewAutomationError(op, automationID string, err error) *AutomationError {
	return &AutomationError{Op: op, AutomationID: automationID, Err: err}
}

// ActionError wraps action-related errors with additional context.
type ActionError struct {
	Op         string
	InstanceID string
	ActionID   string
	Err        error
}

func (e *ActionError) Error() string {
	if e.InstanceID != "" {
		return fmt.Sprintf("%s operation failed for action %s in instance %s: %v", e.Op, e.ActionID, e.InstanceID, e.Err)
	}

	return fmt.Sprintf("%s operation failed for action %s: %v", e.Op, e.ActionID, e.Err)
}

// NewActionError creates a new action error with context.
func NewActionError(op, actionID string, err error) *ActionError {
	return &ActionError{Op: op, ActionID: actionID, Err: err}
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

func (e *ActionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsAutomationNotFound checks if an error indicates a missing automation.
func IsAutomationNotFound(err error) bool {
	return errors.Is(err, ErrAutomationNotFound)
}

// IsInstanceNotFound checks if an error indicates a missing instance.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}

// IsActionNotFound checks if an error indicates a missing action.
func IsActionNotFound(err error) bool {
	return errors.Is(err, ErrActionNotFound)
}

// IsTriggerNotFound checks if an error indicates a missing trigger.
func IsTriggerNotFound(err error) bool {
	return errors.Is(err, ErrTriggerNotFound)
}

// IsContentNotFound checks if an error indicates a missing content.
func IsContentNotFound(err error) bool {
	return errors.Is(err, ErrContentNotFound)
}

// IsStepNotFound checks if an error indicates a missing step.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}
