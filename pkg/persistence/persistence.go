// Package persistence provides the data storage abstraction for automations,
// triggers, step trees and execution state.
package persistence

import (
	"context"
	"time"

	"github.com/chainpress/chainpress/pkg/models"
)

// StaleClaimAfter is the claim lease. A claimed action whose worker neither
// finished nor released it within this window becomes claimable again, so
// the sweep can recover actions from workers that died mid-execution.
const StaleClaimAfter = 10 * time.Minute

type Persistence interface {
	// Automation definitions.
	Automations(ctx context.Context) ([]*models.Automation, error)
	AutomationByID(ctx context.Context, id string) (*models.Automation, error)
	SaveAutomation(ctx context.Context, automation *models.Automation) error
	DeleteAutomation(ctx context.Context, id string) error

	// Content versions and their step trees.
	ContentByID(ctx context.Context, id string) (*models.AutomationContent, error)
	ContentsByAutomation(ctx context.Context, automationID string) ([]*models.AutomationContent, error)
	SaveContent(ctx context.Context, content *models.AutomationContent) error
	StepsByContent(ctx context.Context, contentID string) ([]*models.StepRecord, error)
	SaveStep(ctx context.Context, step *models.StepRecord) error
	DeleteStep(ctx context.Context, id string) error

	// Triggers.
	TriggerByID(ctx context.Context, id string) (*models.Trigger, error)
	TriggersByContent(ctx context.Context, contentID string) ([]*models.Trigger, error)
	SaveTrigger(ctx context.Context, trigger *models.Trigger) error
	DeleteTrigger(ctx context.Context, id string) error

	// Execution state. CreateRun persists a new instance and its first
	// action atomically; neither exists without the other.
	CreateRun(ctx context.Context, instance *models.Instance, action *models.Action) error
	InstanceByID(ctx context.Context, id string) (*models.Instance, error)
	InstancesByContent(ctx context.Context, contentID string) ([]*models.Instance, error)
	SaveInstance(ctx context.Context, instance *models.Instance) error

	ActionByID(ctx context.Context, id string) (*models.Action, error)
	ActionsByInstance(ctx context.Context, instanceID string) ([]*models.Action, error)
	ChildActions(ctx context.Context, parentID string) ([]*models.Action, error)
	HasSuccessor(ctx context.Context, actionID string) (bool, error)
	CreateAction(ctx context.Context, action *models.Action) error
	SaveAction(ctx context.Context, action *models.Action) error

	// ClaimAction is the concurrency guard for one execution unit: in a
	// single transaction it re-reads the action, verifies it is still
	// unfinished, not paused into the future, still addressing pluginPtr,
	// and either unlocked or holding a claim older than StaleClaimAfter,
	// then marks it RUNNING with the lock counter and claim time set. ok
	// is false when another worker holds a live claim or the action
	// already finished. The scheduler releases the claim when it persists
	// the unit's outcome, and on every error path after claiming.
	ClaimAction(ctx context.Context, actionID, pluginPtr string) (*models.Action, bool, error)

	// DueActions returns unfinished actions of active, non-testing
	// instances whose pause deadline has passed (or was never set) and
	// which do not require human interaction.
	DueActions(ctx context.Context, now time.Time) ([]*models.Action, error)

	// OpenInteractionActions returns unfinished actions awaiting a human,
	// optionally filtered by assigned user or group id.
	OpenInteractionActions(ctx context.Context, userID, groupID string) ([]*models.Action, error)

	// DeleteFinishedInstancesBefore removes instances whose runs fully
	// finished before the cutoff, cascading to their actions. Returns the
	// number of instances removed.
	DeleteFinishedInstancesBefore(ctx context.Context, cutoff time.Time) (int, error)

	// API keys.
	APIKeysByService(ctx context.Context, service string) ([]*models.APIKey, error)
	SaveAPIKey(ctx context.Context, key *models.APIKey) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
