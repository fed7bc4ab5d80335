package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRun(t *testing.T, store *Persistence, instanceID, actionID string) {
	t.Helper()

	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.SaveAutomation(ctx, &models.Automation{
		ID: "automation-1", Name: "Test", Active: true,
	}))
	require.NoError(t, store.SaveContent(ctx, &models.AutomationContent{
		ID: "content-1", AutomationID: "automation-1",
	}))
	require.NoError(t, store.CreateRun(ctx, &models.Instance{
		ID: instanceID, ContentID: "content-1", CreatedAt: now, UpdatedAt: now,
	}, &models.Action{
		ID: actionID, InstanceID: instanceID, PluginPtr: "node-1",
		State: models.ActionStatePending, CreatedAt: now,
	}))
}

func TestReturnedValuesAreCopies(t *testing.T) {
	store := NewPersistence()
	ctx := context.Background()

	seedRun(t, store, "instance-1", "action-1")

	action, err := store.ActionByID(ctx, "action-1")
	require.NoError(t, err)

	action.State = models.ActionStateFailed
	action.MergeResult(map[string]any{"k": "v"})

	stored, err := store.ActionByID(ctx, "action-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatePending, stored.State)
	assert.Empty(t, stored.Result)
}

func TestNotFoundErrors(t *testing.T) {
	store := NewPersistence()
	ctx := context.Background()

	_, err := store.AutomationByID(ctx, "ghost")
	assert.True(t, persistence.IsAutomationNotFound(err))

	_, err = store.ContentByID(ctx, "ghost")
	assert.True(t, persistence.IsContentNotFound(err))

	_, err = store.TriggerByID(ctx, "ghost")
	assert.True(t, persistence.IsTriggerNotFound(err))

	_, err = store.InstanceByID(ctx, "ghost")
	assert.True(t, persistence.IsInstanceNotFound(err))

	_, err = store.ActionByID(ctx, "ghost")
	assert.True(t, persistence.IsActionNotFound(err))
}

func TestClaimActionExactlyOnce(t *testing.T) {
	store := NewPersistence()
	ctx := context.Background()

	seedRun(t, store, "instance-1", "action-1")

	var claims int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, ok, err := store.ClaimAction(ctx, "action-1", "node-1")
			require.NoError(t, err)

			if ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, claims)

	claimed, err := store.ActionByID(ctx, "action-1")
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateRunning, claimed.State)
	assert.Equal(t, 1, claimed.Locked)
}

func TestClaimActionRejectsStaleAndPaused(t *testing.T) {
	store := NewPersistence()
	ctx := context.Background()

	seedRun(t, store, "instance-1", "action-1")

	// Wrong node pointer: the step tree changed under the action.
	_, ok, err := store.ClaimAction(ctx, "action-1", "other-node")
	require.NoError(t, err)
	assert.False(t, ok)

	// Paused into the future.
	action, err := store.ActionByID(ctx, "action-1")
	require.NoError(t, err)

	future := time.Now().UTC().Add(time.Hour)
	action.PausedUntil = &future
	require.NoError(t, store.SaveAction(ctx, action))

	_, ok, err = store.ClaimAction(ctx, "action-1", "node-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Finished actions are never reclaimed.
	finished := time.Now().UTC()
	action.PausedUntil = nil
	action.Finished = &finished
	require.NoError(t, store.SaveAction(ctx, action))

	_, ok, err = store.ClaimAction(ctx, "action-1", "node-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaimActionExpiresStaleClaims(t *testing.T) {
	store := NewPersistence()
	ctx := context.Background()

	seedRun(t, store, "instance-1", "action-1")

	claimed, ok, err := store.ClaimAction(ctx, "action-1", "node-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, claimed.ClaimedAt)

	// The claim is live, a second claim is rejected.
	_, ok, err = store.ClaimAction(ctx, "action-1", "node-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// A lock with no claim timestamp stays held.
	claimed.ClaimedAt = nil
	require.NoError(t, store.SaveAction(ctx, claimed))

	_, ok, err = store.ClaimAction(ctx, "action-1", "node-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Once the claim outlives its lease it can be taken over.
	stale := time.Now().UTC().Add(-persistence.StaleClaimAfter - time.Minute)
	claimed.ClaimedAt = &stale
	require.NoError(t, store.SaveAction(ctx, claimed))

	reclaimed, ok, err := store.ClaimAction(ctx, "action-1", "node-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.ActionStateRunning, reclaimed.State)
	require.NotNil(t, reclaimed.ClaimedAt)
	assert.True(t, reclaimed.ClaimedAt.After(stale))
}

func TestDueActionsFilters(t *testing.T) {
	store := NewPersistence()
	ctx := context.Background()
	now := time.Now().UTC()

	seedRun(t, store, "instance-1", "due-action")

	// Paused into the future.
	future := now.Add(time.Hour)
	require.NoError(t, store.SaveAction(ctx, &models.Action{
		ID: "paused-action", InstanceID: "instance-1", PluginPtr: "node-2",
		State: models.ActionStateWaiting, PausedUntil: &future, CreatedAt: now,
	}))

	// Waiting on a human.
	require.NoError(t, store.SaveAction(ctx, &models.Action{
		ID: "task-action", InstanceID: "instance-1", PluginPtr: "node-3",
		State: models.ActionStateWaiting, RequiresInteraction: true, CreatedAt: now,
	}))

	// Testing instance.
	require.NoError(t, store.CreateRun(ctx, &models.Instance{
		ID: "testing-instance", ContentID: "content-1", Testing: true, CreatedAt: now, UpdatedAt: now,
	}, &models.Action{
		ID: "testing-action", InstanceID: "testing-instance", PluginPtr: "node-1",
		State: models.ActionStatePending, CreatedAt: now,
	}))

	due, err := store.DueActions(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "due-action", due[0].ID)
}

func TestDueActionsSkipsInactiveAutomation(t *testing.T) {
	store := NewPersistence()
	ctx := context.Background()

	seedRun(t, store, "instance-1", "action-1")

	require.NoError(t, store.SaveAutomation(ctx, &models.Automation{
		ID: "automation-1", Name: "Test", Active: false,
	}))

	due, err := store.DueActions(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestChildActionsAndHasSuccessor(t *testing.T) {
	store := NewPersistence()
	ctx := context.Background()
	now := time.Now().UTC()

	seedRun(t, store, "instance-1", "split-action")

	parent := "split-action"
	previous := "split-action"
	require.NoError(t, store.SaveAction(ctx, &models.Action{
		ID: "child-1", InstanceID: "instance-1", PluginPtr: "node-a",
		ParentID: &parent, PreviousID: &previous, CreatedAt: now,
	}))
	require.NoError(t, store.SaveAction(ctx, &models.Action{
		ID: "child-2", InstanceID: "instance-1", PluginPtr: "node-b",
		ParentID: &parent, PreviousID: &previous, CreatedAt: now.Add(time.Millisecond),
	}))

	children, err := store.ChildActions(ctx, "split-action")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "child-1", children[0].ID)

	ok, err := store.HasSuccessor(ctx, "split-action")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.HasSuccessor(ctx, "child-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteFinishedInstancesBefore(t *testing.T) {
	store := NewPersistence()
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)
	finishedAt := old

	require.NoError(t, store.CreateRun(ctx, &models.Instance{
		ID: "old-done", ContentID: "content-1", CreatedAt: old, UpdatedAt: old,
	}, &models.Action{
		ID: "a1", InstanceID: "old-done", PluginPtr: "n",
		State: models.ActionStateCompleted, CreatedAt: old, Finished: &finishedAt,
	}))

	require.NoError(t, store.CreateRun(ctx, &models.Instance{
		ID: "old-open", ContentID: "content-1", CreatedAt: old, UpdatedAt: old,
	}, &models.Action{
		ID: "a2", InstanceID: "old-open", PluginPtr: "n", CreatedAt: old,
	}))

	deleted, err := store.DeleteFinishedInstancesBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.InstanceByID(ctx, "old-done")
	assert.Error(t, err)

	_, err = store.ActionByID(ctx, "a1")
	assert.Error(t, err)

	_, err = store.InstanceByID(ctx, "old-open")
	assert.NoError(t, err)
}

func TestAPIKeysByServiceReturnsActiveSorted(t *testing.T) {
	store := NewPersistence()
	ctx := context.Background()

	require.NoError(t, store.SaveAPIKey(ctx, &models.APIKey{
		ID: "k1", Name: "b-key", Service: "slack", Key: "x", Active: true,
	}))
	require.NoError(t, store.SaveAPIKey(ctx, &models.APIKey{
		ID: "k2", Name: "a-key", Service: "slack", Key: "y", Active: true,
	}))
	require.NoError(t, store.SaveAPIKey(ctx, &models.APIKey{
		ID: "k3", Name: "inactive", Service: "slack", Key: "z", Active: false,
	}))

	keys, err := store.APIKeysByService(ctx, "slack")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "a-key", keys[0].Name)
}
