// Package memory provides an in-memory persistence implementation for tests
// and local development. All operations copy values on the way in and out, so
// callers never share state with the store; ClaimAction is serialized by the
// store mutex, giving the same guarantee the SQL implementation gets from a
// row lock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/persistence"
)

type Persistence struct {
	mu sync.Mutex

	automations map[string]*models.Automation
	contents    map[string]*models.AutomationContent
	triggers    map[string]*models.Trigger
	steps       map[string]*models.StepRecord
	instances   map[string]*models.Instance
	actions     map[string]*models.Action
	apiKeys     map[string]*models.APIKey

	seq int
}

var _ persistence.Persistence = (*Persistence)(nil)

func NewPersistence() *Persistence {
	return &Persistence{
		automations: make(map[string]*models.Automation),
		contents:    make(map[string]*models.AutomationContent),
		triggers:    make(map[string]*models.Trigger),
		steps:       make(map[string]*models.StepRecord),
		instances:   make(map[string]*models.Instance),
		actions:     make(map[string]*models.Action),
		apiKeys:     make(map[string]*models.APIKey),
	}
}

func (p *Persistence) Automations(ctx context.Context) ([]*models.Automation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	automations := make([]*models.Automation, 0, len(p.automations))
	for _, automation := range p.automations {
		automations = append(automations, copyAutomation(automation))
	}

	sort.Slice(automations, func(a, b int) bool { return automations[a].Name < automations[b].Name })

	return automations, nil
}

func (p *Persistence) AutomationByID(ctx context.Context, id string) (*models.Automation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	automation, ok := p.automations[id]
	if !ok {
		return nil, persistence.NewAutomationError("GetByID", id, persistence.ErrAutomationNotFound)
	}

	return copyAutomation(automation), nil
}

func (p *Persistence) SaveAutomation(ctx context.Context, automation *models.Automation) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.automations[automation.ID] = copyAutomation(automation)

	return nil
}

func (p *Persistence) DeleteAutomation(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.automations, id)

	return nil
}

func (p *Persistence) ContentByID(ctx context.Context, id string) (*models.AutomationContent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, ok := p.contents[id]
	if !ok {
		return nil, persistence.ErrContentNotFound
	}

	clone := *content

	return &clone, nil
}

func (p *Persistence) ContentsByAutomation(ctx context.Context, automationID string) ([]*models.AutomationContent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	contents := make([]*models.AutomationContent, 0)

	for _, content := range p.contents {
		if content.AutomationID == automationID {
			clone := *content
			contents = append(contents, &clone)
		}
	}

	sort.Slice(contents, func(a, b int) bool { return contents[a].CreatedAt.Before(contents[b].CreatedAt) })

	return contents, nil
}

func (p *Persistence) SaveContent(ctx context.Context, content *models.AutomationContent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *content
	p.contents[content.ID] = &clone

	return nil
}

func (p *Persistence) StepsByContent(ctx context.Context, contentID string) ([]*models.StepRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	steps := make([]*models.StepRecord, 0)

	for _, step := range p.steps {
		if step.ContentID == contentID {
			steps = append(steps, copyStep(step))
		}
	}

	sort.Slice(steps, func(a, b int) bool {
		if steps[a].Slot != steps[b].Slot {
			return steps[a].Slot < steps[b].Slot
		}

		return steps[a].Position < steps[b].Position
	})

	return steps, nil
}

func (p *Persistence) SaveStep(ctx context.Context, step *models.StepRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.steps[step.ID] = copyStep(step)

	return nil
}

func (p *Persistence) DeleteStep(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.steps, id)

	return nil
}

func (p *Persistence) TriggerByID(ctx context.Context, id string) (*models.Trigger, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	trigger, ok := p.triggers[id]
	if !ok {
		return nil, persistence.ErrTriggerNotFound
	}

	return copyTrigger(trigger), nil
}

func (p *Persistence) TriggersByContent(ctx context.Context, contentID string) ([]*models.Trigger, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	triggers := make([]*models.Trigger, 0)

	for _, trigger := range p.triggers {
		if trigger.ContentID == contentID {
			triggers = append(triggers, copyTrigger(trigger))
		}
	}

	sort.Slice(triggers, func(a, b int) bool { return triggers[a].Position < triggers[b].Position })

	return triggers, nil
}

func (p *Persistence) SaveTrigger(ctx context.Context, trigger *models.Trigger) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.triggers[trigger.ID] = copyTrigger(trigger)

	return nil
}

func (p *Persistence) DeleteTrigger(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.triggers, id)

	return nil
}

func (p *Persistence) CreateRun(ctx context.Context, instance *models.Instance, action *models.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.instances[instance.ID] = copyInstance(instance)
	p.actions[action.ID] = copyAction(action)

	return nil
}

func (p *Persistence) InstanceByID(ctx context.Context, id string) (*models.Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	instance, ok := p.instances[id]
	if !ok {
		return nil, persistence.ErrInstanceNotFound
	}

	return copyInstance(instance), nil
}

func (p *Persistence) InstancesByContent(ctx context.Context, contentID string) ([]*models.Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	instances := make([]*models.Instance, 0)

	for _, instance := range p.instances {
		if instance.ContentID == contentID {
			instances = append(instances, copyInstance(instance))
		}
	}

	sort.Slice(instances, func(a, b int) bool { return instances[a].CreatedAt.Before(instances[b].CreatedAt) })

	return instances, nil
}

func (p *Persistence) SaveInstance(ctx context.Context, instance *models.Instance) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := copyInstance(instance)
	clone.UpdatedAt = time.Now().UTC()
	p.instances[instance.ID] = clone

	return nil
}

func (p *Persistence) ActionByID(ctx context.Context, id string) (*models.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	action, ok := p.actions[id]
	if !ok {
		return nil, persistence.ErrActionNotFound
	}

	return copyAction(action), nil
}

func (p *Persistence) ActionsByInstance(ctx context.Context, instanceID string) ([]*models.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	actions := make([]*models.Action, 0)

	for _, action := range p.actions {
		if action.InstanceID == instanceID {
			actions = append(actions, copyAction(action))
		}
	}

	sortByCreation(actions)

	return actions, nil
}

func (p *Persistence) ChildActions(ctx context.Context, parentID string) ([]*models.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	actions := make([]*models.Action, 0)

	for _, action := range p.actions {
		if action.ParentID != nil && *action.ParentID == parentID {
			actions = append(actions, copyAction(action))
		}
	}

	sortByCreation(actions)

	return actions, nil
}

func (p *Persistence) HasSuccessor(ctx context.Context, actionID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, action := range p.actions {
		if action.PreviousID != nil && *action.PreviousID == actionID {
			return true, nil
		}
	}

	return false, nil
}

func (p *Persistence) CreateAction(ctx context.Context, action *models.Action) error {
	return p.SaveAction(ctx, action)
}

func (p *Persistence) SaveAction(ctx context.Context, action *models.Action) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.actions[action.ID] = copyAction(action)

	return nil
}

func (p *Persistence) ClaimAction(ctx context.Context, actionID, pluginPtr string) (*models.Action, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	action, ok := p.actions[actionID]
	if !ok {
		return nil, false, persistence.ErrActionNotFound
	}

	if action.Finished != nil || action.PluginPtr != pluginPtr {
		return nil, false, nil
	}

	now := time.Now().UTC()

	if action.PausedUntil != nil && action.PausedUntil.After(now) {
		return nil, false, nil
	}

	// A live claim blocks; a claim past its lease is reclaimed.
	if action.Locked > 0 {
		if action.ClaimedAt == nil || now.Sub(*action.ClaimedAt) < persistence.StaleClaimAfter {
			return nil, false, nil
		}
	}

	action.Locked = 1
	action.State = models.ActionStateRunning
	action.ClaimedAt = &now

	return copyAction(action), true, nil
}

func (p *Persistence) DueActions(ctx context.Context, now time.Time) ([]*models.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	actions := make([]*models.Action, 0)

	for _, action := range p.actions {
		if action.Finished != nil || action.RequiresInteraction {
			continue
		}

		if action.PausedUntil != nil && action.PausedUntil.After(now) {
			continue
		}

		instance, ok := p.instances[action.InstanceID]
		if !ok || instance.Testing {
			continue
		}

		if !p.automationActive(instance.ContentID) {
			continue
		}

		actions = append(actions, copyAction(action))
	}

	sortByCreation(actions)

	return actions, nil
}

// automationActive must be called with the store mutex held.
func (p *Persistence) automationActive(contentID string) bool {
	content, ok := p.contents[contentID]
	if !ok {
		return false
	}

	automation, ok := p.automations[content.AutomationID]

	return ok && automation.Active
}

func (p *Persistence) OpenInteractionActions(ctx context.Context, userID, groupID string) ([]*models.Action, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	actions := make([]*models.Action, 0)

	for _, action := range p.actions {
		if action.Finished != nil || !action.RequiresInteraction {
			continue
		}

		if userID != "" && (action.InteractionUserID == nil || *action.InteractionUserID != userID) {
			continue
		}

		if groupID != "" && (action.InteractionGroupID == nil || *action.InteractionGroupID != groupID) {
			continue
		}

		actions = append(actions, copyAction(action))
	}

	sortByCreation(actions)

	return actions, nil
}

func (p *Persistence) DeleteFinishedInstancesBefore(ctx context.Context, cutoff time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	deleted := 0

	for id, instance := range p.instances {
		if instance.UpdatedAt.After(cutoff) || instance.UpdatedAt.IsZero() {
			continue
		}

		if !p.instanceFinished(id) {
			continue
		}

		for actionID, action := range p.actions {
			if action.InstanceID == id {
				delete(p.actions, actionID)
			}
		}

		delete(p.instances, id)

		deleted++
	}

	return deleted, nil
}

// instanceFinished must be called with the store mutex held.
func (p *Persistence) instanceFinished(instanceID string) bool {
	any := false

	for _, action := range p.actions {
		if action.InstanceID != instanceID {
			continue
		}

		any = true

		if action.Finished == nil {
			return false
		}
	}

	return any
}

func (p *Persistence) APIKeysByService(ctx context.Context, service string) ([]*models.APIKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := make([]*models.APIKey, 0)

	for _, key := range p.apiKeys {
		if key.Service == service && key.Active {
			clone := *key
			keys = append(keys, &clone)
		}
	}

	sort.Slice(keys, func(a, b int) bool { return keys[a].Name < keys[b].Name })

	return keys, nil
}

func (p *Persistence) SaveAPIKey(ctx context.Context, key *models.APIKey) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	clone := *key
	p.apiKeys[key.ID] = &clone

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	return nil
}

func (p *Persistence) Close(ctx context.Context) error {
	return nil
}

func sortByCreation(actions []*models.Action) {
	sort.Slice(actions, func(a, b int) bool {
		if actions[a].CreatedAt.Equal(actions[b].CreatedAt) {
			return actions[a].ID < actions[b].ID
		}

		return actions[a].CreatedAt.Before(actions[b].CreatedAt)
	})
}

func copyAutomation(a *models.Automation) *models.Automation {
	clone := *a

	return &clone
}

func copyTrigger(t *models.Trigger) *models.Trigger {
	clone := *t
	clone.Config = copyMap(t.Config)

	return &clone
}

func copyStep(s *models.StepRecord) *models.StepRecord {
	clone := *s
	clone.Config = copyMap(s.Config)

	if s.ParentID != nil {
		parent := *s.ParentID
		clone.ParentID = &parent
	}

	return &clone
}

func copyInstance(i *models.Instance) *models.Instance {
	clone := *i
	clone.InitialData = copyMap(i.InitialData)
	clone.Data = copyMap(i.Data)

	return &clone
}

func copyAction(a *models.Action) *models.Action {
	clone := *a
	clone.Result = copyMap(a.Result)
	clone.PreviousID = copyID(a.PreviousID)
	clone.ParentID = copyID(a.ParentID)
	clone.InteractionUserID = copyID(a.InteractionUserID)
	clone.InteractionGroupID = copyID(a.InteractionGroupID)

	if a.PausedUntil != nil {
		t := *a.PausedUntil
		clone.PausedUntil = &t
	}

	if a.ClaimedAt != nil {
		t := *a.ClaimedAt
		clone.ClaimedAt = &t
	}

	if a.Finished != nil {
		t := *a.Finished
		clone.Finished = &t
	}

	if a.InteractionPermissions != nil {
		clone.InteractionPermissions = append([]string(nil), a.InteractionPermissions...)
	}

	return &clone
}

func copyID(id *string) *string {
	if id == nil {
		return nil
	}

	clone := *id

	return &clone
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	clone := make(map[string]any, len(m))
	for k, v := range m {
		clone[k] = v
	}

	return clone
}
