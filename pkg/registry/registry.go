// Package registry holds the process-wide lookups the engine depends on:
// trigger definitions, external services, and business action factories.
//
// A Registry is constructed once at process start and passed by reference to
// the launcher, runner and web layers. Nothing here is a global.
package registry

import (
	"fmt"
	"log/slog"
)

type Registry struct {
	logger          *slog.Logger
	triggers        map[string]*TriggerDefinition
	services        map[string]Service
	actionFactories map[string]ActionFactory
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger:          logger.With("module", "registry"),
		triggers:        make(map[string]*TriggerDefinition),
		services:        make(map[string]Service),
		actionFactories: make(map[string]ActionFactory),
	}
}

// RegisterTrigger adds a trigger definition, replacing any previous one with
// the same id.
func (r *Registry) RegisterTrigger(def *TriggerDefinition) {
	r.triggers[def.ID] = def
}

// Trigger returns the definition for the given type id, or nil.
func (r *Registry) Trigger(id string) *TriggerDefinition {
	return r.triggers[id]
}

// Triggers returns all registered trigger definitions.
func (r *Registry) Triggers() []*TriggerDefinition {
	defs := make([]*TriggerDefinition, 0, len(r.triggers))
	for _, def := range r.triggers {
		defs = append(defs, def)
	}

	return defs
}

// RegisterAction adds a business action factory under its type id.
func (r *Registry) RegisterAction(actionType string, factory ActionFactory) {
	r.actionFactories[actionType] = factory
}

// CreateAction instantiates a registered business action with the node's
// stored configuration.
func (r *Registry) CreateAction(actionType string, config map[string]any) (Action, error) {
	factory, ok := r.actionFactories[actionType]
	if !ok {
		return nil, fmt.Errorf("action type '%s' not registered", actionType)
	}

	return factory(config)
}
