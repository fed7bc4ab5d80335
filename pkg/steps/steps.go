// Package steps defines the execution contract of step nodes and the dispatch
// table mapping node kinds to their behavior.
//
// Each kind provides three operations: Execute runs the step against an
// action record, NextActions computes the successor action records once the
// step completed, and Validate reports configuration problems to the editor.
// Kinds are a closed set plus the open "action:*" family, whose execution is
// delegated to business actions registered in the registry.
package steps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainpress/chainpress/pkg/graph"
	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/google/uuid"
)

// Outcome is the result of executing one step against one action.
type Outcome struct {
	State       models.ActionState
	Output      map[string]any
	Message     string
	PausedUntil *time.Time
}

// LaunchFunc starts another automation trigger with the given payload. The
// engine supplies it so the next-modifier can jump across workflows without
// the steps package depending on the launcher.
type LaunchFunc func(ctx context.Context, triggerID string, data map[string]any) error

// Env carries the collaborators one execution unit needs. The graph is built
// once per scheduler invocation and shared across all actions of an instance.
type Env struct {
	Store    persistence.Persistence
	Registry *registry.Registry
	Graph    *graph.Graph
	Instance *models.Instance
	Logger   *slog.Logger
	Launch   LaunchFunc
}

// Handler implements one node kind.
type Handler struct {
	Execute     func(ctx context.Context, env *Env, node *graph.Node, action *models.Action) (Outcome, error)
	NextActions func(ctx context.Context, env *Env, node *graph.Node, action *models.Action) ([]*models.Action, error)
	Validate    func(g *graph.Graph, node *graph.Node) []string
}

// Set is the dispatch table over node kinds.
type Set struct {
	handlers map[models.StepKind]Handler
}

// NewSet builds the dispatch table with all built-in kinds.
func NewSet() *Set {
	s := &Set{handlers: make(map[models.StepKind]Handler)}

	s.handlers[models.StepKindTrigger] = Handler{
		Execute:     executeNoop,
		NextActions: nextDefault,
	}
	s.handlers[models.StepKindConditional] = Handler{
		Execute:     executeConditional,
		NextActions: nextConditional,
		Validate:    validateConditional,
	}
	s.handlers[models.StepKindSplit] = Handler{
		Execute:     executeSplit,
		NextActions: nextSplit,
		Validate:    validateSplit,
	}
	s.handlers[models.StepKindPause] = Handler{
		Execute:     executePause,
		NextActions: nextDefault,
	}

	return s
}

// Resolve returns the handler for a node kind. Action kinds share one
// handler; branch markers, paths and modifiers are structural and are never
// addressed by an action record.
func (s *Set) Resolve(kind models.StepKind) (Handler, error) {
	if kind.IsActionKind() {
		return Handler{
			Execute:     executeAction,
			NextActions: nextAction,
			Validate:    validateAction,
		}, nil
	}

	handler, ok := s.handlers[kind]
	if !ok {
		return Handler{}, fmt.Errorf("step kind '%s' is not executable", kind)
	}

	return handler, nil
}

// Messages validates every node of a graph and returns the configuration
// problems keyed by node id. These are editor advisories, not execution
// failures.
func (s *Set) Messages(g *graph.Graph) map[string][]string {
	problems := make(map[string][]string)

	for i := 0; ; i++ {
		node := g.Node(i)
		if node == nil {
			break
		}

		var handler Handler
		if node.Kind.IsActionKind() {
			handler = Handler{Validate: validateAction}
		} else {
			handler = s.handlers[node.Kind]
		}

		if handler.Validate == nil {
			continue
		}

		if messages := handler.Validate(g, node); len(messages) > 0 {
			problems[node.ID] = messages
		}
	}

	return problems
}

// Successor finds a node's tree-successor: the next non-modifier sibling, or
// the successor of the nearest ancestor that has one. Climbing stops at path
// and split boundaries (chain end within a branch; the join handles
// continuation) and skips through conditional branch markers to the
// conditional's own successor.
func Successor(g *graph.Graph, node *graph.Node) *graph.Node {
	for sibling := g.Node(node.NextSibling); sibling != nil; sibling = g.Node(sibling.NextSibling) {
		if !sibling.Kind.IsModifier() {
			return sibling
		}
	}

	parent := g.Node(node.Parent)
	if parent == nil {
		return nil
	}

	switch parent.Kind {
	case models.StepKindPath, models.StepKindSplit:
		return nil
	case models.StepKindBranchYes, models.StepKindBranchNo:
		conditional := g.Node(parent.Parent)
		if conditional == nil {
			return nil
		}

		return Successor(g, conditional)
	default:
		return Successor(g, parent)
	}
}

// NewAction builds a fresh pending action addressing the given node,
// chained after previous and carrying over the enclosing parent.
func NewAction(instanceID string, node *graph.Node, previous *models.Action, parentID *string) *models.Action {
	action := &models.Action{
		ID:         uuid.New().String(),
		InstanceID: instanceID,
		PluginPtr:  node.ID,
		State:      models.ActionStatePending,
		ParentID:   parentID,
		CreatedAt:  time.Now().UTC(),
	}

	if previous != nil {
		id := previous.ID
		action.PreviousID = &id
	}

	return action
}

func executeNoop(ctx context.Context, env *Env, node *graph.Node, action *models.Action) (Outcome, error) {
	return Outcome{State: models.ActionStateCompleted}, nil
}

// nextDefault is the depth-first continuation: one successor action at the
// node's tree-successor, or none at the end of a chain.
func nextDefault(ctx context.Context, env *Env, node *graph.Node, action *models.Action) ([]*models.Action, error) {
	next := Successor(env.Graph, node)
	if next == nil {
		return nil, nil
	}

	return []*models.Action{NewAction(action.InstanceID, next, action, action.ParentID)}, nil
}
