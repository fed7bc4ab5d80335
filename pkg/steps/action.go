package steps

import (
	"context"
	"fmt"

	"github.com/chainpress/chainpress/pkg/graph"
	"github.com/chainpress/chainpress/pkg/models"
)

// executeAction delegates to the business action registered under the node's
// action type. The step completes with whatever output the action returned;
// an error from the action fails the step.
func executeAction(ctx context.Context, env *Env, node *graph.Node, action *models.Action) (Outcome, error) {
	actionType := node.Kind.ActionType()

	impl, err := env.Registry.CreateAction(actionType, node.Config)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}

	actionCtx := models.ActionContext{
		InstanceID:  env.Instance.ID,
		ActionID:    action.ID,
		ContentID:   env.Instance.ContentID,
		NodeID:      node.ID,
		Data:        env.Instance.Data,
		InitialData: env.Instance.InitialData,
		Config:      node.Config,
	}

	output, err := impl.Execute(ctx, actionCtx, env.Logger.With("action_type", actionType, "node_id", node.ID))
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{State: models.ActionStateCompleted, Output: output}, nil
}

// nextAction applies the node's attached modifiers before falling back to the
// tree-successor: an end-modifier truncates the chain, a next-modifier jumps
// to another automation trigger instead of continuing locally.
func nextAction(ctx context.Context, env *Env, node *graph.Node, action *models.Action) ([]*models.Action, error) {
	for _, child := range env.Graph.ChildNodes(node) {
		switch child.Kind {
		case models.StepKindModifierEnd:
			return nil, nil
		case models.StepKindModifierNex:
			return nil, launchNext(ctx, env, child)
		}
	}

	return nextDefault(ctx, env, node, action)
}

func launchNext(ctx context.Context, env *Env, modifier *graph.Node) error {
	triggerID, _ := modifier.Config["trigger_id"].(string)
	if triggerID == "" {
		return fmt.Errorf("%w: next-modifier %s has no trigger_id", ErrMisconfigured, modifier.ID)
	}

	if env.Launch == nil {
		return fmt.Errorf("next-modifier %s: cross-automation launch unavailable", modifier.ID)
	}

	return env.Launch(ctx, triggerID, env.Instance.Data)
}

// validateAction flags a next-modifier without a target trigger.
func validateAction(g *graph.Graph, node *graph.Node) []string {
	var messages []string

	for _, child := range g.ChildNodes(node) {
		if child.Kind != models.StepKindModifierNex {
			continue
		}

		if id, _ := child.Config["trigger_id"].(string); id == "" {
			messages = append(messages, "next-modifier has no trigger_id configured")
		}
	}

	return messages
}
