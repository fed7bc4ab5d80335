package steps

import (
	"context"
	"fmt"

	"github.com/chainpress/chainpress/pkg/graph"
	"github.com/chainpress/chainpress/pkg/models"
)

// executeSplit drives the fan-out/join lifecycle of a split action.
//
// On the first visit no child actions exist yet; the split stays RUNNING and
// nextSplit spawns one child per non-empty path. On re-entry it re-tests the
// join condition: COMPLETED once every spawned action under it finished
// successfully. A failed child blocks the join permanently; the split then
// stays RUNNING and never completes.
func executeSplit(ctx context.Context, env *Env, node *graph.Node, action *models.Action) (Outcome, error) {
	children, err := env.Store.ChildActions(ctx, action.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("split %s: loading children: %w", node.ID, err)
	}

	if len(children) == 0 {
		return Outcome{State: models.ActionStateRunning}, nil
	}

	for _, child := range children {
		if !child.IsFinished() || child.State != models.ActionStateCompleted {
			return Outcome{State: models.ActionStateRunning}, nil
		}
	}

	ends, err := pathEnds(ctx, env, children)
	if err != nil {
		return Outcome{}, fmt.Errorf("split %s: %w", node.ID, err)
	}

	return Outcome{
		State:   models.ActionStateCompleted,
		Message: models.MessageJoined,
		Output:  map[string]any{"joined": ends},
	}, nil
}

// pathEnds returns the ids of the actions each path converged on: the
// finished children that produced no successor.
func pathEnds(ctx context.Context, env *Env, children []*models.Action) ([]any, error) {
	ends := make([]any, 0, len(children))

	for _, child := range children {
		hasNext, err := env.Store.HasSuccessor(ctx, child.ID)
		if err != nil {
			return nil, err
		}

		if !hasNext {
			ends = append(ends, child.ID)
		}
	}

	return ends, nil
}

// nextSplit fans out on the first visit and resumes the surrounding chain
// once the join completed.
//
// Fan-out creates one child action per path holding at least one step,
// addressing the path's first inner node, with both previous and parent set
// to the split action. A path with no nested steps contributes no action and
// is excluded from the join set.
func nextSplit(ctx context.Context, env *Env, node *graph.Node, action *models.Action) ([]*models.Action, error) {
	if action.State == models.ActionStateCompleted {
		return nextDefault(ctx, env, node, action)
	}

	existing, err := env.Store.ChildActions(ctx, action.ID)
	if err != nil {
		return nil, fmt.Errorf("split %s: loading children: %w", node.ID, err)
	}

	if len(existing) > 0 {
		// Waiting on the join; children drive re-evaluation.
		return nil, nil
	}

	parentID := action.ID

	var spawned []*models.Action

	for _, path := range env.Graph.ChildNodes(node) {
		if path.Kind != models.StepKindPath {
			continue
		}

		head := firstChild(env.Graph, path)
		if head == nil {
			continue
		}

		spawned = append(spawned, NewAction(action.InstanceID, head, action, &parentID))
	}

	return spawned, nil
}

// validateSplit reports a split that could never spawn a branch.
func validateSplit(g *graph.Graph, node *graph.Node) []string {
	nonEmpty := 0

	for _, child := range g.ChildNodes(node) {
		if child.Kind == models.StepKindPath && len(child.Children) > 0 {
			nonEmpty++
		}
	}

	if nonEmpty == 0 {
		return []string{"split has no path with steps"}
	}

	return nil
}
