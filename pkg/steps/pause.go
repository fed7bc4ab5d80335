package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/chainpress/chainpress/pkg/graph"
	"github.com/chainpress/chainpress/pkg/models"
)

const defaultPauseDuration = time.Hour

// executePause suspends the chain until a deadline. On the first visit it
// sets paused_until from the configured duration and reports WAITING; the
// periodic sweep re-enqueues the action once the deadline passed, at which
// point it completes.
func executePause(ctx context.Context, env *Env, node *graph.Node, action *models.Action) (Outcome, error) {
	now := time.Now().UTC()

	if action.PausedUntil == nil {
		duration, err := pauseDuration(node)
		if err != nil {
			return Outcome{}, err
		}

		deadline := now.Add(duration)

		return Outcome{State: models.ActionStateWaiting, PausedUntil: &deadline}, nil
	}

	if now.Before(*action.PausedUntil) {
		return Outcome{State: models.ActionStateWaiting, PausedUntil: action.PausedUntil}, nil
	}

	return Outcome{State: models.ActionStateCompleted}, nil
}

func pauseDuration(node *graph.Node) (time.Duration, error) {
	raw, ok := node.Config["duration"]
	if !ok {
		return defaultPauseDuration, nil
	}

	switch v := raw.(type) {
	case string:
		duration, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("%w: pause %s: %v", ErrMisconfigured, node.ID, err)
		}

		return duration, nil
	case float64:
		return time.Duration(v) * time.Second, nil
	case int:
		return time.Duration(v) * time.Second, nil
	default:
		return 0, fmt.Errorf("%w: pause %s: invalid duration %T", ErrMisconfigured, node.ID, raw)
	}
}
