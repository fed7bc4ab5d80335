package registry

import (
	"context"
	"log/slog"

	"github.com/chainpress/chainpress/pkg/models"
)

// Action is a unit of user-facing business logic executed by an action step.
// Implementations must tolerate duplicate invocation: at-most-once execution
// is only approximately guaranteed by the scheduler's state re-validation.
type Action interface {
	Execute(ctx context.Context, actionCtx models.ActionContext, logger *slog.Logger) (map[string]any, error)
}

// ActionFactory builds an Action from a step node's stored configuration.
type ActionFactory func(config map[string]any) (Action, error)
