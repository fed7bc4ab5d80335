// Package log provides the log action, which writes a templated message to
// the structured log of the worker executing the step.
package log

import (
	"context"
	"log/slog"

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/chainpress/chainpress/pkg/template"
)

type Action struct {
	message string
	level   string
}

func NewAction(config map[string]any) *Action {
	message, _ := config["message"].(string)

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &Action{message: message, level: level}
}

// Factory builds the action from a step node's configuration.
func Factory(config map[string]any) (registry.Action, error) {
	return NewAction(config), nil
}

func (a *Action) Execute(ctx context.Context, actionCtx models.ActionContext, logger *slog.Logger) (map[string]any, error) {
	message := template.RenderString(a.message, actionCtx.Data)

	switch a.level {
	case "debug":
		logger.DebugContext(ctx, message)
	case "warn", "warning":
		logger.WarnContext(ctx, message)
	case "error":
		logger.ErrorContext(ctx, message)
	default:
		logger.InfoContext(ctx, message)
	}

	return map[string]any{"logged": message}, nil
}
