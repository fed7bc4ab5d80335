// Package transform provides the transform action, which reshapes the run's
// accumulated data through templated expressions and stores the result under
// a configurable key.
package transform

import (
	"context"
	"errors"
	"log/slog"

	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/chainpress/chainpress/pkg/template"
)

// ErrExpressionMissing is returned when the configuration has no expression.
var ErrExpressionMissing = errors.New("missing 'expression' in configuration")

type Action struct {
	expression string
	output     string
}

func NewAction(config map[string]any) (*Action, error) {
	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, ErrExpressionMissing
	}

	output, _ := config["output"].(string)
	if output == "" {
		output = "transformed"
	}

	return &Action{expression: expression, output: output}, nil
}

// Factory builds the action from a step node's configuration.
func Factory(config map[string]any) (registry.Action, error) {
	return NewAction(config)
}

func (a *Action) Execute(ctx context.Context, actionCtx models.ActionContext, logger *slog.Logger) (map[string]any, error) {
	result := template.Render(a.expression, actionCtx.Data)

	logger.DebugContext(ctx, "Transform completed", "output_key", a.output)

	return map[string]any{a.output: result}, nil
}
