package steps

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/chainpress/chainpress/pkg/expression"
	"github.com/chainpress/chainpress/pkg/graph"
	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/template"
	"github.com/expr-lang/expr"
)

// ErrMisconfigured indicates a step reached execution with a configuration
// problem the editor had flagged, e.g. a conditional missing the branch it
// routed to.
var ErrMisconfigured = errors.New("step misconfigured")

// executeConditional evaluates the stored condition against the instance's
// data and records which branch matched. Routing itself happens in
// nextConditional through the ordinary tree-successor mechanism applied to
// the matched branch's first child.
func executeConditional(ctx context.Context, env *Env, node *graph.Node, action *models.Action) (Outcome, error) {
	condition, _ := node.Config["condition"].(string)
	if condition == "" {
		return Outcome{}, fmt.Errorf("%w: conditional %s has no condition", ErrMisconfigured, node.ID)
	}

	matched, err := EvalCondition(condition, env.Instance.Data)
	if err != nil {
		return Outcome{}, fmt.Errorf("conditional %s: %w", node.ID, err)
	}

	branch := models.StepKindBranchNo
	if matched {
		branch = models.StepKindBranchYes
	}

	if findChild(env.Graph, node, branch) == nil {
		return Outcome{}, fmt.Errorf("%w: conditional %s has no %s branch", ErrMisconfigured, node.ID, branch)
	}

	return Outcome{
		State:  models.ActionStateCompleted,
		Output: map[string]any{"condition": matched, "branch": string(branch)},
	}, nil
}

func nextConditional(ctx context.Context, env *Env, node *graph.Node, action *models.Action) ([]*models.Action, error) {
	branchKind := models.StepKindBranchNo
	if matched, _ := action.Result["condition"].(bool); matched {
		branchKind = models.StepKindBranchYes
	}

	branch := findChild(env.Graph, node, branchKind)
	if branch == nil {
		return nil, fmt.Errorf("%w: conditional %s has no %s branch", ErrMisconfigured, node.ID, branchKind)
	}

	// An empty branch falls through to whatever follows the conditional.
	target := firstChild(env.Graph, branch)
	if target == nil {
		target = Successor(env.Graph, node)
	}

	if target == nil {
		return nil, nil
	}

	return []*models.Action{NewAction(action.InstanceID, target, action, action.ParentID)}, nil
}

// validateConditional reports branch-count problems: exactly one "yes" and
// one "no" branch are required.
func validateConditional(g *graph.Graph, node *graph.Node) []string {
	var messages []string

	for _, kind := range []models.StepKind{models.StepKindBranchYes, models.StepKindBranchNo} {
		count := 0

		for _, child := range g.ChildNodes(node) {
			if child.Kind == kind {
				count++
			}
		}

		switch {
		case count == 0:
			messages = append(messages, fmt.Sprintf("conditional has no %s branch", kind))
		case count > 1:
			messages = append(messages, fmt.Sprintf("conditional has %d %s branches, expected one", count, kind))
		}
	}

	return messages
}

var soloPlaceholderRe = regexp.MustCompile(`^\{\{\s*[a-zA-Z0-9_.]+\s*\}\}$`)

// EvalCondition renders {{ }} placeholders in the condition against the run
// data, then evaluates the remainder as a boolean expression with the data as
// environment. A condition that renders to a plain value, or that is a bare
// literal or dotted path, is tested for truthiness instead of parsed as an
// expression.
func EvalCondition(condition string, data map[string]any) (bool, error) {
	rendered := template.Render(condition, data)

	if soloPlaceholderRe.MatchString(strings.TrimSpace(condition)) {
		return truthy(rendered), nil
	}

	text, ok := rendered.(string)
	if !ok {
		return truthy(rendered), nil
	}

	if value, err := expression.Resolve(text, data); err == nil {
		return truthy(value), nil
	}

	result, err := expr.Eval(text, data)
	if err != nil {
		return false, fmt.Errorf("condition %q: %w", condition, err)
	}

	return truthy(result), nil
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != "" && v != "false" && v != "False"
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}

func findChild(g *graph.Graph, node *graph.Node, kind models.StepKind) *graph.Node {
	for _, child := range g.ChildNodes(node) {
		if child.Kind == kind {
			return child
		}
	}

	return nil
}

func firstChild(g *graph.Graph, node *graph.Node) *graph.Node {
	children := node.Children
	if len(children) == 0 {
		return nil
	}

	return g.Node(children[0])
}
