package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/chainpress/chainpress/pkg/graph"
	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/otelhelper"
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/chainpress/chainpress/pkg/steps"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Enqueue asks the caller to schedule one action for execution. Data carries
// the predecessor's output as the successor's input.
type Enqueue struct {
	ActionID   string
	InstanceID string
	Data       map[string]any
}

// Result is the outcome of one execution unit.
type Result struct {
	// Enqueues lists the follow-up actions to schedule. Empty in
	// single-step mode even when successors were created.
	Enqueues []Enqueue

	// InstanceFinished reports that this unit was the run's last open
	// action: everything reachable has reached a terminal state.
	InstanceFinished bool

	// Instance is the run after this unit's data merge, for observers.
	Instance *models.Instance
}

// Runner executes exactly one action per invocation.
//
// Each unit is independent: it claims its action, rebuilds the step graph
// from storage, executes the node's handler, persists the outcome, and
// returns the successor actions to schedule. Because no state survives
// between units, any worker can pick up any activation, and a failed unit
// poisons nothing beyond its own chain.
type Runner struct {
	store    persistence.Persistence
	registry *registry.Registry
	set      *steps.Set
	launch   steps.LaunchFunc
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewRunner(
	store persistence.Persistence,
	reg *registry.Registry,
	launch steps.LaunchFunc,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Runner {
	return &Runner{
		store:    store,
		registry: reg,
		set:      steps.NewSet(),
		launch:   launch,
		logger:   logger.With("module", "runner"),
		tracer:   tracer,
	}
}

// Run executes the action with the given id.
//
// A claim that does not succeed is not an error: another worker holds the
// action, it already finished, or it is paused; the unit simply yields. With
// singleStep set, successors are persisted but not enqueued, so the editor
// can walk a run one action at a time.
func (r *Runner) Run(ctx context.Context, actionID string, input map[string]any, singleStep bool) (Result, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runner.run",
		attribute.String(otelhelper.ActionIDKey, actionID),
	)
	defer span.End()

	logger := r.logger.With("action_id", actionID)

	current, err := r.store.ActionByID(ctx, actionID)
	if err != nil {
		otelhelper.SetError(span, err)

		return Result{}, fmt.Errorf("loading action %s: %w", actionID, err)
	}

	action, ok, err := r.store.ClaimAction(ctx, actionID, current.PluginPtr)
	if err != nil {
		otelhelper.SetError(span, err)

		return Result{}, fmt.Errorf("claiming action %s: %w", actionID, err)
	}

	if !ok {
		logger.DebugContext(ctx, "Action not claimable, skipping")

		return Result{}, nil
	}

	instance, err := r.store.InstanceByID(ctx, action.InstanceID)
	if err != nil {
		otelhelper.SetError(span, err)
		r.releaseClaim(ctx, action)

		return Result{}, fmt.Errorf("loading instance %s: %w", action.InstanceID, err)
	}

	records, err := r.store.StepsByContent(ctx, instance.ContentID)
	if err != nil {
		otelhelper.SetError(span, err)
		r.releaseClaim(ctx, action)

		return Result{}, fmt.Errorf("loading steps for content %s: %w", instance.ContentID, err)
	}

	g := graph.Build(records)

	node := g.ByID(action.PluginPtr)
	if node == nil {
		err := fmt.Errorf("step %s no longer exists in content %s", action.PluginPtr, instance.ContentID)
		otelhelper.SetError(span, err)

		return Result{}, r.failAction(ctx, action, err)
	}

	span.SetAttributes(
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeKindKey, string(node.Kind)),
	)
	logger = logger.With("instance_id", instance.ID, "node_id", node.ID, "node_kind", node.Kind)

	if len(input) > 0 {
		instance.MergeData(input)
		instance.UpdatedAt = time.Now().UTC()

		if err := r.store.SaveInstance(ctx, instance); err != nil {
			otelhelper.SetError(span, err)
			r.releaseClaim(ctx, action)

			return Result{}, fmt.Errorf("merging input into instance %s: %w", instance.ID, err)
		}
	}

	env := &steps.Env{
		Store:    r.store,
		Registry: r.registry,
		Graph:    g,
		Instance: instance,
		Logger:   logger,
		Launch:   r.launch,
	}

	handler, err := r.set.Resolve(node.Kind)
	if err != nil {
		otelhelper.SetError(span, err)

		return Result{}, r.failAction(ctx, action, err)
	}

	outcome, err := handler.Execute(ctx, env, node, action)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Step execution failed", "error", err)

		return Result{}, r.failAction(ctx, action, err)
	}

	if err := r.persistOutcome(ctx, env, action, outcome); err != nil {
		otelhelper.SetError(span, err)

		return Result{}, err
	}

	logger.InfoContext(ctx, "Step executed", "state", action.State)

	successors, err := r.successors(ctx, env, handler, node, action)
	if err != nil {
		otelhelper.SetError(span, err)

		return Result{}, err
	}

	result := Result{Instance: instance}

	for _, successor := range successors {
		if err := r.store.CreateAction(ctx, successor); err != nil {
			otelhelper.SetError(span, err)

			return Result{}, fmt.Errorf("creating successor action: %w", err)
		}

		if !singleStep {
			result.Enqueues = append(result.Enqueues, Enqueue{
				ActionID:   successor.ID,
				InstanceID: instance.ID,
				Data:       outcome.Output,
			})
		}
	}

	if len(successors) == 0 && action.IsFinished() {
		reenqueue, finished, err := r.converge(ctx, action)
		if err != nil {
			otelhelper.SetError(span, err)

			return Result{}, err
		}

		if reenqueue != nil && !singleStep {
			result.Enqueues = append(result.Enqueues, Enqueue{
				ActionID:   *reenqueue,
				InstanceID: instance.ID,
				Data:       outcome.Output,
			})
		}

		result.InstanceFinished = finished
	}

	return result, nil
}

// persistOutcome applies the handler's outcome to the action and the
// instance's accumulated data, and releases the claim.
func (r *Runner) persistOutcome(ctx context.Context, env *steps.Env, action *models.Action, outcome steps.Outcome) error {
	action.State = outcome.State
	action.Locked = 0
	action.ClaimedAt = nil
	action.MergeResult(outcome.Output)

	if outcome.Message != "" {
		action.Message = outcome.Message
	}

	if outcome.PausedUntil != nil {
		action.PausedUntil = outcome.PausedUntil
	}

	if outcome.State == models.ActionStateCompleted || outcome.State == models.ActionStateFailed {
		now := time.Now().UTC()
		action.Finished = &now
	}

	if err := r.store.SaveAction(ctx, action); err != nil {
		return fmt.Errorf("saving action %s: %w", action.ID, err)
	}

	if len(outcome.Output) > 0 {
		env.Instance.MergeData(outcome.Output)
		env.Instance.UpdatedAt = time.Now().UTC()

		if err := r.store.SaveInstance(ctx, env.Instance); err != nil {
			return fmt.Errorf("saving instance %s: %w", env.Instance.ID, err)
		}
	}

	return nil
}

// successors asks the handler for follow-up actions. Completed steps always
// continue; a split additionally fans out while still RUNNING.
func (r *Runner) successors(
	ctx context.Context,
	env *steps.Env,
	handler steps.Handler,
	node *graph.Node,
	action *models.Action,
) ([]*models.Action, error) {
	completed := action.State == models.ActionStateCompleted
	fanningOut := action.State == models.ActionStateRunning && node.Kind == models.StepKindSplit

	if !completed && !fanningOut {
		return nil, nil
	}

	next, err := handler.NextActions(ctx, env, node, action)
	if err != nil {
		return nil, r.failAction(ctx, action, err)
	}

	return next, nil
}

// converge handles a finished action with no successors: a chain inside a
// split re-enqueues the enclosing split action so the join condition is
// re-evaluated; a top-level chain end checks whether the whole run finished.
func (r *Runner) converge(ctx context.Context, action *models.Action) (*string, bool, error) {
	if action.ParentID != nil {
		parent, err := r.store.ActionByID(ctx, *action.ParentID)
		if err != nil {
			return nil, false, fmt.Errorf("loading parent action %s: %w", *action.ParentID, err)
		}

		if !parent.IsFinished() {
			return action.ParentID, false, nil
		}

		return nil, false, nil
	}

	all, err := r.store.ActionsByInstance(ctx, action.InstanceID)
	if err != nil {
		return nil, false, fmt.Errorf("loading actions of instance %s: %w", action.InstanceID, err)
	}

	for _, other := range all {
		if !other.IsFinished() {
			return nil, false, nil
		}
	}

	return nil, true, nil
}

// releaseClaim returns a claimed action to the pending pool after an error
// that prevented execution, so a later activation or sweep can pick it up
// again. Best effort: a store that fails the release will also expire the
// claim by lease.
func (r *Runner) releaseClaim(ctx context.Context, action *models.Action) {
	action.State = models.ActionStatePending
	action.Locked = 0
	action.ClaimedAt = nil

	if err := r.store.SaveAction(ctx, action); err != nil {
		r.logger.ErrorContext(ctx, "Failed to release action claim",
			"action_id", action.ID, "error", err)
	}
}

// failAction marks the action FAILED with the error message and the stack at
// the failure point, releasing the claim. The returned error is the original
// execution error so callers can report it.
func (r *Runner) failAction(ctx context.Context, action *models.Action, cause error) error {
	now := time.Now().UTC()
	action.State = models.ActionStateFailed
	action.Locked = 0
	action.ClaimedAt = nil
	action.Message = cause.Error()
	action.Finished = &now
	action.MergeResult(map[string]any{
		"error": cause.Error(),
		"trace": string(debug.Stack()),
	})

	if err := r.store.SaveAction(ctx, action); err != nil {
		r.logger.ErrorContext(ctx, "Failed to persist action failure",
			"action_id", action.ID, "error", err, "cause", cause)
	}

	return cause
}
