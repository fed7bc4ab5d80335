// Package engine drives automation execution: the launcher converts trigger
// events into run instances, the runner executes one action per invocation
// and computes the successors to schedule, and the sweeper re-enqueues
// actions whose pause deadline passed and clears aged history.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chainpress/chainpress/pkg/eventbus"
	"github.com/chainpress/chainpress/pkg/events"
	"github.com/chainpress/chainpress/pkg/graph"
	"github.com/chainpress/chainpress/pkg/models"
	"github.com/chainpress/chainpress/pkg/otelhelper"
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/chainpress/chainpress/pkg/steps"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// LaunchOptions controls how a trigger launch behaves.
type LaunchOptions struct {
	// Start enqueues the first action for execution. When false the run is
	// created dormant, for the editor's inspect-before-run flow.
	Start bool

	// Testing marks the instance as an editor dry-run. The sweeper skips
	// testing instances.
	Testing bool
}

// Launcher converts an external trigger event into a run: it validates the
// payload against the trigger definition, creates the instance together with
// its first action atomically, and schedules that action.
type Launcher struct {
	store    persistence.Persistence
	registry *registry.Registry
	bus      eventbus.EventPublisher
	logger   *slog.Logger
	tracer   trace.Tracer
}

func NewLauncher(
	store persistence.Persistence,
	reg *registry.Registry,
	bus eventbus.EventPublisher,
	logger *slog.Logger,
	tracer trace.Tracer,
) *Launcher {
	return &Launcher{
		store:    store,
		registry: reg,
		bus:      bus,
		logger:   logger.With("module", "launcher"),
		tracer:   tracer,
	}
}

// Launch starts a run for the given trigger. The payload is validated against
// the trigger definition's schema before anything is persisted; the instance
// and its first action are created atomically, so a crash between them cannot
// leave a run without an entry point.
func (l *Launcher) Launch(
	ctx context.Context,
	trigger *models.Trigger,
	data map[string]any,
	opts LaunchOptions,
) (*models.Instance, error) {
	ctx, span := otelhelper.StartSpan(ctx, l.tracer, "launcher.launch",
		attribute.String(otelhelper.TriggerIDKey, trigger.ID),
		attribute.String(otelhelper.TriggerTypeKey, trigger.Type),
		attribute.String(otelhelper.ContentIDKey, trigger.ContentID),
	)
	defer span.End()

	logger := l.logger.With("trigger_id", trigger.ID, "trigger_type", trigger.Type)

	definition := l.registry.Trigger(trigger.Type)
	if definition == nil {
		err := fmt.Errorf("trigger type '%s' not registered", trigger.Type)
		otelhelper.SetError(span, err)

		return nil, err
	}

	if _, err := definition.ValidatePayload(data, true); err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	records, err := l.store.StepsByContent(ctx, trigger.ContentID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("loading steps for content %s: %w", trigger.ContentID, err)
	}

	g := graph.Build(records)

	first := g.First(trigger.Slot)
	if first == nil {
		err := fmt.Errorf("trigger %s: slot '%s' has no steps", trigger.ID, trigger.Slot)
		otelhelper.SetError(span, err)

		return nil, err
	}

	now := time.Now().UTC()
	instance := &models.Instance{
		ID:          uuid.New().String(),
		ContentID:   trigger.ContentID,
		InitialData: copyData(data),
		Data:        copyData(data),
		Testing:     opts.Testing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	instance.Key = instance.ComputeKey()

	action := steps.NewAction(instance.ID, first, nil, nil)

	if err := l.store.CreateRun(ctx, instance, action); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("creating run for trigger %s: %w", trigger.ID, err)
	}

	span.SetAttributes(
		attribute.String(otelhelper.InstanceIDKey, instance.ID),
		attribute.String(otelhelper.ActionIDKey, action.ID),
	)
	logger.InfoContext(ctx, "Launched instance",
		"instance_id", instance.ID, "first_action_id", action.ID, "start", opts.Start)

	launched := events.InstanceLaunched{
		BaseEvent: events.NewBaseEvent(events.InstanceLaunchedEvent, instance.ID),
		TriggerID: trigger.ID,
		Data:      data,
	}
	if err := l.bus.Publish(ctx, instance.ID, launched); err != nil {
		logger.ErrorContext(ctx, "Failed to publish instance launched event", "error", err)
	}

	if !opts.Start {
		return instance, nil
	}

	activation := events.ActionActivation{
		BaseEvent: events.NewBaseEvent(events.ActionActivationEvent, instance.ID),
		ActionID:  action.ID,
	}
	if err := l.bus.Publish(ctx, instance.ID, activation); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("scheduling first action of instance %s: %w", instance.ID, err)
	}

	return instance, nil
}

// LaunchByTriggerID resolves a trigger by id and starts a run with the given
// payload. This is the entry point for intake sources and for chains that
// jump into another automation.
func (l *Launcher) LaunchByTriggerID(ctx context.Context, triggerID string, data map[string]any) error {
	trigger, err := l.store.TriggerByID(ctx, triggerID)
	if err != nil {
		return fmt.Errorf("resolving trigger %s: %w", triggerID, err)
	}

	_, err = l.Launch(ctx, trigger, data, LaunchOptions{Start: true})

	return err
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}

	return out
}
