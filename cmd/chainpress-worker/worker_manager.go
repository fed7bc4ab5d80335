package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainpress/chainpress/pkg/engine"
	"github.com/chainpress/chainpress/pkg/eventbus"
	"github.com/chainpress/chainpress/pkg/events"
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/chainpress/chainpress/pkg/registry"
	"go.opentelemetry.io/otel/trace"
)

// WorkerManager consumes action activations from the event bus and executes
// them through the runner, publishing the follow-up activations the runner
// computed.
type WorkerManager struct {
	id       string
	logger   *slog.Logger
	store    persistence.Persistence
	registry *registry.Registry
	eventBus eventbus.EventBus
	launcher *engine.Launcher
	runner   *engine.Runner
}

func NewWorkerManager(
	id string,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	reg *registry.Registry,
	tracer trace.Tracer,
) *WorkerManager {
	logger = logger.With("module", "chainpress-worker", "worker_id", id)

	launcher := engine.NewLauncher(store, reg, eventBus, logger, tracer)
	runner := engine.NewRunner(store, reg, launcher.LaunchByTriggerID, logger, tracer)

	return &WorkerManager{
		id:       id,
		logger:   logger,
		store:    store,
		registry: reg,
		eventBus: eventBus,
		launcher: launcher,
		runner:   runner,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.ActionActivationEvent, w.handleActionActivation)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleActionActivation(ctx context.Context, event any) error {
	activation, ok := event.(*events.ActionActivation)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ActionActivation")

		return nil
	}

	logger := w.logger.With(
		"action_id", activation.ActionID,
		"instance_id", activation.InstanceID,
		"event_id", activation.ID,
	)
	logger.InfoContext(ctx, "Processing action activation")

	result, err := w.runner.Run(ctx, activation.ActionID, activation.Data, activation.SingleStep)
	if err != nil {
		logger.ErrorContext(ctx, "Action execution failed", "error", err)

		failed := events.ActionFailed{
			BaseEvent: events.NewBaseEvent(events.ActionFailedEvent, activation.InstanceID),
			ActionID:  activation.ActionID,
			Error:     err.Error(),
		}
		failed.WorkerID = w.id

		publishErr := w.eventBus.Publish(ctx, activation.InstanceID, failed)
		if publishErr != nil {
			logger.ErrorContext(ctx, "Failed to publish action failed event", "error", publishErr)
		}

		// The failure is persisted on the action; the activation itself
		// is consumed.
		return nil
	}

	for _, enqueue := range result.Enqueues {
		next := events.ActionActivation{
			BaseEvent: events.NewBaseEvent(events.ActionActivationEvent, enqueue.InstanceID),
			ActionID:  enqueue.ActionID,
			Data:      enqueue.Data,
		}
		next.WorkerID = w.id

		publishErr := w.eventBus.Publish(ctx, enqueue.InstanceID, next)
		if publishErr != nil {
			logger.ErrorContext(ctx, "Failed to publish action activation", "error", publishErr)

			return publishErr
		}
	}

	if result.InstanceFinished && result.Instance != nil {
		finished := events.InstanceFinished{
			BaseEvent: events.NewBaseEvent(events.InstanceFinishedEvent, result.Instance.ID),
			Duration:  result.Instance.UpdatedAt.Sub(result.Instance.CreatedAt),
		}
		finished.WorkerID = w.id

		publishErr := w.eventBus.Publish(ctx, result.Instance.ID, finished)
		if publishErr != nil {
			logger.ErrorContext(ctx, "Failed to publish instance finished event", "error", publishErr)
		}
	}

	return nil
}
