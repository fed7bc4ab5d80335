package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chainpress/chainpress/pkg/engine"
	"github.com/chainpress/chainpress/pkg/eventbus"
	"github.com/chainpress/chainpress/pkg/events"
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// SweepManager runs the engine sweeper on a cron schedule. The sweep tick
// re-enqueues due actions, the retention tick trims aged run history.
type SweepManager struct {
	store             persistence.Persistence
	eventBus          eventbus.EventBus
	logger            *slog.Logger
	sweeper           *engine.Sweeper
	cron              *cron.Cron
	sweepSchedule     string
	retentionSchedule string
	retention         time.Duration
}

func NewSweepManager(
	store persistence.Persistence,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	sweepSchedule string,
	retentionSchedule string,
	retentionDays int,
) *SweepManager {
	return &SweepManager{
		store:             store,
		eventBus:          eventBus,
		logger:            logger,
		sweeper:           engine.NewSweeper(store, logger),
		sweepSchedule:     sweepSchedule,
		retentionSchedule: retentionSchedule,
		retention:         time.Duration(retentionDays) * 24 * time.Hour,
	}
}

func (m *SweepManager) Start(ctx context.Context) error {
	m.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := m.cron.AddFunc(m.sweepSchedule, func() {
		m.sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", m.sweepSchedule, err)
	}

	_, err = m.cron.AddFunc(m.retentionSchedule, func() {
		m.trimHistory(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", m.retentionSchedule, err)
	}

	m.cron.Start()
	m.logger.InfoContext(ctx, "Sweeper started",
		"sweep_schedule", m.sweepSchedule,
		"retention_schedule", m.retentionSchedule,
		"retention", m.retention)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	m.logger.InfoContext(ctx, "Shutting down sweeper")
	<-m.cron.Stop().Done()

	return nil
}

func (m *SweepManager) sweep(ctx context.Context) {
	enqueues, err := m.sweeper.Sweep(ctx, time.Now().UTC())
	if err != nil {
		m.logger.ErrorContext(ctx, "Sweep failed", "error", err)

		return
	}

	for _, enqueue := range enqueues {
		activation := events.ActionActivation{
			BaseEvent: events.NewBaseEvent(events.ActionActivationEvent, enqueue.InstanceID),
			ActionID:  enqueue.ActionID,
		}

		err := m.eventBus.Publish(ctx, enqueue.InstanceID, activation)
		if err != nil {
			m.logger.ErrorContext(ctx, "Failed to publish action activation",
				"action_id", enqueue.ActionID, "error", err)
		}
	}
}

func (m *SweepManager) trimHistory(ctx context.Context) {
	_, err := m.sweeper.DeleteHistory(ctx, m.retention)
	if err != nil {
		m.logger.ErrorContext(ctx, "History retention sweep failed", "error", err)
	}
}
