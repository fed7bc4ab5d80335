package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainpress/chainpress/pkg/engine"
	"github.com/chainpress/chainpress/pkg/eventbus"
	"github.com/chainpress/chainpress/pkg/persistence"
	"github.com/chainpress/chainpress/pkg/registry"
	"github.com/chainpress/chainpress/pkg/sources/queue"
	"go.opentelemetry.io/otel/trace"
)

// TriggerManager bridges the external launch queue and the engine: every
// message popped from the Redis list becomes an instance launch.
type TriggerManager struct {
	logger   *slog.Logger
	launcher *engine.Launcher
	source   *queue.Source
}

func NewTriggerManager(
	store persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	logger *slog.Logger,
	tracer trace.Tracer,
	queueName string,
	connection map[string]string,
) (*TriggerManager, error) {
	connectionConfig := make(map[string]any, len(connection))
	for k, v := range connection {
		connectionConfig[k] = v
	}

	source, err := queue.NewSource(map[string]any{
		"queue":      queueName,
		"connection": connectionConfig,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &TriggerManager{
		logger:   logger,
		launcher: engine.NewLauncher(store, reg, eventBus, logger, tracer),
		source:   source,
	}, nil
}

func (m *TriggerManager) Start(ctx context.Context) error {
	err := m.source.Start(ctx, m.launcher.LaunchByTriggerID)
	if err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	m.logger.InfoContext(ctx, "Shutting down trigger service")

	return m.source.Stop(ctx)
}
