package main

import (
	"context"
	"os"

	"github.com/chainpress/chainpress/pkg/cmd"
	"github.com/chainpress/chainpress/pkg/log"
	"github.com/chainpress/chainpress/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "chainpress-trigger",
		EnableShellCompletion: true,
		Usage:                 "Consume external queue events and launch automation runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "queue",
				Usage:   "Redis list to consume launch requests from",
				Value:   "chainpress:launch",
				Sources: cli.EnvVars("QUEUE_NAME"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address (host:port)",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "redis-db",
				Usage:   "Redis database number",
				Value:   "0",
				Sources: cli.EnvVars("REDIS_DB"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("chainpress-trigger")

			logger.InfoContext(ctx, "Initializing trigger service")

			tracer, err := otelhelper.NewTracer(ctx, "chainpress-trigger")
			if err != nil {
				return err
			}

			registry := cmd.NewRegistry(logger)

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "chainpress-trigger", logger)
			if err != nil {
				return err
			}

			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := store.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			manager, err := NewTriggerManager(
				store,
				registry,
				eventBus,
				logger,
				tracer,
				command.String("queue"),
				map[string]string{
					"addr":     command.String("redis-addr"),
					"password": command.String("redis-password"),
					"db":       command.String("redis-db"),
				},
			)
			if err != nil {
				return err
			}

			return manager.Start(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
