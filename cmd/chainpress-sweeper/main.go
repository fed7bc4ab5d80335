package main

import (
	"context"
	"os"

	"github.com/chainpress/chainpress/pkg/cmd"
	"github.com/chainpress/chainpress/pkg/log"
	cli "github.com/urfave/cli/v3"
)

func main() {
	command := &cli.Command{
		Name:                  "chainpress-sweeper",
		EnableShellCompletion: true,
		Usage:                 "Periodically re-enqueue due actions and trim aged run history",
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
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for the due-action sweep",
				Value:   "@every 1m",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "retention-schedule",
				Usage:   "Cron schedule for the history retention sweep",
				Value:   "@daily",
				Sources: cli.EnvVars("RETENTION_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "retention-days",
				Usage:   "Days to keep finished instances before deletion",
				Value:   30,
				Sources: cli.EnvVars("RETENTION_DAYS"),
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

			logger := log.WithModule("chainpress-sweeper")

			logger.InfoContext(ctx, "Initializing sweeper")

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "chainpress-sweeper", logger)
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

			manager := NewSweepManager(
				store,
				eventBus,
				logger,
				command.String("sweep-schedule"),
				command.String("retention-schedule"),
				command.Int("retention-days"),
			)

			return manager.Start(ctx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
