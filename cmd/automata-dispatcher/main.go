// Package main provides the event dispatcher worker: it consumes
// entity-change events and fires the matching event-mode triggers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/practiq/automata/pkg/cmd"
	"github.com/practiq/automata/pkg/dispatcher"
	"github.com/practiq/automata/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "automata-dispatcher",
		Usage:                 "Start the event dispatcher worker",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for execution leases (falls back to the database row lock)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "notify-webhook-url",
				Usage:   "Delivery endpoint for notify actions",
				Value:   "",
				Sources: cli.EnvVars("NOTIFY_WEBHOOK_URL"),
			},
			&cli.StringFlag{
				Name:    "agent-webhook-url",
				Usage:   "Agent runtime endpoint for invoke_agent actions",
				Value:   "",
				Sources: cli.EnvVars("AGENT_WEBHOOK_URL"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "dispatcher-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("automata-dispatcher").With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing dispatcher worker")

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), "automata-dispatcher", logger)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			tracer := cmd.NewTracer(ctx, logger, "automata-dispatcher")

			exec := cmd.NewExecutor(ctx, logger, cmd.ExecutorDeps{
				Persistence:      persistence,
				EventBus:         eventBus,
				RedisURL:         command.String("redis-url"),
				NotifyWebhookURL: command.String("notify-webhook-url"),
				AgentWebhookURL:  command.String("agent-webhook-url"),
				Tracer:           tracer,
				WorkerID:         workerID,
			})

			d := dispatcher.NewDispatcher(logger, persistence.TriggerRepository(), exec, tracer)

			err := d.Run(ctx, eventBus)
			if err != nil {
				logger.ErrorContext(ctx, "Dispatcher stopped with error", "error", err)

				return err
			}

			logger.InfoContext(ctx, "Shutting down dispatcher...")

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
