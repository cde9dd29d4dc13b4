package main

import (
	"context"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/voxflow/voxflow/pkg/log"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	cmd := &cli.Command{
		Name:                  "voxflow-api",
		Usage:                 "Serve voice webhooks and manage call flows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (postgres://... or file:///path)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the live execution table; empty keeps state in memory",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:     "public-base-url",
				Usage:    "Public base URL the provider calls back on",
				Required: true,
				Sources:  cli.EnvVars("PUBLIC_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "webhook-auth-token",
				Usage:   "Provider auth token for webhook signature validation; empty disables validation",
				Sources: cli.EnvVars("WEBHOOK_AUTH_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "lead-endpoint",
				Usage:   "HTTP endpoint receiving captured lead notifications",
				Sources: cli.EnvVars("LEAD_ENDPOINT"),
			},
			&cli.DurationFlag{
				Name:    "execution-timeout",
				Usage:   "Hard wall-clock limit for one call execution",
				Sources: cli.EnvVars("EXECUTION_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "max-node-executions",
				Usage:   "Hard limit on node visits per call",
				Sources: cli.EnvVars("MAX_NODE_EXECUTIONS"),
			},
			&cli.BoolFlag{
				Name:    "tracing-enabled",
				Usage:   "Export traces via OTLP (endpoint from the standard OTEL environment variables)",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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

			logger.InfoContext(ctx, "Initializing Voxflow API")

			api, cleanup, err := NewAPI(ctx, logger, Options{
				DatabaseURL:       command.String("database-url"),
				RedisURL:          command.String("redis-url"),
				EventBus:          command.String("event-bus"),
				KafkaBrokers:      command.String("kafka-brokers"),
				PublicBaseURL:     command.String("public-base-url"),
				WebhookAuthToken:  command.String("webhook-auth-token"),
				LeadEndpoint:      command.String("lead-endpoint"),
				ExecutionTimeout:  time.Duration(command.Duration("execution-timeout")),
				MaxNodeExecutions: int(command.Int("max-node-executions")),
				TracingEnabled:    command.Bool("tracing-enabled"),
			})
			if err != nil {
				return err
			}
			defer cleanup(ctx)

			if err := api.Start(int(command.Int("port"))); err != nil {
				logger.ErrorContext(ctx, "Failed to start server", "error", err)

				return err
			}

			return nil
		},
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
