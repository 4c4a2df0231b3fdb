package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dukex/payflow/pkg/cmd"
	"github.com/dukex/payflow/pkg/engine"
	"github.com/dukex/payflow/pkg/eventbus"
	"github.com/dukex/payflow/pkg/log"
	"github.com/dukex/payflow/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "payflow-api",
		Usage:                 "Track and drive payment workflows over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (memory://, file://, postgres://, redis://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("payflow-api")

	logger.InfoContext(ctx, "Initializing Payflow API")

	backend, err := cmd.NewBackend(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := backend.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	bus, err := cmd.NewEventBus(
		command.String("event-bus"),
		strings.Split(command.String("kafka-brokers"), ","),
		"payflow-api",
		logger,
	)
	if err != nil {
		return err
	}

	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	opts := []engine.Option{engine.WithNotifier(eventbus.NewNotifier(bus))}

	if command.Bool("tracing") {
		tracer, err := otelhelper.NewTracer(ctx, "payflow-api")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		opts = append(opts, engine.WithTracer(tracer))
	}

	api := NewAPI(logger, backend, engine.New(backend, logger, opts...))

	return api.Start(command.Int("port"))
}
