package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/payflow/pkg/cmd"
	"github.com/dukex/payflow/pkg/engine"
	"github.com/dukex/payflow/pkg/eventbus"
	"github.com/dukex/payflow/pkg/expiry"
	"github.com/dukex/payflow/pkg/log"
	"github.com/dukex/payflow/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

const shutdownTimeout = 30 * time.Second

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("payflow-sweeper")

	logger.InfoContext(ctx, "Initializing Payflow sweeper")

	backend, err := cmd.NewBackend(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := backend.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	bus, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), "payflow-sweeper", logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	opts := []engine.Option{engine.WithNotifier(eventbus.NewNotifier(bus))}

	var tracer trace.Tracer

	if command.Bool("tracing") {
		tracer, err = otelhelper.NewTracer(ctx, "payflow-sweeper")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		opts = append(opts, engine.WithTracer(tracer))
	}

	sweeper, err := expiry.NewSweeper(
		engine.New(backend, logger, opts...),
		command.String("expiry-schedule"),
		command.StringSlice("owners"),
		logger,
	)
	if err != nil {
		return err
	}

	if tracer != nil {
		sweeper.WithTracer(tracer)
	}

	if command.Bool("once") {
		expired, err := sweeper.SweepOnce(ctx)
		logger.InfoContext(ctx, "Sweep finished", "expired", expired)

		return err
	}

	err = sweeper.Start(ctx)
	if err != nil {
		return err
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-signals:
		logger.InfoContext(ctx, "Received signal, shutting down", "signal", sig)
	case <-ctx.Done():
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return sweeper.Stop(stopCtx)
}
