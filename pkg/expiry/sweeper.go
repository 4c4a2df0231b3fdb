// Package expiry periodically moves cheques, invoices and received cash whose validity
// window elapsed to the Expired state.
package expiry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/payflow/pkg/engine"
	"github.com/dukex/payflow/pkg/otelhelper"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// DefaultSchedule runs a sweep every five minutes.
const DefaultSchedule = "*/5 * * * *"

// Expirer is the part of the engine the sweeper drives.
type Expirer interface {
	Expirable(ctx context.Context, owner string, now time.Time) ([]string, error)
	Expire(ctx context.Context, owner, id string) error
}

// Sweeper expires the pending instruments of a fixed set of owners on a cron schedule.
type Sweeper struct {
	CronExpr string
	Owners   []string

	expirer Expirer
	cron    *cron.Cron
	tracer  trace.Tracer
	now     func() time.Time
	logger  *slog.Logger
}

// NewSweeper creates a sweeper. It fails if the schedule is not a standard cron expression.
func NewSweeper(expirer Expirer, cronExpr string, owners []string, logger *slog.Logger) (*Sweeper, error) {
	sweeper := &Sweeper{
		CronExpr: cronExpr,
		Owners:   owners,
		expirer:  expirer,
		tracer:   noop.NewTracerProvider().Tracer("payflow"),
		now:      func() time.Time { return time.Now().UTC() },
		logger: logger.With(
			"module", "expiry_sweeper",
			"cron", cronExpr,
		),
	}

	err := sweeper.Validate()
	if err != nil {
		return nil, err
	}

	return sweeper, nil
}

// WithTracer traces every sweep with tracer.
func (s *Sweeper) WithTracer(tracer trace.Tracer) *Sweeper {
	s.tracer = tracer

	return s
}

// Validate checks the schedule and owners.
func (s *Sweeper) Validate() error {
	if s.CronExpr == "" {
		return errors.New("expiry sweeper cron expression is required")
	}

	_, err := cron.ParseStandard(s.CronExpr)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if len(s.Owners) == 0 {
		return errors.New("expiry sweeper needs at least one owner")
	}

	return nil
}

// NextRun returns when the schedule fires next after from.
func (s *Sweeper) NextRun(from time.Time) (time.Time, error) {
	schedule, err := cron.ParseStandard(s.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}

	return schedule.Next(from), nil
}

// Start schedules the sweep. Overlapping runs are skipped and a panicking run is recovered.
func (s *Sweeper) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Starting expiry sweeper", "owners", len(s.Owners))

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	id, err := s.cron.AddFunc(s.CronExpr, func() { s.run(ctx) })
	if err != nil {
		return fmt.Errorf("failed to add expiry sweep job: %w", err)
	}

	s.logger.InfoContext(ctx, "Added expiry sweep job", "id", id)
	s.cron.Start()

	return nil
}

func (s *Sweeper) run(ctx context.Context) {
	expired, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Expiry sweep failed", "expired", expired, "error", err)

		return
	}

	s.logger.InfoContext(ctx, "Expiry sweep finished", "expired", expired)
}

// SweepOnce expires every eligible workflow of every owner and returns how many moved.
// A workflow changed concurrently into a state where expiry is illegal is skipped; other
// failures are collected and returned after all owners were visited.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "expiry.sweep",
		attribute.Int(otelhelper.SweepOwnersKey, len(s.Owners)))
	defer span.End()

	var (
		expired int
		errs    []error
	)

	now := s.now()

	for _, owner := range s.Owners {
		ids, err := s.expirer.Expirable(ctx, owner, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to list expirable workflows of %s: %w", owner, err))

			continue
		}

		for _, id := range ids {
			err := s.expirer.Expire(ctx, owner, id)

			switch {
			case err == nil:
				expired++
			case engine.IsRejected(err):
				s.logger.DebugContext(ctx, "Skipped workflow changed during sweep", "owner", owner, "workflow_id", id)
			default:
				errs = append(errs, fmt.Errorf("failed to expire %s of %s: %w", id, owner, err))
			}
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return expired, err
}

// Stop stops scheduling sweeps and waits for a running one to finish or ctx to end.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "Stopping expiry sweeper")

	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
