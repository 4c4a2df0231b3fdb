package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dukex/payflow/pkg/expiry"
	"github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the sweep schedule and owner list",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "expiry-schedule",
				Usage:   "Cron expression of the sweep schedule",
				Value:   expiry.DefaultSchedule,
				Sources: cli.EnvVars("EXPIRY_SCHEDULE"),
			},
			&cli.StringSliceFlag{
				Name:    "owners",
				Usage:   "Parties whose workflows are swept",
				Sources: cli.EnvVars("OWNERS"),
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			sweeper := &expiry.Sweeper{
				CronExpr: command.String("expiry-schedule"),
				Owners:   command.StringSlice("owners"),
			}

			err := sweeper.Validate()
			if err != nil {
				return fmt.Errorf("invalid sweeper configuration: %w", err)
			}

			next, err := sweeper.NextRun(time.Now())
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(os.Stdout, "Schedule %q sweeps %d owner(s), next run at %s\n",
				sweeper.CronExpr, len(sweeper.Owners), next.Format(time.RFC3339))

			return nil
		},
	}
}
