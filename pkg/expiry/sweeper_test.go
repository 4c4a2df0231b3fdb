package expiry_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/payflow/pkg/engine"
	"github.com/dukex/payflow/pkg/expiry"
	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/persistence/memory"
	"github.com/dukex/payflow/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewSweeper_Validation(t *testing.T) {
	t.Parallel()

	e := engine.New(memory.NewBackend(), newLogger())

	tests := []struct {
		name    string
		expr    string
		owners  []string
		wantErr string
	}{
		{"valid", "*/5 * * * *", []string{"nym-alice"}, ""},
		{"descriptor", "@every 1m", []string{"nym-alice"}, ""},
		{"missing expression", "", []string{"nym-alice"}, "cron expression is required"},
		{"invalid expression", "every now and then", []string{"nym-alice"}, "invalid cron expression"},
		{"no owners", "*/5 * * * *", nil, "at least one owner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := expiry.NewSweeper(e, tt.expr, tt.owners, newLogger())
			if tt.wantErr == "" {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSweeper_SweepOnceExpiresElapsedInstruments(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	clock := time.Now().UTC()
	e := engine.New(memory.NewBackend(), newLogger(), engine.WithClock(func() time.Time { return clock }))

	elapsed := &models.Cheque{
		ID: "chq-old", TransactionNumber: 1, Sender: "nym-alice", Account: "A1", Unit: "usd",
		Notary: "n1", Amount: 5, ValidTo: clock.Add(-time.Minute),
	}
	pending := &models.Cheque{
		ID: "chq-new", TransactionNumber: 2, Sender: "nym-alice", Account: "A1", Unit: "usd",
		Notary: "n1", Amount: 5, ValidTo: clock.Add(time.Hour),
	}

	oldID, err := e.CreateCheque(ctx, "nym-alice", elapsed)
	require.NoError(t, err)

	newID, err := e.CreateCheque(ctx, "nym-alice", pending)
	require.NoError(t, err)

	purse := &models.Cash{ID: "purse-old", Sender: "nym-bob", Unit: "usd", Notary: "n1", Amount: 3, ValidTo: clock.Add(-time.Minute)}

	purseID, err := e.ReceiveCash(ctx, "nym-alice", purse, "")
	require.NoError(t, err)

	sweeper, err := expiry.NewSweeper(e, expiry.DefaultSchedule, []string{"nym-alice", "nym-bob"}, newLogger())
	require.NoError(t, err)

	expired, err := sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	state, err := e.WorkflowState(ctx, "nym-alice", oldID)
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, state)

	state, err = e.WorkflowState(ctx, "nym-alice", purseID)
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, state)

	state, err = e.WorkflowState(ctx, "nym-alice", newID)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnsent, state)

	expired, err = sweeper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, expired)
}

type stubExpirer struct {
	ids     map[string][]string
	listErr error
	results map[string]error
	calls   []string
}

func (s *stubExpirer) Expirable(_ context.Context, owner string, _ time.Time) ([]string, error) {
	if s.listErr != nil && owner == "broken" {
		return nil, s.listErr
	}

	return s.ids[owner], nil
}

func (s *stubExpirer) Expire(_ context.Context, _ string, id string) error {
	s.calls = append(s.calls, id)

	return s.results[id]
}

func TestSweeper_SweepOnceCollectsFailures(t *testing.T) {
	t.Parallel()

	errDisk := errors.New("disk full")
	stub := &stubExpirer{
		ids: map[string][]string{"nym-alice": {"w1", "w2", "w3"}},
		results: map[string]error{
			"w2": &rules.RejectedError{State: models.StateCancelled, Action: rules.ActionExpire},
			"w3": errDisk,
		},
		listErr: errors.New("backend offline"),
	}

	sweeper, err := expiry.NewSweeper(stub, "@every 1h", []string{"broken", "nym-alice"}, newLogger())
	require.NoError(t, err)

	expired, err := sweeper.SweepOnce(t.Context())
	require.Error(t, err)
	assert.Equal(t, 1, expired)
	assert.ErrorIs(t, err, errDisk)
	assert.Contains(t, err.Error(), "backend offline")
	assert.Equal(t, []string{"w1", "w2", "w3"}, stub.calls)
}

func TestSweeper_StartStop(t *testing.T) {
	t.Parallel()

	stub := &stubExpirer{}

	sweeper, err := expiry.NewSweeper(stub, "@every 1h", []string{"nym-alice"}, newLogger())
	require.NoError(t, err)

	require.NoError(t, sweeper.Start(t.Context()))
	require.NoError(t, sweeper.Stop(t.Context()))

	unstarted, err := expiry.NewSweeper(stub, "@every 1h", []string{"nym-alice"}, newLogger())
	require.NoError(t, err)
	require.NoError(t, unstarted.Stop(t.Context()))
}

func TestSweeper_NextRun(t *testing.T) {
	t.Parallel()

	sweeper, err := expiry.NewSweeper(&stubExpirer{}, "*/5 * * * *", []string{"nym-alice"}, newLogger())
	require.NoError(t, err)

	from := time.Date(2026, 5, 10, 12, 3, 20, 0, time.UTC)

	next, err := sweeper.NextRun(from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 10, 12, 5, 0, 0, time.UTC), next)

	sweeper.CronExpr = "not a schedule"

	_, err = sweeper.NextRun(from)
	require.Error(t, err)
}
