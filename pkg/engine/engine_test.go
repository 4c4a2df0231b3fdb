package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/payflow/pkg/engine"
	"github.com/dukex/payflow/pkg/mocks"
	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/persistence/memory"
	"github.com/dukex/payflow/pkg/persistence/persistencetest"
	"github.com/dukex/payflow/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	alice = "nym-alice"
	bob   = "nym-bob"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixture struct {
	engine   *engine.Engine
	backend  *persistencetest.FaultyBackend
	notifier *mocks.MockNotifier
	clock    *clock
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	notifier := &mocks.MockNotifier{}
	notifier.On("AccountUpdated", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	notifier.On("WorkflowChanged", mock.Anything, mock.Anything).Return(nil).Maybe()

	backend := persistencetest.NewFaultyBackend(memory.NewBackend())
	c := &clock{now: now}

	return &fixture{
		engine:   engine.New(backend, newLogger(), engine.WithNotifier(notifier), engine.WithClock(c.Now)),
		backend:  backend,
		notifier: notifier,
		clock:    c,
	}
}

func cheque(id string) *models.Cheque {
	return &models.Cheque{
		ID:                id,
		TransactionNumber: 42,
		Sender:            alice,
		Recipient:         bob,
		Account:           "A1",
		Unit:              "unit-usd",
		Notary:            "notary-1",
		Amount:            100,
		ValidFrom:         now.Add(-time.Hour),
		ValidTo:           now.Add(24 * time.Hour),
	}
}

func transfer(id string) *models.Transfer {
	return &models.Transfer{
		ID:                 id,
		TransactionNumber:  7,
		Sender:             alice,
		Recipient:          bob,
		SourceAccount:      "A1",
		DestinationAccount: "B1",
		Unit:               "unit-usd",
		Notary:             "notary-1",
		Amount:             250,
	}
}

func receipt(id string, final bool) *models.Receipt {
	return &models.Receipt{ID: id, Account: "A1", Final: final}
}

func eventTypes(workflow *models.Workflow) []models.EventType {
	out := make([]models.EventType, 0, len(workflow.Events))
	for _, event := range workflow.Events {
		out = append(out, event.Type)
	}

	return out
}

func TestEngine_ScenarioA_ChequeLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	chq := cheque("chq-1")

	id, err := f.engine.CreateCheque(ctx, alice, chq)
	require.NoError(t, err)

	workflow, err := f.engine.LoadWorkflow(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnsent, workflow.State)
	assert.Equal(t, []models.EventType{models.EventCreate}, eventTypes(workflow))

	require.NoError(t, f.engine.FinishCheque(ctx, alice, chq, receipt("rcpt-1", true)))

	workflow, err = f.engine.LoadWorkflow(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, workflow.State)
	assert.Equal(t, []models.EventType{models.EventCreate, models.EventAccept}, eventTypes(workflow))

	ids, err := f.engine.WorkflowsByAccount(ctx, alice, "A1")
	require.NoError(t, err)
	assert.Contains(t, ids, id)

	ids, err = f.engine.List(ctx, alice, models.CategoryOutgoingCheque, models.StateUnsent)
	require.NoError(t, err)
	assert.NotContains(t, ids, id)

	ids, err = f.engine.List(ctx, alice, models.CategoryOutgoingCheque, models.StateCompleted)
	require.NoError(t, err)
	assert.Contains(t, ids, id)
}

func TestEngine_ScenarioB_TransferAbort(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	first := transfer("tx-1")
	id, err := f.engine.CreateTransfer(ctx, alice, first)
	require.NoError(t, err)

	state, err := f.engine.WorkflowState(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateInitiated, state)

	require.NoError(t, f.engine.AbortTransfer(ctx, alice, first))

	state, err = f.engine.WorkflowState(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateAborted, state)

	second := transfer("tx-2")
	id, err = f.engine.CreateTransfer(ctx, alice, second)
	require.NoError(t, err)

	require.NoError(t, f.engine.AcknowledgeTransfer(ctx, alice, second, nil))

	err = f.engine.AbortTransfer(ctx, alice, second)
	require.Error(t, err)
	assert.True(t, engine.IsRejected(err))
	assert.False(t, engine.IsStorageError(err))

	workflow, err := f.engine.LoadWorkflow(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateAcknowledged, workflow.State)
	assert.Equal(t, []models.EventType{models.EventCreate, models.EventAcknowledge}, eventTypes(workflow))
}

func TestEngine_IdempotentCreation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	chq := cheque("chq-1")

	first, err := f.engine.CreateCheque(ctx, alice, chq)
	require.NoError(t, err)

	second, err := f.engine.CreateCheque(ctx, alice, chq)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	item, err := chq.SourceItem(1)
	require.NoError(t, err)

	id, err := f.engine.WorkflowBySource(ctx, alice, item)
	require.NoError(t, err)
	assert.Equal(t, first, id)

	ids, err := f.engine.List(ctx, alice, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{first}, ids)

	workflow, err := f.engine.LoadWorkflow(ctx, alice, first)
	require.NoError(t, err)
	assert.Len(t, workflow.Events, 1)

	f.notifier.AssertNumberOfCalls(t, "WorkflowChanged", 1)
}

func TestEngine_EventLogIsAppendOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	chq := cheque("chq-1")

	id, err := f.engine.CreateCheque(ctx, alice, chq)
	require.NoError(t, err)

	var previous []models.Event

	steps := []func() error{
		func() error { return f.engine.SendCheque(ctx, alice, chq, bob) },
		func() error { return f.engine.ClearCheque(ctx, alice, chq, receipt("rcpt-1", false)) },
		func() error { return f.engine.CancelCheque(ctx, alice, chq) },
		func() error { return f.engine.FinishCheque(ctx, alice, chq, receipt("rcpt-2", true)) },
	}

	for _, step := range steps {
		_ = step()

		workflow, err := f.engine.LoadWorkflow(ctx, alice, id)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(workflow.Events), len(previous))
		assert.Equal(t, previous, workflow.Events[:len(previous)])
		assert.True(t, rules.IsLegalState(workflow.Category, workflow.State))

		previous = workflow.Events
	}

	state, err := f.engine.WorkflowState(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, state)
	assert.Len(t, previous, 4)
	assert.Equal(t, models.EventClear, previous[3].Type)
}

func TestEngine_ConcurrentMutationsOfOneWorkflow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	tx := transfer("tx-1")

	id, err := f.engine.CreateTransfer(ctx, alice, tx)
	require.NoError(t, err)

	const attempts = 32

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		applied  int
		rejected int
	)

	for i := range attempts {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			var err error
			if i%2 == 0 {
				err = f.engine.AbortTransfer(context.Background(), alice, tx)
			} else {
				err = f.engine.AcknowledgeTransfer(context.Background(), alice, tx, nil)
			}

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				applied++
			case engine.IsRejected(err):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()

	assert.Equal(t, attempts, applied+rejected)
	assert.Equal(t, 1, applied, "abort and acknowledge are only legal from Initiated")

	workflow, err := f.engine.LoadWorkflow(ctx, alice, id)
	require.NoError(t, err)
	assert.Len(t, workflow.Events, 2)
	assert.Contains(t, []models.State{models.StateAborted, models.StateAcknowledged}, workflow.State)
}

func TestEngine_StorageFailure(t *testing.T) {
	t.Parallel()

	notifier := &mocks.MockNotifier{}
	backend := persistencetest.NewFaultyBackend(memory.NewBackend())
	e := engine.New(backend, newLogger(), engine.WithNotifier(notifier), engine.WithClock(func() time.Time { return now }))
	ctx := t.Context()
	tx := transfer("tx-1")

	notifier.On("AccountUpdated", mock.Anything, alice, "A1").Return(nil)
	notifier.On("WorkflowChanged", mock.Anything, mock.Anything).Return(nil)

	id, err := e.CreateTransfer(ctx, alice, tx)
	require.NoError(t, err)

	backend.FailApply(errors.New("disk full"))

	err = e.AbortTransfer(ctx, alice, tx)
	require.Error(t, err)
	assert.True(t, engine.IsStorageError(err))
	assert.False(t, engine.IsRejected(err))
	notifier.AssertNumberOfCalls(t, "WorkflowChanged", 1)

	backend.FailApply(nil)

	// the lock was released and nothing was committed
	state, err := e.WorkflowState(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateInitiated, state)

	require.NoError(t, e.AbortTransfer(ctx, alice, tx))

	notifier.AssertNumberOfCalls(t, "WorkflowChanged", 2)
}

func TestEngine_NotificationFailureKeepsCommit(t *testing.T) {
	t.Parallel()

	notifier := &mocks.MockNotifier{}
	notifier.On("AccountUpdated", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("socket closed"))
	notifier.On("WorkflowChanged", mock.Anything, mock.Anything).Return(errors.New("socket closed"))

	e := engine.New(memory.NewBackend(), newLogger(), engine.WithNotifier(notifier))

	id, err := e.CreateCheque(t.Context(), alice, cheque("chq-1"))
	require.NoError(t, err)

	state, err := e.WorkflowState(t.Context(), alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnsent, state)

	notifier.AssertCalled(t, "AccountUpdated", mock.Anything, alice, "A1")
	notifier.AssertNumberOfCalls(t, "WorkflowChanged", 1)
}

func TestEngine_RejectionDoesNotNotify(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	tx := transfer("tx-1")

	_, err := f.engine.CreateTransfer(ctx, alice, tx)
	require.NoError(t, err)

	err = f.engine.CompleteTransfer(ctx, alice, tx, nil)
	require.Error(t, err)

	var rejected *rules.RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, models.StateInitiated, rejected.State)

	f.notifier.AssertNumberOfCalls(t, "WorkflowChanged", 1)
}

func TestEngine_NotFoundAndInvalid(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	_, err := f.engine.LoadWorkflow(ctx, alice, "missing")
	assert.True(t, engine.IsNotFound(err))

	_, err = f.engine.WorkflowType(ctx, alice, "missing")
	assert.True(t, engine.IsNotFound(err))

	err = f.engine.ExpireCheque(ctx, alice, "missing")
	assert.True(t, engine.IsNotFound(err))

	err = f.engine.DepositCheque(ctx, alice, "A1", cheque("never-received"))
	assert.True(t, engine.IsNotFound(err))

	_, err = f.engine.WorkflowBySource(ctx, alice, models.SourceItem{Kind: models.SourceKindCheque, ID: "x"})
	assert.True(t, engine.IsNotFound(err))

	incomplete := cheque("chq-1")
	incomplete.Account = ""
	_, err = f.engine.CreateCheque(ctx, alice, incomplete)
	require.ErrorIs(t, err, engine.ErrInvalidInstrument)

	_, err = f.engine.CreateCheque(ctx, bob, cheque("chq-1"))
	require.ErrorIs(t, err, engine.ErrInvalidInstrument, "bob did not write the cheque")

	_, err = f.engine.CreateCheque(ctx, "", cheque("chq-1"))
	require.ErrorIs(t, err, engine.ErrInvalidInstrument)

	invoice := cheque("inv-1")
	invoice.Amount = -100
	_, err = f.engine.CreateCheque(ctx, alice, invoice)
	require.ErrorIs(t, err, engine.ErrInvalidInstrument)

	ids, err := f.engine.WorkflowsByAccount(ctx, alice, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestEngine_OwnersAreSeparate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	chq := cheque("chq-1")

	sent, err := f.engine.CreateCheque(ctx, alice, chq)
	require.NoError(t, err)

	received, err := f.engine.ReceiveCheque(ctx, bob, chq, "msg-1")
	require.NoError(t, err)
	assert.NotEqual(t, sent, received)

	category, err := f.engine.WorkflowType(ctx, bob, received)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryIncomingCheque, category)

	_, err = f.engine.LoadWorkflow(ctx, bob, sent)
	assert.True(t, engine.IsNotFound(err))
}

func TestEngine_ReceiptClaimedByAnotherWorkflow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	first, second := cheque("chq-1"), cheque("chq-2")

	_, err := f.engine.CreateCheque(ctx, alice, first)
	require.NoError(t, err)
	secondID, err := f.engine.CreateCheque(ctx, alice, second)
	require.NoError(t, err)

	require.NoError(t, f.engine.ClearCheque(ctx, alice, first, receipt("rcpt-1", false)))

	require.NotPanics(t, func() {
		err = f.engine.FinishCheque(ctx, alice, second, receipt("rcpt-1", true))
	})
	require.ErrorIs(t, err, engine.ErrInvalidInstrument)

	workflow, err := f.engine.LoadWorkflow(ctx, alice, secondID)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnsent, workflow.State)
	assert.Equal(t, []models.EventType{models.EventCreate}, eventTypes(workflow))

	require.NoError(t, f.engine.FinishCheque(ctx, alice, first, receipt("rcpt-1", true)),
		"the owning workflow may present its receipt again")

	state, err := f.engine.WorkflowState(ctx, alice, secondID)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnsent, state)

	_, err = f.engine.CreateTransfer(ctx, alice, transfer("trf-1"))
	require.NoError(t, err)
	err = f.engine.AcknowledgeTransfer(ctx, alice, transfer("trf-1"), receipt("rcpt-1", false))
	require.ErrorIs(t, err, engine.ErrInvalidInstrument)
}

func TestEngine_ConcurrentClaimsOfOneReceipt(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	const writers = 8

	cheques := make([]*models.Cheque, writers)
	for i := range cheques {
		cheques[i] = cheque("chq-" + string(rune('a'+i)))
		_, err := f.engine.CreateCheque(ctx, alice, cheques[i])
		require.NoError(t, err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)

	for _, chq := range cheques {
		wg.Add(1)

		go func() {
			defer wg.Done()

			err := f.engine.FinishCheque(ctx, alice, chq, receipt("rcpt-shared", true))

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, engine.ErrInvalidInstrument):
				rejected++
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, rejected)
}
