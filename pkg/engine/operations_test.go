package engine_test

import (
	"testing"
	"time"

	"github.com/dukex/payflow/pkg/engine"
	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/otelhelper"
	"github.com/dukex/payflow/pkg/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestEngine_IncomingChequeLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	chq := cheque("chq-1")

	id, err := f.engine.ImportCheque(ctx, bob, chq)
	require.NoError(t, err)

	workflow, err := f.engine.LoadWorkflow(ctx, bob, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateConveyed, workflow.State)
	assert.Equal(t, []string{alice}, workflow.Parties)
	assert.Equal(t, "imported", workflow.Events[0].Memo)

	again, err := f.engine.ReceiveCheque(ctx, bob, chq, "msg-2")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	require.NoError(t, f.engine.DepositCheque(ctx, bob, "B1", chq))

	workflow, err = f.engine.LoadWorkflow(ctx, bob, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, workflow.State)
	assert.Equal(t, []string{"B1"}, workflow.Accounts)

	err = f.engine.RejectCheque(ctx, bob, chq)
	assert.True(t, engine.IsRejected(err))
}

func TestEngine_RejectIncomingCheque(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	chq := cheque("chq-1")

	id, err := f.engine.ReceiveCheque(ctx, bob, chq, "")
	require.NoError(t, err)

	require.NoError(t, f.engine.RejectCheque(ctx, bob, chq))

	state, err := f.engine.WorkflowState(ctx, bob, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateRejected, state)

	ids, err := f.engine.ArchivedWorkflows(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestEngine_Invoices(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	invoice := cheque("inv-1")
	invoice.Amount = -300

	sent, err := f.engine.CreateInvoice(ctx, alice, invoice)
	require.NoError(t, err)

	category, err := f.engine.WorkflowType(ctx, alice, sent)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryOutgoingInvoice, category)

	received, err := f.engine.ReceiveInvoice(ctx, bob, invoice, "msg-1")
	require.NoError(t, err)

	require.NoError(t, f.engine.PayInvoice(ctx, bob, "B1", invoice))

	state, err := f.engine.WorkflowState(ctx, bob, received)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, state)

	_, err = f.engine.CreateInvoice(ctx, alice, cheque("chq-1"))
	require.ErrorIs(t, err, engine.ErrInvalidInstrument)

	err = f.engine.DepositCheque(ctx, bob, "B1", invoice)
	require.ErrorIs(t, err, engine.ErrInvalidInstrument)
}

func TestEngine_ExpireCheque(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	chq := cheque("chq-1")

	id, err := f.engine.CreateCheque(ctx, alice, chq)
	require.NoError(t, err)

	err = f.engine.ExpireCheque(ctx, alice, id)
	assert.True(t, engine.IsRejected(err), "still inside its validity window")

	ids, err := f.engine.ExpirableCheques(ctx, alice, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, ids)

	f.clock.Advance(48 * time.Hour)

	ids, err = f.engine.ExpirableCheques(ctx, alice, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	require.NoError(t, f.engine.ExpireCheque(ctx, alice, id))

	state, err := f.engine.WorkflowState(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, state)

	// a late cancellation is still possible
	require.NoError(t, f.engine.CancelCheque(ctx, alice, chq))

	state, err = f.engine.WorkflowState(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, state)
}

func TestEngine_ExpireChequeRefusesOtherCategories(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	id, err := f.engine.CreateTransfer(ctx, alice, transfer("tx-1"))
	require.NoError(t, err)

	err = f.engine.ExpireCheque(ctx, alice, id)
	assert.True(t, engine.IsRejected(err))
}

func TestEngine_ExpireCash(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	purse := &models.Cash{ID: "purse-1", Sender: bob, Unit: "unit-usd", Notary: "notary-1", Amount: 10, ValidTo: now.Add(time.Hour)}

	id, err := f.engine.ReceiveCash(ctx, alice, purse, "msg-1")
	require.NoError(t, err)

	chequeID, err := f.engine.CreateCheque(ctx, alice, cheque("chq-1"))
	require.NoError(t, err)

	err = f.engine.ExpireCash(ctx, alice, id)
	assert.True(t, engine.IsRejected(err), "still inside its validity window")

	f.clock.Advance(2 * time.Hour)

	ids, err := f.engine.ExpirableCash(ctx, alice, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	ids, err = f.engine.ExpirableCheques(ctx, alice, f.clock.Now())
	require.NoError(t, err)
	assert.Empty(t, ids, "the cheque is valid for a day")

	err = f.engine.ExpireCash(ctx, alice, chequeID)
	assert.True(t, engine.IsRejected(err), "not a cash workflow")

	require.NoError(t, f.engine.Expire(ctx, alice, id))

	state, err := f.engine.WorkflowState(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateExpired, state)

	err = f.engine.DepositCash(ctx, alice, "A1", purse)
	assert.True(t, engine.IsRejected(err), "expired cash is final")

	f.clock.Advance(48 * time.Hour)

	ids, err = f.engine.Expirable(ctx, alice, f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{chequeID}, ids)
}

func TestEngine_OutgoingTransferLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	tx := transfer("tx-1")

	id, err := f.engine.CreateTransfer(ctx, alice, tx)
	require.NoError(t, err)

	category, err := f.engine.WorkflowType(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryOutgoingTransfer, category)

	require.NoError(t, f.engine.AcknowledgeTransfer(ctx, alice, tx, receipt("ack-1", false)))
	require.NoError(t, f.engine.AcceptTransfer(ctx, alice, tx, nil))
	require.NoError(t, f.engine.CompleteTransfer(ctx, alice, tx, receipt("rcpt-1", true)))

	workflow, err := f.engine.LoadWorkflow(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, workflow.State)
	assert.Equal(t, []string{bob}, workflow.Parties)
	assert.Equal(t, "notary-1", workflow.Notary)

	owner, err := f.engine.WorkflowBySource(ctx, alice, models.SourceItem{Kind: models.SourceKindReceipt, ID: "ack-1"})
	require.NoError(t, err)
	assert.Equal(t, id, owner)
}

func TestEngine_IncomingTransfer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	tx := transfer("tx-1")

	id, err := f.engine.ConveyTransfer(ctx, bob, tx)
	require.NoError(t, err)

	workflow, err := f.engine.LoadWorkflow(ctx, bob, id)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryIncomingTransfer, workflow.Category)
	assert.Equal(t, models.StateConveyed, workflow.State)
	assert.Equal(t, []string{"B1"}, workflow.Accounts)

	err = f.engine.AbortTransfer(ctx, bob, tx)
	assert.True(t, engine.IsRejected(err))

	require.NoError(t, f.engine.ClearTransfer(ctx, bob, tx, &models.Receipt{ID: "rcpt-b", Account: "B1", Final: true}))

	state, err := f.engine.WorkflowState(ctx, bob, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, state)
}

func TestEngine_InternalTransfer(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	tx := transfer("tx-1")
	tx.Recipient = ""

	id, err := f.engine.CreateTransfer(ctx, alice, tx)
	require.NoError(t, err)

	workflow, err := f.engine.LoadWorkflow(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryInternalTransfer, workflow.Category)
	assert.Equal(t, []string{"A1", "B1"}, workflow.Accounts)

	conveyed, err := f.engine.ConveyTransfer(ctx, alice, tx)
	require.NoError(t, err)
	assert.Equal(t, id, conveyed)

	require.NoError(t, f.engine.CompleteTransfer(ctx, alice, tx, nil))

	workflow, err = f.engine.LoadWorkflow(ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, workflow.State)
	assert.Equal(t,
		[]models.EventType{models.EventCreate, models.EventConvey, models.EventComplete},
		eventTypes(workflow))

	for _, account := range []string{"A1", "B1"} {
		ids, err := f.engine.WorkflowsByAccount(ctx, alice, account)
		require.NoError(t, err)
		assert.Equal(t, []string{id}, ids)
	}
}

func TestEngine_Cash(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	purse := &models.Cash{ID: "purse-1", Sender: alice, Recipient: bob, Unit: "unit-usd", Notary: "notary-1", Amount: 10}

	sent, err := f.engine.AllocateCash(ctx, alice, purse)
	require.NoError(t, err)
	require.NoError(t, f.engine.SendCash(ctx, alice, purse))

	err = f.engine.CancelCash(ctx, alice, purse)
	assert.True(t, engine.IsRejected(err), "a sent purse cannot be cancelled")

	received, err := f.engine.ReceiveCash(ctx, bob, purse, "msg-1")
	require.NoError(t, err)
	require.NoError(t, f.engine.DepositCash(ctx, bob, "B1", purse))

	state, err := f.engine.WorkflowState(ctx, bob, received)
	require.NoError(t, err)
	assert.Equal(t, models.StateCompleted, state)

	state, instrument, err := f.engine.InstantiateCash(ctx, alice, sent)
	require.NoError(t, err)
	assert.Equal(t, models.StateConveyed, state)
	assert.Equal(t, purse, instrument)

	ids, err := f.engine.WorkflowsByUnit(ctx, bob, "unit-usd")
	require.NoError(t, err)
	assert.Equal(t, []string{received}, ids)

	unsent := &models.Cash{ID: "purse-2", Unit: "unit-usd", Notary: "notary-1", Amount: 5}

	kept, err := f.engine.AllocateCash(ctx, alice, unsent)
	require.NoError(t, err)
	require.NoError(t, f.engine.CancelCash(ctx, alice, unsent))

	state, err = f.engine.WorkflowState(ctx, alice, kept)
	require.NoError(t, err)
	assert.Equal(t, models.StateCancelled, state)
}

func TestEngine_Instantiate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	chq := cheque("chq-1")
	tx := transfer("tx-1")

	chequeID, err := f.engine.CreateCheque(ctx, alice, chq)
	require.NoError(t, err)

	transferID, err := f.engine.CreateTransfer(ctx, alice, tx)
	require.NoError(t, err)

	state, gotCheque, err := f.engine.InstantiateCheque(ctx, alice, chequeID)
	require.NoError(t, err)
	assert.Equal(t, models.StateUnsent, state)
	assert.Equal(t, chq.ID, gotCheque.ID)
	assert.True(t, chq.ValidTo.Equal(gotCheque.ValidTo))

	state, gotTransfer, err := f.engine.InstantiateTransfer(ctx, alice, transferID)
	require.NoError(t, err)
	assert.Equal(t, models.StateInitiated, state)
	assert.Equal(t, tx, gotTransfer)

	_, _, err = f.engine.InstantiateTransfer(ctx, alice, chequeID)
	require.ErrorIs(t, err, engine.ErrInvalidInstrument)

	_, _, err = f.engine.InstantiateCheque(ctx, alice, "missing")
	assert.True(t, engine.IsNotFound(err))
}

func TestEngine_PurgeWorkflow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()
	tx := transfer("tx-1")

	id, err := f.engine.CreateTransfer(ctx, alice, tx)
	require.NoError(t, err)

	err = f.engine.PurgeWorkflow(ctx, alice, id)
	assert.True(t, engine.IsRejected(err))

	require.NoError(t, f.engine.AbortTransfer(ctx, alice, tx))
	require.NoError(t, f.engine.PurgeWorkflow(ctx, alice, id))

	_, err = f.engine.LoadWorkflow(ctx, alice, id)
	assert.True(t, engine.IsNotFound(err))

	ids, err := f.engine.WorkflowsByAccount(ctx, alice, "A1")
	require.NoError(t, err)
	assert.Empty(t, ids)

	err = f.engine.PurgeWorkflow(ctx, alice, id)
	assert.True(t, engine.IsNotFound(err))
}

func TestEngine_Tracing(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))
	e := engine.New(memory.NewBackend(), newLogger(), engine.WithTracer(provider.Tracer("test")))
	tx := transfer("tx-1")

	_, err := e.CreateTransfer(t.Context(), alice, tx)
	require.NoError(t, err)

	err = e.CompleteTransfer(t.Context(), alice, tx, nil)
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "engine.CreateTransfer", spans[0].Name())
	assert.Equal(t, "engine.CompleteTransfer", spans[1].Name())
	assert.Equal(t, "Error", spans[1].Status().Code.String())

	events := spans[1].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "exception", events[0].Name)
	assert.Contains(t, events[0].Attributes, attribute.String(otelhelper.ErrorKindKey, "rejected"))
}

func TestEngine_ListByStateAcrossCategories(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := t.Context()

	chequeID, err := f.engine.CreateCheque(ctx, alice, cheque("chq-1"))
	require.NoError(t, err)

	purseID, err := f.engine.AllocateCash(ctx, alice, &models.Cash{ID: "purse-1", Unit: "unit-usd", Notary: "notary-1", Amount: 5})
	require.NoError(t, err)

	transferID, err := f.engine.CreateTransfer(ctx, alice, transfer("tx-1"))
	require.NoError(t, err)

	ids, err := f.engine.List(ctx, alice, "", models.StateUnsent)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{chequeID, purseID}, ids)

	ids, err = f.engine.List(ctx, alice, "", models.StateInitiated)
	require.NoError(t, err)
	assert.Equal(t, []string{transferID}, ids)

	ids, err = f.engine.List(ctx, alice, "", models.StateRejected)
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = f.engine.List(ctx, alice, "", "")
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}
