// Package engine implements the payment workflow operations on top of the transition
// rules, the per-workflow locks and the workflow store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dukex/payflow/pkg/lock"
	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/otelhelper"
	"github.com/dukex/payflow/pkg/persistence"
	"github.com/dukex/payflow/pkg/rules"
	"github.com/dukex/payflow/pkg/store"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	// ErrRejectedTransition is returned when the action is not legal from the workflow's
	// current state. Nothing was changed.
	ErrRejectedTransition = rules.ErrRejectedTransition

	// ErrStorage is returned when the backing store failed. The change was not committed.
	ErrStorage = persistence.ErrStorage

	// ErrWorkflowNotFound is returned when the operation needs a workflow that does not exist.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidInstrument is returned when the instrument passed in is incomplete or does
	// not belong to the owner.
	ErrInvalidInstrument = errors.New("invalid instrument")
)

// IsRejected reports whether err is a rejected transition.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejectedTransition)
}

// IsStorageError reports whether err is a failure of the backing store.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsNotFound reports whether err is a missing workflow.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// Notifier receives change announcements after a mutation has been committed.
type Notifier interface {
	AccountUpdated(ctx context.Context, owner, account string) error
	WorkflowChanged(ctx context.Context, workflow *models.Workflow) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithNotifier sets the collaborator told about committed changes.
func WithNotifier(notifier Notifier) Option {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

// WithTracer enables tracing of every operation.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithClock replaces the time source used for event timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine is the entry point for every workflow operation. It is safe for concurrent use.
type Engine struct {
	backend  persistence.Backend
	locks    *lock.Registry
	logger   *slog.Logger
	notifier Notifier
	tracer   trace.Tracer
	validate *validator.Validate
	now      func() time.Time

	mu     sync.Mutex
	stores map[string]*store.WorkflowStore
}

// New creates an engine storing workflows in backend.
func New(backend persistence.Backend, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		backend:  backend,
		locks:    lock.NewRegistry(),
		logger:   logger.With("module", "engine"),
		tracer:   noop.NewTracerProvider().Tracer("payflow"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
		stores:   make(map[string]*store.WorkflowStore),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// storeFor returns the store holding owner's workflows.
func (e *Engine) storeFor(owner string) *store.WorkflowStore {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, ok := e.stores[owner]
	if !ok {
		s = store.New(e.backend, owner, e.logger)
		e.stores[owner] = s
	}

	return s
}

// change describes one mutation of one workflow.
type change struct {
	op    string
	owner string
	id    string

	// categories lists the categories the operation applies to. When the workflow does
	// not exist yet and action creates it, the first one is used.
	categories []models.Category
	action     rules.Action

	// choose overrides action based on the current state.
	choose func(state models.State) rules.Action

	final  bool
	source *models.SourceItem
	memo   string

	// record adds the references the new event brings in.
	record func(workflow *models.Workflow)
}

// apply runs c under the workflow's lock and announces the result once the lock is
// released.
func (e *Engine) apply(ctx context.Context, c change) (*models.Workflow, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine."+c.op,
		attribute.String(otelhelper.OwnerKey, c.owner),
		attribute.String(otelhelper.WorkflowIDKey, c.id),
		attribute.String(otelhelper.ActionKey, string(c.action)),
	)
	defer span.End()

	if c.owner == "" {
		err := fmt.Errorf("%s: %w: owner is required", c.op, ErrInvalidInstrument)
		otelhelper.SetError(span, err, attribute.String(otelhelper.ErrorKindKey, errorKind(err)))

		return nil, err
	}

	workflow, changed, err := e.transition(ctx, c)
	if err != nil {
		otelhelper.SetError(span, err,
			attribute.String(otelhelper.WorkflowIDKey, c.id),
			attribute.String(otelhelper.ErrorKindKey, errorKind(err)))

		return nil, err
	}

	span.SetAttributes(
		attribute.String(otelhelper.WorkflowCategoryKey, string(workflow.Category)),
		attribute.String(otelhelper.WorkflowStateKey, string(workflow.State)),
	)

	if changed {
		e.notify(ctx, workflow)
	}

	return workflow, nil
}

// transition loads, decides, mutates and stores while holding the workflow's lock.
// changed is false when a duplicate creation found the workflow already there.
func (e *Engine) transition(ctx context.Context, c change) (*models.Workflow, bool, error) {
	unlock := e.locks.Lock(lockKey(c.owner, c.id))
	defer unlock()

	workflows := e.storeFor(c.owner)

	current, err := workflows.Load(ctx, c.id)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", c.op, err)
	}

	var next *models.Workflow

	if current == nil {
		created := c.categories[0]
		if c.action != rules.CreationAction(created) {
			return nil, false, fmt.Errorf("%s: %w: %s", c.op, ErrWorkflowNotFound, c.id)
		}

		next = models.NewWorkflow(c.id, c.owner, created, models.StateUnknown)
	} else {
		if !slices.Contains(c.categories, current.Category) {
			return nil, false, fmt.Errorf("%s: %w", c.op, &rules.RejectedError{
				Category: current.Category,
				State:    current.State,
				Action:   c.action,
				Reason:   "operation does not apply to this category",
			})
		}

		if current.Category == c.categories[0] && c.action == rules.CreationAction(current.Category) {
			e.logger.DebugContext(ctx, "Workflow already exists", "op", c.op, "workflow_id", c.id)

			return current, false, nil
		}

		next = current.Clone()
	}

	action := c.action
	if c.choose != nil {
		action = c.choose(next.State)
	}

	now := e.now()

	decision, err := rules.Decide(next.Category, next.State, action, rules.TimeContext{
		Now:     now,
		ValidTo: validTo(next),
		Final:   c.final,
	})
	if err != nil {
		e.logger.InfoContext(ctx, "Rejected workflow transition",
			"op", c.op,
			"workflow_id", c.id,
			"category", next.Category,
			"state", next.State,
			"action", action)

		return nil, false, fmt.Errorf("%s: %w", c.op, err)
	}

	event := models.Event{Type: decision.Event, Time: now, Success: true, Memo: c.memo}
	if c.source != nil {
		event.Source = c.source.Key()
	}

	next.State = decision.To
	next.AppendEvent(event)

	if c.record != nil {
		c.record(next)
	}

	release, err := e.claimSources(ctx, workflows, c.op, current, next)
	defer release()

	if err != nil {
		return nil, false, err
	}

	err = workflows.Store(ctx, next)
	if err != nil {
		e.logger.ErrorContext(ctx, "Failed to store workflow", "op", c.op, "workflow_id", c.id, "error", err)

		return nil, false, fmt.Errorf("%s: %w", c.op, err)
	}

	e.logger.InfoContext(ctx, "Workflow updated",
		"op", c.op,
		"workflow_id", c.id,
		"category", next.Category,
		"state", next.State,
		"event", decision.Event)

	return next, true, nil
}

// notify announces a committed change. Failures are logged and never undo the change.
func (e *Engine) notify(ctx context.Context, workflow *models.Workflow) {
	if e.notifier == nil {
		return
	}

	for _, account := range workflow.Accounts {
		err := e.notifier.AccountUpdated(ctx, workflow.Owner, account)
		if err != nil {
			e.logger.WarnContext(ctx, "Failed to announce account update",
				"owner", workflow.Owner, "account", account, "error", err)
		}
	}

	err := e.notifier.WorkflowChanged(ctx, workflow.Clone())
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to announce workflow change",
			"owner", workflow.Owner, "workflow_id", workflow.ID, "error", err)
	}
}

// errorKind names the class of err for traces.
func errorKind(err error) string {
	switch {
	case IsRejected(err):
		return "rejected"
	case IsNotFound(err):
		return "not_found"
	case errors.Is(err, ErrInvalidInstrument):
		return "invalid_instrument"
	case IsStorageError(err):
		return "storage"
	default:
		return "internal"
	}
}

func lockKey(owner, id string) string {
	return owner + "/" + id
}

func sourceLockKey(owner string, item models.SourceItem) string {
	return owner + "/src/" + item.Key()
}

// claimSources locks the source items next declares for the first time and checks that no
// other workflow owns them. Source locks are taken in key order after the workflow lock, so
// two writers never wait on each other in a cycle. release must be called once the write is
// done, even when err is non-nil.
func (e *Engine) claimSources(
	ctx context.Context,
	workflows *store.WorkflowStore,
	op string,
	current, next *models.Workflow,
) (func(), error) {
	var claimed []models.SourceItem

	for _, item := range next.SourceItems {
		if current != nil && slices.ContainsFunc(current.SourceItems, func(existing models.SourceItem) bool {
			return existing.Key() == item.Key()
		}) {
			continue
		}

		claimed = append(claimed, item)
	}

	slices.SortFunc(claimed, func(a, b models.SourceItem) int {
		return strings.Compare(a.Key(), b.Key())
	})

	unlocks := make([]func(), 0, len(claimed))
	release := func() {
		for _, unlock := range slices.Backward(unlocks) {
			unlock()
		}
	}

	for _, item := range claimed {
		unlocks = append(unlocks, e.locks.Lock(sourceLockKey(next.Owner, item)))

		owner, found, err := workflows.LookupBySource(ctx, item)
		if err != nil {
			return release, fmt.Errorf("%s: %w", op, err)
		}

		if found && owner != next.ID {
			e.logger.InfoContext(ctx, "Source item already claimed",
				"op", op,
				"workflow_id", next.ID,
				"source", item.Key(),
				"claimed_by", owner)

			return release, invalid(op, "%s already belongs to workflow %s", item.Key(), owner)
		}
	}

	return release, nil
}

// validTo returns the valid-to time of the instrument a workflow wraps, zero if none.
func validTo(workflow *models.Workflow) time.Time {
	for _, item := range workflow.SourceItems {
		switch item.Kind {
		case models.SourceKindCheque, models.SourceKindInvoice:
			cheque, err := models.DecodeSnapshot[models.Cheque](item)
			if err == nil {
				return cheque.ValidTo
			}
		case models.SourceKindCash:
			cash, err := models.DecodeSnapshot[models.Cash](item)
			if err == nil {
				return cash.ValidTo
			}
		case models.SourceKindTransfer, models.SourceKindReceipt:
		}
	}

	return time.Time{}
}

func (e *Engine) validateInstrument(op string, instrument any) error {
	err := e.validate.Struct(instrument)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrInvalidInstrument, err)
	}

	return nil
}

func invalid(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, ErrInvalidInstrument, fmt.Sprintf(format, args...))
}
