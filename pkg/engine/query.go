package engine

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/rules"
)

// List returns the ids of owner's workflows, optionally restricted to a category and to a
// state. An empty category or state means no restriction; a state alone matches it in
// every category where it is legal.
func (e *Engine) List(ctx context.Context, owner string, category models.Category, state models.State) ([]string, error) {
	workflows := e.storeFor(owner)

	switch {
	case category == "" && state == "":
		return workflows.List(ctx)
	case category == "":
		var ids []string

		for _, c := range models.Categories {
			if !rules.IsLegalState(c, state) {
				continue
			}

			found, err := workflows.ListByState(ctx, c, state)
			if err != nil {
				return nil, err
			}

			ids = append(ids, found...)
		}

		return ids, nil
	case state == "":
		return workflows.ListByCategory(ctx, category)
	default:
		return workflows.ListByState(ctx, category, state)
	}
}

// WorkflowsByAccount returns the ids of owner's workflows referencing account.
func (e *Engine) WorkflowsByAccount(ctx context.Context, owner, account string) ([]string, error) {
	return e.storeFor(owner).ListByAccount(ctx, account)
}

// WorkflowsByUnit returns the ids of owner's workflows referencing unit.
func (e *Engine) WorkflowsByUnit(ctx context.Context, owner, unit string) ([]string, error) {
	return e.storeFor(owner).ListByUnit(ctx, unit)
}

// ArchivedWorkflows returns the ids of owner's workflows in a terminal state.
func (e *Engine) ArchivedWorkflows(ctx context.Context, owner string) ([]string, error) {
	return e.storeFor(owner).ListArchived(ctx)
}

// LoadWorkflow returns a snapshot of workflow id. The snapshot may already be one step
// behind a concurrent writer.
func (e *Engine) LoadWorkflow(ctx context.Context, owner, id string) (*models.Workflow, error) {
	workflow, err := e.storeFor(owner).Load(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, id)
	}

	return workflow, nil
}

// WorkflowState returns the current state of workflow id.
func (e *Engine) WorkflowState(ctx context.Context, owner, id string) (models.State, error) {
	workflow, err := e.LoadWorkflow(ctx, owner, id)
	if err != nil {
		return models.StateUnknown, err
	}

	return workflow.State, nil
}

// WorkflowType returns the category of workflow id.
func (e *Engine) WorkflowType(ctx context.Context, owner, id string) (models.Category, error) {
	workflow, err := e.LoadWorkflow(ctx, owner, id)
	if err != nil {
		return models.CategoryUnknown, err
	}

	return workflow.Category, nil
}

// WorkflowBySource returns the id of owner's workflow that wraps item.
func (e *Engine) WorkflowBySource(ctx context.Context, owner string, item models.SourceItem) (string, error) {
	id, found, err := e.storeFor(owner).LookupBySource(ctx, item)
	if err != nil {
		return "", err
	}

	if !found {
		return "", fmt.Errorf("%w: no workflow for %s", ErrWorkflowNotFound, item.Key())
	}

	return id, nil
}

// InstantiateCheque returns the state of workflow id together with the cheque or invoice
// it wraps.
func (e *Engine) InstantiateCheque(ctx context.Context, owner, id string) (models.State, *models.Cheque, error) {
	return instantiate[models.Cheque](ctx, e, owner, id, models.SourceKindCheque, models.SourceKindInvoice)
}

// InstantiateTransfer returns the state of workflow id together with the transfer it wraps.
func (e *Engine) InstantiateTransfer(ctx context.Context, owner, id string) (models.State, *models.Transfer, error) {
	return instantiate[models.Transfer](ctx, e, owner, id, models.SourceKindTransfer)
}

// InstantiateCash returns the state of workflow id together with the purse it wraps.
func (e *Engine) InstantiateCash(ctx context.Context, owner, id string) (models.State, *models.Cash, error) {
	return instantiate[models.Cash](ctx, e, owner, id, models.SourceKindCash)
}

func instantiate[T any](
	ctx context.Context,
	e *Engine,
	owner, id string,
	kinds ...models.SourceKind,
) (models.State, *T, error) {
	workflow, err := e.LoadWorkflow(ctx, owner, id)
	if err != nil {
		return models.StateUnknown, nil, err
	}

	for _, kind := range kinds {
		item, ok := workflow.SourceItem(kind)
		if !ok {
			continue
		}

		instrument, err := models.DecodeSnapshot[T](item)
		if err != nil {
			return models.StateUnknown, nil, fmt.Errorf("%w: %w", ErrInvalidInstrument, err)
		}

		return workflow.State, instrument, nil
	}

	return models.StateUnknown, nil, fmt.Errorf("%w: workflow %s does not wrap a %s", ErrInvalidInstrument, id, kinds[0])
}

var (
	chequeCategories = []models.Category{
		models.CategoryOutgoingCheque, models.CategoryOutgoingInvoice,
		models.CategoryIncomingCheque, models.CategoryIncomingInvoice,
	}
	cashCategories = []models.Category{models.CategoryIncomingCash}

	expirableCategories = slices.Concat(chequeCategories, cashCategories)
)

// ExpirableCheques returns the ids of owner's cheque and invoice workflows whose validity
// window has elapsed at now while they are still pending.
func (e *Engine) ExpirableCheques(ctx context.Context, owner string, now time.Time) ([]string, error) {
	return e.expirable(ctx, owner, now, chequeCategories)
}

// Expirable returns the ids of owner's cheque, invoice and received cash workflows that
// may be expired at now.
func (e *Engine) Expirable(ctx context.Context, owner string, now time.Time) ([]string, error) {
	return e.expirable(ctx, owner, now, expirableCategories)
}

// Expire moves workflow id to Expired whatever instrument it wraps. It is rejected unless
// the instrument's validity window has elapsed.
func (e *Engine) Expire(ctx context.Context, owner, id string) error {
	return e.expire(ctx, "Expire", owner, id, expirableCategories)
}

func (e *Engine) expire(ctx context.Context, op, owner, id string, categories []models.Category) error {
	_, err := e.apply(ctx, change{
		op:         op,
		owner:      owner,
		id:         id,
		categories: categories,
		action:     rules.ActionExpire,
	})

	return err
}

func (e *Engine) expirable(ctx context.Context, owner string, now time.Time, categories []models.Category) ([]string, error) {
	workflows := e.storeFor(owner)
	ids := make([]string, 0)

	for _, category := range categories {
		for _, state := range []models.State{models.StateUnsent, models.StateConveyed} {
			if !rules.IsLegalState(category, state) {
				continue
			}

			candidates, err := workflows.ListByState(ctx, category, state)
			if err != nil {
				return nil, err
			}

			for _, id := range candidates {
				workflow, err := workflows.Load(ctx, id)
				if err != nil {
					return nil, err
				}

				if workflow == nil {
					continue
				}

				if rules.Expirable(workflow.Category, workflow.State, rules.TimeContext{Now: now, ValidTo: validTo(workflow)}) {
					ids = append(ids, id)
				}
			}
		}
	}

	return ids, nil
}

// PurgeWorkflow removes a workflow that reached a terminal state together with its index
// entries. Workflows still in progress are refused.
func (e *Engine) PurgeWorkflow(ctx context.Context, owner, id string) error {
	unlock := e.locks.Lock(lockKey(owner, id))
	defer unlock()

	workflows := e.storeFor(owner)

	workflow, err := workflows.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("PurgeWorkflow: %w", err)
	}

	if workflow == nil {
		return fmt.Errorf("PurgeWorkflow: %w: %s", ErrWorkflowNotFound, id)
	}

	if !rules.IsTerminal(workflow.Category, workflow.State) {
		return fmt.Errorf("PurgeWorkflow: %w", &rules.RejectedError{
			Category: workflow.Category,
			State:    workflow.State,
			Reason:   "workflow is still in progress",
		})
	}

	err = workflows.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("PurgeWorkflow: %w", err)
	}

	e.logger.InfoContext(ctx, "Purged workflow", "owner", owner, "workflow_id", id)

	return nil
}
