package engine

import (
	"context"

	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/rules"
)

// A transfer between two accounts of the same owner is tracked by one internal workflow
// instead of an outgoing and an incoming one.
func isInternal(owner string, transfer *models.Transfer) bool {
	return transfer.Recipient == "" || transfer.Recipient == owner
}

func (e *Engine) transferItem(op, owner string, transfer *models.Transfer) (models.SourceItem, string, error) {
	if transfer == nil {
		return models.SourceItem{}, "", invalid(op, "transfer is required")
	}

	err := e.validateInstrument(op, transfer)
	if err != nil {
		return models.SourceItem{}, "", err
	}

	item, err := transfer.SourceItem(1)
	if err != nil {
		return models.SourceItem{}, "", invalid(op, "%v", err)
	}

	return item, models.DeriveID(owner, item), nil
}

// CreateTransfer records a transfer owner initiated and returns its workflow id.
func (e *Engine) CreateTransfer(ctx context.Context, owner string, transfer *models.Transfer) (string, error) {
	item, id, err := e.transferItem("CreateTransfer", owner, transfer)
	if err != nil {
		return "", err
	}

	if transfer.Sender != owner {
		return "", invalid("CreateTransfer", "transfer %s was not initiated by %s", transfer.ID, owner)
	}

	category := models.CategoryOutgoingTransfer
	if isInternal(owner, transfer) {
		category = models.CategoryInternalTransfer
	}

	_, err = e.apply(ctx, change{
		op:         "CreateTransfer",
		owner:      owner,
		id:         id,
		categories: []models.Category{category},
		action:     rules.ActionCreate,
		source:     &item,
		memo:       transfer.Memo,
		record: func(workflow *models.Workflow) {
			workflow.PutSourceItem(item)
			workflow.AddAccount(transfer.SourceAccount)

			if category == models.CategoryInternalTransfer {
				workflow.AddAccount(transfer.DestinationAccount)
			} else {
				workflow.AddParty(transfer.Recipient)
			}

			workflow.AddUnit(transfer.Unit)
			workflow.Notary = transfer.Notary
		},
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// ConveyTransfer records a transfer arriving in one of owner's accounts. For an internal
// transfer it moves the existing workflow forward; otherwise it creates the incoming one.
func (e *Engine) ConveyTransfer(ctx context.Context, owner string, transfer *models.Transfer) (string, error) {
	item, id, err := e.transferItem("ConveyTransfer", owner, transfer)
	if err != nil {
		return "", err
	}

	_, err = e.apply(ctx, change{
		op:    "ConveyTransfer",
		owner: owner,
		id:    id,
		categories: []models.Category{
			models.CategoryIncomingTransfer, models.CategoryInternalTransfer,
		},
		action: rules.ActionConvey,
		source: &item,
		record: func(workflow *models.Workflow) {
			workflow.PutSourceItem(item)
			workflow.AddAccount(transfer.DestinationAccount)
			workflow.AddUnit(transfer.Unit)

			if transfer.Sender != owner {
				workflow.AddParty(transfer.Sender)
			}

			workflow.Notary = transfer.Notary
		},
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// AcknowledgeTransfer records the notary's acknowledgement of an outgoing or internal
// transfer.
func (e *Engine) AcknowledgeTransfer(ctx context.Context, owner string, transfer *models.Transfer, receipt *models.Receipt) error {
	return e.advanceTransfer(ctx, "AcknowledgeTransfer", owner, transfer, receipt, rules.ActionAcknowledge,
		models.CategoryOutgoingTransfer, models.CategoryInternalTransfer)
}

// AbortTransfer records that the notary refused a transfer before acknowledging it.
func (e *Engine) AbortTransfer(ctx context.Context, owner string, transfer *models.Transfer) error {
	return e.advanceTransfer(ctx, "AbortTransfer", owner, transfer, nil, rules.ActionAbort,
		models.CategoryOutgoingTransfer, models.CategoryInternalTransfer)
}

// AcceptTransfer records that the recipient accepted a pending transfer.
func (e *Engine) AcceptTransfer(ctx context.Context, owner string, transfer *models.Transfer, receipt *models.Receipt) error {
	return e.advanceTransfer(ctx, "AcceptTransfer", owner, transfer, receipt, rules.ActionAccept,
		models.CategoryIncomingTransfer, models.CategoryOutgoingTransfer, models.CategoryInternalTransfer)
}

// ClearTransfer records the transfer receipt that settles a transfer.
func (e *Engine) ClearTransfer(ctx context.Context, owner string, transfer *models.Transfer, receipt *models.Receipt) error {
	return e.advanceTransfer(ctx, "ClearTransfer", owner, transfer, receipt, rules.ActionClear,
		models.CategoryOutgoingTransfer, models.CategoryIncomingTransfer, models.CategoryInternalTransfer)
}

// CompleteTransfer records that an outgoing or internal transfer reached its final state.
func (e *Engine) CompleteTransfer(ctx context.Context, owner string, transfer *models.Transfer, receipt *models.Receipt) error {
	return e.advanceTransfer(ctx, "CompleteTransfer", owner, transfer, receipt, rules.ActionComplete,
		models.CategoryOutgoingTransfer, models.CategoryInternalTransfer)
}

func (e *Engine) advanceTransfer(
	ctx context.Context,
	op, owner string,
	transfer *models.Transfer,
	receipt *models.Receipt,
	action rules.Action,
	categories ...models.Category,
) error {
	item, id, err := e.transferItem(op, owner, transfer)
	if err != nil {
		return err
	}

	source := &item

	if receipt != nil {
		receiptItem, err := e.receiptItem(op, receipt)
		if err != nil {
			return err
		}

		source = &receiptItem
	}

	_, err = e.apply(ctx, change{
		op:         op,
		owner:      owner,
		id:         id,
		categories: categories,
		action:     action,
		source:     source,
		record: func(workflow *models.Workflow) {
			if receipt != nil {
				workflow.PutSourceItem(*source)
				workflow.AddAccount(receipt.Account)
			}
		},
	})

	return err
}
