package engine

import (
	"context"

	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/rules"
)

func outgoingChequeCategory(cheque *models.Cheque) models.Category {
	if cheque.IsInvoice() {
		return models.CategoryOutgoingInvoice
	}

	return models.CategoryOutgoingCheque
}

func incomingChequeCategory(cheque *models.Cheque) models.Category {
	if cheque.IsInvoice() {
		return models.CategoryIncomingInvoice
	}

	return models.CategoryIncomingCheque
}

// chequeItem validates cheque and returns its source item and workflow id.
func (e *Engine) chequeItem(op, owner string, cheque *models.Cheque) (models.SourceItem, string, error) {
	if cheque == nil {
		return models.SourceItem{}, "", invalid(op, "cheque is required")
	}

	err := e.validateInstrument(op, cheque)
	if err != nil {
		return models.SourceItem{}, "", err
	}

	item, err := cheque.SourceItem(1)
	if err != nil {
		return models.SourceItem{}, "", invalid(op, "%v", err)
	}

	return item, models.DeriveID(owner, item), nil
}

func (e *Engine) writeCheque(ctx context.Context, op, owner string, cheque *models.Cheque) (string, error) {
	item, id, err := e.chequeItem(op, owner, cheque)
	if err != nil {
		return "", err
	}

	if cheque.Sender != owner {
		return "", invalid(op, "cheque %s was not written by %s", cheque.ID, owner)
	}

	_, err = e.apply(ctx, change{
		op:         op,
		owner:      owner,
		id:         id,
		categories: []models.Category{outgoingChequeCategory(cheque)},
		action:     rules.ActionCreate,
		source:     &item,
		memo:       cheque.Memo,
		record: func(workflow *models.Workflow) {
			workflow.PutSourceItem(item)
			workflow.AddAccount(cheque.Account)
			workflow.AddUnit(cheque.Unit)
			workflow.AddParty(cheque.Recipient)
			workflow.Notary = cheque.Notary
		},
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// CreateCheque records a cheque owner has just written and returns its workflow id.
// Calling it again for the same cheque returns the same id and changes nothing.
func (e *Engine) CreateCheque(ctx context.Context, owner string, cheque *models.Cheque) (string, error) {
	if cheque != nil && cheque.IsInvoice() {
		return "", invalid("CreateCheque", "cheque %s has a negative amount", cheque.ID)
	}

	return e.writeCheque(ctx, "CreateCheque", owner, cheque)
}

// CreateInvoice records an invoice owner has just written and returns its workflow id.
func (e *Engine) CreateInvoice(ctx context.Context, owner string, invoice *models.Cheque) (string, error) {
	if invoice != nil && !invoice.IsInvoice() {
		return "", invalid("CreateInvoice", "invoice %s has a non-negative amount", invoice.ID)
	}

	return e.writeCheque(ctx, "CreateInvoice", owner, invoice)
}

// SendCheque records that an outgoing cheque or invoice was delivered to its recipient.
func (e *Engine) SendCheque(ctx context.Context, owner string, cheque *models.Cheque, recipient string) error {
	item, id, err := e.chequeItem("SendCheque", owner, cheque)
	if err != nil {
		return err
	}

	_, err = e.apply(ctx, change{
		op:         "SendCheque",
		owner:      owner,
		id:         id,
		categories: []models.Category{outgoingChequeCategory(cheque)},
		action:     rules.ActionConvey,
		source:     &item,
		record: func(workflow *models.Workflow) {
			workflow.AddParty(recipient)
		},
	})

	return err
}

// CancelCheque records that owner cancelled an outgoing cheque or invoice.
func (e *Engine) CancelCheque(ctx context.Context, owner string, cheque *models.Cheque) error {
	item, id, err := e.chequeItem("CancelCheque", owner, cheque)
	if err != nil {
		return err
	}

	_, err = e.apply(ctx, change{
		op:         "CancelCheque",
		owner:      owner,
		id:         id,
		categories: []models.Category{outgoingChequeCategory(cheque)},
		action:     rules.ActionCancel,
		source:     &item,
	})

	return err
}

// ClearCheque records a notary receipt showing the recipient deposited an outgoing cheque
// or paid an outgoing invoice, before the final clearing receipt arrived.
func (e *Engine) ClearCheque(ctx context.Context, owner string, cheque *models.Cheque, receipt *models.Receipt) error {
	return e.acceptOutgoingCheque(ctx, "ClearCheque", owner, cheque, receipt, false)
}

// FinishCheque records the final clearing receipt of an outgoing cheque or invoice.
func (e *Engine) FinishCheque(ctx context.Context, owner string, cheque *models.Cheque, receipt *models.Receipt) error {
	return e.acceptOutgoingCheque(ctx, "FinishCheque", owner, cheque, receipt, true)
}

func (e *Engine) acceptOutgoingCheque(
	ctx context.Context,
	op, owner string,
	cheque *models.Cheque,
	receipt *models.Receipt,
	final bool,
) error {
	_, id, err := e.chequeItem(op, owner, cheque)
	if err != nil {
		return err
	}

	receiptItem, err := e.receiptItem(op, receipt)
	if err != nil {
		return err
	}

	_, err = e.apply(ctx, change{
		op:         op,
		owner:      owner,
		id:         id,
		categories: []models.Category{outgoingChequeCategory(cheque)},
		action:     rules.ActionAccept,
		choose: func(state models.State) rules.Action {
			if final && state == models.StateAccepted {
				return rules.ActionClear
			}

			return rules.ActionAccept
		},
		final:  final,
		source: &receiptItem,
		record: func(workflow *models.Workflow) {
			workflow.PutSourceItem(receiptItem)
			workflow.AddAccount(receipt.Account)
		},
	})

	return err
}

func (e *Engine) conveyCheque(ctx context.Context, op, owner string, cheque *models.Cheque, memo string) (string, error) {
	item, id, err := e.chequeItem(op, owner, cheque)
	if err != nil {
		return "", err
	}

	if cheque.Sender == owner {
		return "", invalid(op, "cheque %s was written by %s", cheque.ID, owner)
	}

	if cheque.Recipient != "" && cheque.Recipient != owner {
		return "", invalid(op, "cheque %s is payable to %s", cheque.ID, cheque.Recipient)
	}

	_, err = e.apply(ctx, change{
		op:         op,
		owner:      owner,
		id:         id,
		categories: []models.Category{incomingChequeCategory(cheque)},
		action:     rules.ActionConvey,
		source:     &item,
		memo:       memo,
		record: func(workflow *models.Workflow) {
			workflow.PutSourceItem(item)
			workflow.AddUnit(cheque.Unit)
			workflow.AddParty(cheque.Sender)
			workflow.Notary = cheque.Notary
		},
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// ReceiveCheque records an incoming cheque or invoice delivered in message messageID.
func (e *Engine) ReceiveCheque(ctx context.Context, owner string, cheque *models.Cheque, messageID string) (string, error) {
	memo := ""
	if messageID != "" {
		memo = "message " + messageID
	}

	return e.conveyCheque(ctx, "ReceiveCheque", owner, cheque, memo)
}

// ReceiveInvoice records an incoming invoice delivered in message messageID.
func (e *Engine) ReceiveInvoice(ctx context.Context, owner string, invoice *models.Cheque, messageID string) (string, error) {
	if invoice != nil && !invoice.IsInvoice() {
		return "", invalid("ReceiveInvoice", "invoice %s has a non-negative amount", invoice.ID)
	}

	return e.ReceiveCheque(ctx, owner, invoice, messageID)
}

// ImportCheque records an incoming cheque or invoice obtained out of band.
func (e *Engine) ImportCheque(ctx context.Context, owner string, cheque *models.Cheque) (string, error) {
	return e.conveyCheque(ctx, "ImportCheque", owner, cheque, "imported")
}

// DepositCheque records that owner deposited an incoming cheque into account.
func (e *Engine) DepositCheque(ctx context.Context, owner, account string, cheque *models.Cheque) error {
	if cheque != nil && cheque.IsInvoice() {
		return invalid("DepositCheque", "%s is an invoice", cheque.ID)
	}

	return e.acceptIncomingCheque(ctx, "DepositCheque", owner, account, cheque)
}

// PayInvoice records that owner paid an incoming invoice from account.
func (e *Engine) PayInvoice(ctx context.Context, owner, account string, invoice *models.Cheque) error {
	if invoice != nil && !invoice.IsInvoice() {
		return invalid("PayInvoice", "%s is not an invoice", invoice.ID)
	}

	return e.acceptIncomingCheque(ctx, "PayInvoice", owner, account, invoice)
}

func (e *Engine) acceptIncomingCheque(ctx context.Context, op, owner, account string, cheque *models.Cheque) error {
	item, id, err := e.chequeItem(op, owner, cheque)
	if err != nil {
		return err
	}

	if account == "" {
		return invalid(op, "account is required")
	}

	_, err = e.apply(ctx, change{
		op:         op,
		owner:      owner,
		id:         id,
		categories: []models.Category{incomingChequeCategory(cheque)},
		action:     rules.ActionAccept,
		source:     &item,
		record: func(workflow *models.Workflow) {
			workflow.AddAccount(account)
		},
	})

	return err
}

// RejectCheque records that owner refused an incoming cheque or invoice.
func (e *Engine) RejectCheque(ctx context.Context, owner string, cheque *models.Cheque) error {
	item, id, err := e.chequeItem("RejectCheque", owner, cheque)
	if err != nil {
		return err
	}

	_, err = e.apply(ctx, change{
		op:         "RejectCheque",
		owner:      owner,
		id:         id,
		categories: []models.Category{incomingChequeCategory(cheque)},
		action:     rules.ActionReject,
		source:     &item,
	})

	return err
}

// ExpireCheque moves the cheque or invoice workflow id to Expired. It is rejected unless
// the instrument's validity window has elapsed.
func (e *Engine) ExpireCheque(ctx context.Context, owner, id string) error {
	return e.expire(ctx, "ExpireCheque", owner, id, chequeCategories)
}

func (e *Engine) receiptItem(op string, receipt *models.Receipt) (models.SourceItem, error) {
	if receipt == nil {
		return models.SourceItem{}, invalid(op, "receipt is required")
	}

	err := e.validateInstrument(op, receipt)
	if err != nil {
		return models.SourceItem{}, err
	}

	item, err := receipt.SourceItem(1)
	if err != nil {
		return models.SourceItem{}, invalid(op, "%v", err)
	}

	return item, nil
}
