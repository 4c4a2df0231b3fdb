package engine

import (
	"context"
	"time"

	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/rules"
)

func (e *Engine) cashItem(op, owner string, purse *models.Cash) (models.SourceItem, string, error) {
	if purse == nil {
		return models.SourceItem{}, "", invalid(op, "purse is required")
	}

	err := e.validateInstrument(op, purse)
	if err != nil {
		return models.SourceItem{}, "", err
	}

	item, err := purse.SourceItem(1)
	if err != nil {
		return models.SourceItem{}, "", invalid(op, "%v", err)
	}

	return item, models.DeriveID(owner, item), nil
}

// ReceiveCash records a purse delivered to owner in message messageID and returns its
// workflow id.
func (e *Engine) ReceiveCash(ctx context.Context, owner string, purse *models.Cash, messageID string) (string, error) {
	item, id, err := e.cashItem("ReceiveCash", owner, purse)
	if err != nil {
		return "", err
	}

	memo := ""
	if messageID != "" {
		memo = "message " + messageID
	}

	_, err = e.apply(ctx, change{
		op:         "ReceiveCash",
		owner:      owner,
		id:         id,
		categories: []models.Category{models.CategoryIncomingCash},
		action:     rules.ActionConvey,
		source:     &item,
		memo:       memo,
		record: func(workflow *models.Workflow) {
			workflow.PutSourceItem(item)
			workflow.AddUnit(purse.Unit)
			workflow.AddParty(purse.Sender)
			workflow.Notary = purse.Notary
		},
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// AllocateCash records a purse owner set aside for recipient and returns its workflow id.
func (e *Engine) AllocateCash(ctx context.Context, owner string, purse *models.Cash) (string, error) {
	item, id, err := e.cashItem("AllocateCash", owner, purse)
	if err != nil {
		return "", err
	}

	_, err = e.apply(ctx, change{
		op:         "AllocateCash",
		owner:      owner,
		id:         id,
		categories: []models.Category{models.CategoryOutgoingCash},
		action:     rules.ActionCreate,
		source:     &item,
		record: func(workflow *models.Workflow) {
			workflow.PutSourceItem(item)
			workflow.AddUnit(purse.Unit)
			workflow.AddParty(purse.Recipient)
			workflow.Notary = purse.Notary
		},
	})
	if err != nil {
		return "", err
	}

	return id, nil
}

// SendCash records that an allocated purse was delivered to its recipient.
func (e *Engine) SendCash(ctx context.Context, owner string, purse *models.Cash) error {
	item, id, err := e.cashItem("SendCash", owner, purse)
	if err != nil {
		return err
	}

	_, err = e.apply(ctx, change{
		op:         "SendCash",
		owner:      owner,
		id:         id,
		categories: []models.Category{models.CategoryOutgoingCash},
		action:     rules.ActionConvey,
		source:     &item,
	})

	return err
}

// DepositCash records that a purse was deposited into account, either by its recipient
// or by owner taking back an allocated purse.
func (e *Engine) DepositCash(ctx context.Context, owner, account string, purse *models.Cash) error {
	item, id, err := e.cashItem("DepositCash", owner, purse)
	if err != nil {
		return err
	}

	if account == "" {
		return invalid("DepositCash", "account is required")
	}

	_, err = e.apply(ctx, change{
		op:         "DepositCash",
		owner:      owner,
		id:         id,
		categories: []models.Category{models.CategoryIncomingCash, models.CategoryOutgoingCash},
		action:     rules.ActionAccept,
		source:     &item,
		record: func(workflow *models.Workflow) {
			workflow.AddAccount(account)
		},
	})

	return err
}

// CancelCash records that an allocated purse was never sent.
func (e *Engine) CancelCash(ctx context.Context, owner string, purse *models.Cash) error {
	item, id, err := e.cashItem("CancelCash", owner, purse)
	if err != nil {
		return err
	}

	_, err = e.apply(ctx, change{
		op:         "CancelCash",
		owner:      owner,
		id:         id,
		categories: []models.Category{models.CategoryOutgoingCash},
		action:     rules.ActionCancel,
		source:     &item,
	})

	return err
}

// ExpireCash moves the incoming cash workflow id to Expired once the purse's validity
// window has elapsed.
func (e *Engine) ExpireCash(ctx context.Context, owner, id string) error {
	return e.expire(ctx, "ExpireCash", owner, id, cashCategories)
}

// ExpirableCash returns the ids of owner's received purses whose validity window has
// elapsed at now while they are still undeposited.
func (e *Engine) ExpirableCash(ctx context.Context, owner string, now time.Time) ([]string, error) {
	return e.expirable(ctx, owner, now, cashCategories)
}
