// Package testutil provides test data builders for payment instruments.
package testutil

import (
	"time"

	"github.com/dukex/payflow/pkg/models"
)

// CreateTestCheque creates a cheque from sender with default values that can be overridden.
func CreateTestCheque(id, sender string, overrides ...func(*models.Cheque)) *models.Cheque {
	cheque := &models.Cheque{
		ID:                id,
		TransactionNumber: 42,
		Sender:            sender,
		Recipient:         "nym-bob",
		Account:           "A1",
		Unit:              "unit-usd",
		Notary:            "notary-1",
		Amount:            100,
		ValidTo:           time.Now().UTC().Add(24 * time.Hour),
	}

	for _, override := range overrides {
		override(cheque)
	}

	return cheque
}

// AsInvoice turns the cheque into an invoice of the same magnitude.
func AsInvoice() func(*models.Cheque) {
	return func(c *models.Cheque) {
		if c.Amount > 0 {
			c.Amount = -c.Amount
		}
	}
}

// ValidUntil sets the end of the cheque's validity window.
func ValidUntil(validTo time.Time) func(*models.Cheque) {
	return func(c *models.Cheque) {
		c.ValidTo = validTo
	}
}

// CreateTestTransfer creates a transfer from sender with default values that can be
// overridden.
func CreateTestTransfer(id, sender string, overrides ...func(*models.Transfer)) *models.Transfer {
	transfer := &models.Transfer{
		ID:                 id,
		TransactionNumber:  7,
		Sender:             sender,
		Recipient:          "nym-bob",
		SourceAccount:      "A1",
		DestinationAccount: "B1",
		Unit:               "unit-usd",
		Notary:             "notary-1",
		Amount:             250,
	}

	for _, override := range overrides {
		override(transfer)
	}

	return transfer
}

// CreateTestCash creates a purse with default values that can be overridden.
func CreateTestCash(id string, overrides ...func(*models.Cash)) *models.Cash {
	cash := &models.Cash{
		ID:     id,
		Sender: "nym-bob",
		Unit:   "unit-usd",
		Notary: "notary-1",
		Amount: 10,
	}

	for _, override := range overrides {
		override(cash)
	}

	return cash
}

// CreateTestReceipt creates a notary receipt for account.
func CreateTestReceipt(id, account string, final bool) *models.Receipt {
	return &models.Receipt{ID: id, Account: account, Final: final}
}
