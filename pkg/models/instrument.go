package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Cheque carries the fields of a cheque or invoice that the workflow engine indexes or needs
// to test transitions. An invoice is a cheque with a negative amount.
type Cheque struct {
	ID                string    `json:"id"                 validate:"required"`
	TransactionNumber int64     `json:"transaction_number" validate:"gt=0"`
	Sender            string    `json:"sender"             validate:"required"`
	Recipient         string    `json:"recipient,omitempty"`
	Account           string    `json:"account"            validate:"required"`
	Unit              string    `json:"unit"               validate:"required"`
	Notary            string    `json:"notary"             validate:"required"`
	Amount            int64     `json:"amount"`
	ValidFrom         time.Time `json:"valid_from"`
	ValidTo           time.Time `json:"valid_to"`
	Memo              string    `json:"memo,omitempty"`
}

// IsInvoice reports whether the cheque requests funds instead of paying them.
func (c *Cheque) IsInvoice() bool {
	return c.Amount < 0
}

// Expired reports whether the validity window has elapsed at now. A zero ValidTo never
// expires.
func (c *Cheque) Expired(now time.Time) bool {
	return !c.ValidTo.IsZero() && now.After(c.ValidTo)
}

// SourceItem wraps the cheque as a workflow source item.
func (c *Cheque) SourceItem(revision int) (SourceItem, error) {
	kind := SourceKindCheque
	if c.IsInvoice() {
		kind = SourceKindInvoice
	}

	return newSourceItem(kind, c.ID, revision, c)
}

// Transfer carries the fields of an account-to-account transfer the engine needs.
type Transfer struct {
	ID                 string `json:"id"                  validate:"required"`
	TransactionNumber  int64  `json:"transaction_number"  validate:"gt=0"`
	Sender             string `json:"sender"              validate:"required"`
	Recipient          string `json:"recipient,omitempty"`
	SourceAccount      string `json:"source_account"      validate:"required"`
	DestinationAccount string `json:"destination_account" validate:"required"`
	Unit               string `json:"unit"                validate:"required"`
	Notary             string `json:"notary"              validate:"required"`
	Amount             int64  `json:"amount"              validate:"gt=0"`
	Memo               string `json:"memo,omitempty"`
}

// SourceItem wraps the transfer as a workflow source item.
func (t *Transfer) SourceItem(revision int) (SourceItem, error) {
	return newSourceItem(SourceKindTransfer, t.ID, revision, t)
}

// Cash is a purse of blinded tokens.
type Cash struct {
	ID        string    `json:"id"        validate:"required"`
	Sender    string    `json:"sender,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	Unit      string    `json:"unit"      validate:"required"`
	Notary    string    `json:"notary"    validate:"required"`
	Amount    int64     `json:"amount"    validate:"gt=0"`
	ValidTo   time.Time `json:"valid_to"`
}

// SourceItem wraps the purse as a workflow source item.
func (c *Cash) SourceItem(revision int) (SourceItem, error) {
	return newSourceItem(SourceKindCash, c.ID, revision, c)
}

// Receipt identifies a notary receipt (deposit, clearing or transfer receipt).
type Receipt struct {
	ID      string `json:"id"      validate:"required"`
	Account string `json:"account" validate:"required"`
	Final   bool   `json:"final"`
}

// SourceItem wraps the receipt as a workflow source item.
func (r *Receipt) SourceItem(revision int) (SourceItem, error) {
	return newSourceItem(SourceKindReceipt, r.ID, revision, r)
}

func newSourceItem(kind SourceKind, id string, revision int, instrument any) (SourceItem, error) {
	snapshot, err := json.Marshal(instrument)
	if err != nil {
		return SourceItem{}, fmt.Errorf("failed to serialize %s %s: %w", kind, id, err)
	}

	return SourceItem{Kind: kind, ID: id, Revision: revision, Snapshot: snapshot}, nil
}

// DecodeSnapshot restores the instrument serialized in a source item.
func DecodeSnapshot[T any](item SourceItem) (*T, error) {
	var out T

	if len(item.Snapshot) == 0 {
		return nil, fmt.Errorf("source item %s has no snapshot", item.Key())
	}

	err := json.Unmarshal(item.Snapshot, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot of %s: %w", item.Key(), err)
	}

	return &out, nil
}
