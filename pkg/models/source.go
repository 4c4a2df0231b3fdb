package models

import (
	"github.com/google/uuid"
)

// SourceKind identifies the kind of instrument instance a source item refers to.
type SourceKind string

const (
	SourceKindCheque   SourceKind = "cheque"
	SourceKindInvoice  SourceKind = "invoice"
	SourceKindTransfer SourceKind = "transfer"
	SourceKindReceipt  SourceKind = "receipt"
	SourceKindCash     SourceKind = "cash"
)

// SourceItem describes one underlying instrument instance wrapped by a workflow. At most one
// workflow per owner may claim a given key.
type SourceItem struct {
	Kind     SourceKind `json:"kind"`
	ID       string     `json:"id"`
	Revision int        `json:"revision"`
	Snapshot []byte     `json:"snapshot,omitempty"` // serialized instrument
}

// Key is the index key of the item: kind and id, independent of revision.
func (s SourceItem) Key() string {
	return string(s.Kind) + ":" + s.ID
}

// workflowNamespace seeds the content-addressed workflow identifiers. Changing it, or the
// name layout in DeriveID, changes every identifier and requires a data migration.
var workflowNamespace = uuid.MustParse("6f1c0e4a-2b7d-5c83-9a41-3e5d7b9f0c12")

// DeriveID returns the stable workflow identifier for the workflow that owner creates from
// item. Processing the same instrument twice yields the same identifier.
func DeriveID(owner string, item SourceItem) string {
	name := owner + "\x00" + string(item.Kind) + "\x00" + item.ID

	return uuid.NewSHA1(workflowNamespace, []byte(name)).String()
}
