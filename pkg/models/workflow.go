// Package models defines the core domain models for payment instrument workflows.
package models

import (
	"slices"
	"time"
)

// Schema versions stamped on every persisted record. Each one may be incremented
// independently; readers accept any version up to the current one.
const (
	WorkflowVersion = 1
	SourceVersion   = 1
	EventVersion    = 1
)

// Category identifies the kind of instrument a workflow tracks. It never changes after
// the workflow is created.
type Category string

const (
	CategoryUnknown          Category = "unknown"
	CategoryOutgoingCheque   Category = "outgoing_cheque"
	CategoryIncomingCheque   Category = "incoming_cheque"
	CategoryOutgoingInvoice  Category = "outgoing_invoice"
	CategoryIncomingInvoice  Category = "incoming_invoice"
	CategoryOutgoingTransfer Category = "outgoing_transfer"
	CategoryIncomingTransfer Category = "incoming_transfer"
	CategoryInternalTransfer Category = "internal_transfer"
	CategoryOutgoingCash     Category = "outgoing_cash"
	CategoryIncomingCash     Category = "incoming_cash"
)

// Categories lists every known category in wire order.
var Categories = []Category{
	CategoryOutgoingCheque,
	CategoryIncomingCheque,
	CategoryOutgoingInvoice,
	CategoryIncomingInvoice,
	CategoryOutgoingTransfer,
	CategoryIncomingTransfer,
	CategoryInternalTransfer,
	CategoryOutgoingCash,
	CategoryIncomingCash,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return slices.Contains(Categories, c)
}

// State is the lifecycle position of a workflow.
type State string

const (
	StateUnknown      State = "unknown"
	StateUnsent       State = "unsent"
	StateConveyed     State = "conveyed"
	StateCancelled    State = "cancelled"
	StateAccepted     State = "accepted"
	StateCompleted    State = "completed"
	StateExpired      State = "expired"
	StateInitiated    State = "initiated"
	StateAborted      State = "aborted"
	StateAcknowledged State = "acknowledged"
	StateRejected     State = "rejected"
)

// States lists every known state in wire order.
var States = []State{
	StateUnsent,
	StateConveyed,
	StateCancelled,
	StateAccepted,
	StateCompleted,
	StateExpired,
	StateInitiated,
	StateAborted,
	StateAcknowledged,
	StateRejected,
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	return slices.Contains(States, s)
}

// EventType names an entry in a workflow's history.
type EventType string

const (
	EventUnknown     EventType = "unknown"
	EventCreate      EventType = "create"
	EventConvey      EventType = "convey"
	EventCancel      EventType = "cancel"
	EventAccept      EventType = "accept"
	EventComplete    EventType = "complete"
	EventAbort       EventType = "abort"
	EventAcknowledge EventType = "acknowledge"
	EventExpire      EventType = "expire"
	EventReject      EventType = "reject"
	EventClear       EventType = "clear"
)

// EventTypes lists every known event type in wire order.
var EventTypes = []EventType{
	EventCreate,
	EventConvey,
	EventCancel,
	EventAccept,
	EventComplete,
	EventAbort,
	EventAcknowledge,
	EventExpire,
	EventReject,
	EventClear,
}

// Event is one append-only entry in a workflow's history log.
type Event struct {
	Type    EventType `json:"type"`
	Time    time.Time `json:"time"`
	Success bool      `json:"success"`
	Version int       `json:"version"`
	Source  string    `json:"source,omitempty"` // source item key that caused the event
	Memo    string    `json:"memo,omitempty"`
}

// Workflow is the tracked lifecycle record for one payment instrument.
type Workflow struct {
	ID              string       `json:"id"`
	Owner           string       `json:"owner"` // local party whose wallet holds the workflow
	Category        Category     `json:"category"`
	State           State        `json:"state"`
	WorkflowVersion int          `json:"workflow_version"`
	SourceVersion   int          `json:"source_version"`
	EventVersion    int          `json:"event_version"`
	Parties         []string     `json:"parties"`
	Accounts        []string     `json:"accounts"`
	Units           []string     `json:"units"`
	Notary          string       `json:"notary,omitempty"`
	SourceItems     []SourceItem `json:"source_items"`
	Events          []Event      `json:"events"`
}

// NewWorkflow returns an empty workflow stamped with the current schema versions.
func NewWorkflow(id, owner string, category Category, state State) *Workflow {
	return &Workflow{
		ID:              id,
		Owner:           owner,
		Category:        category,
		State:           state,
		WorkflowVersion: WorkflowVersion,
		SourceVersion:   SourceVersion,
		EventVersion:    EventVersion,
		Parties:         []string{},
		Accounts:        []string{},
		Units:           []string{},
		SourceItems:     []SourceItem{},
		Events:          []Event{},
	}
}

// Clone returns a deep copy so callers can mutate it without touching a cached snapshot.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}

	out := *w
	out.Parties = slices.Clone(w.Parties)
	out.Accounts = slices.Clone(w.Accounts)
	out.Units = slices.Clone(w.Units)
	out.Events = slices.Clone(w.Events)

	out.SourceItems = make([]SourceItem, len(w.SourceItems))
	for i, item := range w.SourceItems {
		out.SourceItems[i] = item
		out.SourceItems[i].Snapshot = slices.Clone(item.Snapshot)
	}

	return &out
}

// AppendEvent records a new history entry. Events are never rewritten.
func (w *Workflow) AppendEvent(event Event) {
	if event.Version == 0 {
		event.Version = EventVersion
	}

	w.Events = append(w.Events, event)
}

// AddParty records a counterparty, keeping first-seen order.
func (w *Workflow) AddParty(party string) {
	if party != "" && !slices.Contains(w.Parties, party) {
		w.Parties = append(w.Parties, party)
	}
}

// AddAccount records an associated account. References are never dropped here.
func (w *Workflow) AddAccount(account string) {
	if account != "" && !slices.Contains(w.Accounts, account) {
		w.Accounts = append(w.Accounts, account)
	}
}

// AddUnit records a referenced unit definition.
func (w *Workflow) AddUnit(unit string) {
	if unit != "" && !slices.Contains(w.Units, unit) {
		w.Units = append(w.Units, unit)
	}
}

// PutSourceItem inserts item or replaces the entry with the same key, which is how a newer
// revision of the same instrument supersedes the previous snapshot.
func (w *Workflow) PutSourceItem(item SourceItem) {
	for i, existing := range w.SourceItems {
		if existing.Key() == item.Key() {
			w.SourceItems[i] = item

			return
		}
	}

	w.SourceItems = append(w.SourceItems, item)
}

// SourceItem returns the first source item of the given kind.
func (w *Workflow) SourceItem(kind SourceKind) (SourceItem, bool) {
	for _, item := range w.SourceItems {
		if item.Kind == kind {
			return item, true
		}
	}

	return SourceItem{}, false
}

// HasEvent reports whether a successful event of the given type was recorded.
func (w *Workflow) HasEvent(eventType EventType) bool {
	for _, event := range w.Events {
		if event.Type == eventType && event.Success {
			return true
		}
	}

	return false
}

// SelectEvent picks the event of the given type to show for display. A successful event
// wins over a failed one unless the failed one is strictly newer.
func SelectEvent(events []Event, eventType EventType) (Event, bool) {
	var (
		selected Event
		found    bool
	)

	for _, event := range events {
		if event.Type != eventType {
			continue
		}

		if !found {
			selected, found = event, true

			continue
		}

		switch {
		case event.Success && !selected.Success:
			if !event.Time.Before(selected.Time) {
				selected = event
			}
		case !event.Success && selected.Success:
			if event.Time.After(selected.Time) {
				selected = event
			}
		default:
			if !event.Time.Before(selected.Time) {
				selected = event
			}
		}
	}

	return selected, found
}
