// Package events defines the change announcements published after workflow mutations.
package events

import (
	"encoding/json"
	"time"

	"github.com/dukex/payflow/pkg/models"
)

type EventType string

// Topic carries every workflow change announcement.
const Topic = "payflow.workflows"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	AccountUpdatedEvent  EventType = "account.updated"
	WorkflowChangedEvent EventType = "workflow.changed"
)

type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Owner     string    `json:"owner"`
}

// AccountUpdated announces that a workflow referencing the account changed. Only the
// account id is guaranteed.
type AccountUpdated struct {
	BaseEvent

	AccountID string `json:"account_id"`
}

func (a AccountUpdated) GetType() EventType {
	return AccountUpdatedEvent
}

// WorkflowChanged announces that a workflow was stored. Category, state and last event
// travel as wire codes.
type WorkflowChanged struct {
	BaseEvent

	WorkflowID string
	Category   models.Category
	State      models.State
	LastEvent  models.EventType
}

type workflowChangedWire struct {
	BaseEvent

	WorkflowID string `json:"workflow_id"`
	Category   uint8  `json:"category,omitempty"`
	State      uint8  `json:"state,omitempty"`
	LastEvent  uint8  `json:"last_event,omitempty"`
}

func (w WorkflowChanged) GetType() EventType {
	return WorkflowChangedEvent
}

func (w WorkflowChanged) MarshalJSON() ([]byte, error) {
	return json.Marshal(workflowChangedWire{
		BaseEvent:  w.BaseEvent,
		WorkflowID: w.WorkflowID,
		Category:   models.CategoryToWire(w.Category),
		State:      models.StateToWire(w.State),
		LastEvent:  models.EventTypeToWire(w.LastEvent),
	})
}

// UnmarshalJSON decodes the wire codes. Codes this build does not know become the Unknown
// variants.
func (w *WorkflowChanged) UnmarshalJSON(data []byte) error {
	var wire workflowChangedWire

	err := json.Unmarshal(data, &wire)
	if err != nil {
		return err
	}

	w.BaseEvent = wire.BaseEvent
	w.WorkflowID = wire.WorkflowID
	w.Category, _ = models.CategoryFromWire(wire.Category)
	w.State, _ = models.StateFromWire(wire.State)
	w.LastEvent, _ = models.EventTypeFromWire(wire.LastEvent)

	return nil
}

// NewAccountUpdated builds the announcement for account of owner.
func NewAccountUpdated(id, owner, account string, at time.Time) *AccountUpdated {
	return &AccountUpdated{
		BaseEvent: BaseEvent{ID: id, Type: AccountUpdatedEvent, Timestamp: at, Owner: owner},
		AccountID: account,
	}
}

// NewWorkflowChanged builds the announcement for workflow.
func NewWorkflowChanged(id string, workflow *models.Workflow, at time.Time) *WorkflowChanged {
	event := &WorkflowChanged{
		BaseEvent:  BaseEvent{ID: id, Type: WorkflowChangedEvent, Timestamp: at, Owner: workflow.Owner},
		WorkflowID: workflow.ID,
		Category:   workflow.Category,
		State:      workflow.State,
	}

	if n := len(workflow.Events); n > 0 {
		event.LastEvent = workflow.Events[n-1].Type
	}

	return event
}
