// Package rules decides which lifecycle actions are legal for a payment workflow.
//
// Every function here is pure: no I/O and no shared state. A rejected decision has no side
// effect and the caller must not apply or persist anything.
package rules

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukex/payflow/pkg/models"
)

// Action is a proposed lifecycle step.
type Action string

const (
	ActionCreate      Action = "create"
	ActionConvey      Action = "convey"
	ActionCancel      Action = "cancel"
	ActionAccept      Action = "accept"
	ActionClear       Action = "clear"
	ActionExpire      Action = "expire"
	ActionAbort       Action = "abort"
	ActionAcknowledge Action = "acknowledge"
	ActionComplete    Action = "complete"
	ActionReject      Action = "reject"
)

// ErrRejectedTransition is the sentinel for every illegal transition.
var ErrRejectedTransition = errors.New("rejected transition")

// RejectedError reports the triple that was refused.
type RejectedError struct {
	Category models.Category
	State    models.State
	Action   Action
	Reason   string
}

func (e *RejectedError) Error() string {
	msg := fmt.Sprintf("%s of %s workflow in state %s is not allowed", e.Action, e.Category, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}

	return msg
}

func (e *RejectedError) Unwrap() error {
	return ErrRejectedTransition
}

// IsRejected reports whether err is a rejected transition.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejectedTransition)
}

// TimeContext carries the external data some decisions depend on.
type TimeContext struct {
	Now     time.Time
	ValidTo time.Time // instrument's own valid-to timestamp, zero if it never expires
	Final   bool      // the accepting receipt is the final clearing receipt
}

// Decision is the outcome of an approved action.
type Decision struct {
	To    models.State
	Event models.EventType
}

// IsTerminal reports whether no action may move a workflow of category c out of state s.
//
// Expired is terminal except for outgoing cheques and invoices and incoming cheques and
// invoices, which may still be cancelled or cleared after their validity window elapsed.
func IsTerminal(c models.Category, s models.State) bool {
	switch s {
	case models.StateCancelled, models.StateCompleted, models.StateAborted, models.StateRejected:
		return true
	case models.StateExpired:
		return !lateSettlement(c)
	case models.StateUnknown, models.StateUnsent, models.StateConveyed, models.StateAccepted,
		models.StateInitiated, models.StateAcknowledged:
		return false
	}

	return false
}

func lateSettlement(c models.Category) bool {
	switch c {
	case models.CategoryOutgoingCheque, models.CategoryOutgoingInvoice,
		models.CategoryIncomingCheque, models.CategoryIncomingInvoice:
		return true
	case models.CategoryUnknown, models.CategoryOutgoingTransfer, models.CategoryIncomingTransfer,
		models.CategoryInternalTransfer, models.CategoryOutgoingCash, models.CategoryIncomingCash:
		return false
	}

	return false
}

// Initial returns the state a freshly created workflow of category c starts in.
func Initial(c models.Category) (models.State, error) {
	switch c {
	case models.CategoryOutgoingCheque, models.CategoryOutgoingInvoice, models.CategoryOutgoingCash:
		return models.StateUnsent, nil
	case models.CategoryIncomingCheque, models.CategoryIncomingInvoice,
		models.CategoryIncomingTransfer, models.CategoryIncomingCash:
		return models.StateConveyed, nil
	case models.CategoryOutgoingTransfer, models.CategoryInternalTransfer:
		return models.StateInitiated, nil
	case models.CategoryUnknown:
		return models.StateUnknown, fmt.Errorf("no initial state for %s category", c)
	}

	return models.StateUnknown, fmt.Errorf("no initial state for %s category", c)
}

// LegalStates lists every state a workflow of category c may be in.
func LegalStates(c models.Category) []models.State {
	switch c {
	case models.CategoryOutgoingCheque, models.CategoryOutgoingInvoice:
		return []models.State{
			models.StateUnsent, models.StateConveyed, models.StateCancelled,
			models.StateAccepted, models.StateCompleted, models.StateExpired,
		}
	case models.CategoryIncomingCheque, models.CategoryIncomingInvoice:
		return []models.State{
			models.StateConveyed, models.StateCompleted, models.StateExpired, models.StateRejected,
		}
	case models.CategoryOutgoingTransfer, models.CategoryInternalTransfer:
		return []models.State{
			models.StateInitiated, models.StateAcknowledged, models.StateAccepted,
			models.StateCompleted, models.StateAborted,
		}
	case models.CategoryIncomingTransfer:
		return []models.State{models.StateConveyed, models.StateCompleted}
	case models.CategoryOutgoingCash:
		return []models.State{
			models.StateUnsent, models.StateConveyed, models.StateCompleted, models.StateCancelled,
		}
	case models.CategoryIncomingCash:
		return []models.State{models.StateConveyed, models.StateCompleted, models.StateExpired}
	case models.CategoryUnknown:
		return nil
	}

	return nil
}

// IsLegalState reports whether s belongs to LegalStates(c).
func IsLegalState(c models.Category, s models.State) bool {
	for _, legal := range LegalStates(c) {
		if legal == s {
			return true
		}
	}

	return false
}

// Expirable reports whether a workflow of category c in state s may move to Expired at
// tc.Now, which requires the instrument's valid-to time to have elapsed.
func Expirable(c models.Category, s models.State, tc TimeContext) bool {
	if tc.ValidTo.IsZero() || !tc.Now.After(tc.ValidTo) {
		return false
	}

	switch c {
	case models.CategoryOutgoingCheque, models.CategoryOutgoingInvoice:
		return s == models.StateUnsent || s == models.StateConveyed
	case models.CategoryIncomingCheque, models.CategoryIncomingInvoice, models.CategoryIncomingCash:
		return s == models.StateConveyed
	case models.CategoryOutgoingTransfer, models.CategoryIncomingTransfer,
		models.CategoryInternalTransfer, models.CategoryOutgoingCash, models.CategoryUnknown:
		return false
	}

	return false
}

// Decide returns the resulting state and event type when action is applied to a workflow
// of category c currently in state s, or a *RejectedError.
func Decide(c models.Category, s models.State, action Action, tc TimeContext) (Decision, error) {
	if s == models.StateUnknown {
		decision, ok := created(c, action)
		if !ok {
			return Decision{}, reject(c, s, action, "workflow does not exist yet")
		}

		return decision, nil
	}

	if !IsLegalState(c, s) {
		return Decision{}, reject(c, s, action, "state is not legal for category")
	}

	if IsTerminal(c, s) {
		return Decision{}, reject(c, s, action, "workflow is finished")
	}

	if action == ActionExpire {
		if !Expirable(c, s, tc) {
			return Decision{}, reject(c, s, action, "validity window has not elapsed")
		}

		return Decision{To: models.StateExpired, Event: models.EventExpire}, nil
	}

	var (
		decision Decision
		ok       bool
	)

	switch c {
	case models.CategoryOutgoingCheque, models.CategoryOutgoingInvoice:
		decision, ok = outgoingCheque(s, action, tc)
	case models.CategoryIncomingCheque, models.CategoryIncomingInvoice:
		decision, ok = incomingCheque(s, action)
	case models.CategoryOutgoingTransfer:
		decision, ok = outgoingTransfer(s, action)
	case models.CategoryIncomingTransfer:
		decision, ok = incomingTransfer(s, action)
	case models.CategoryInternalTransfer:
		decision, ok = internalTransfer(s, action)
	case models.CategoryOutgoingCash:
		decision, ok = outgoingCash(s, action)
	case models.CategoryIncomingCash:
		decision, ok = incomingCash(s, action)
	case models.CategoryUnknown:
		return Decision{}, reject(c, s, action, "unknown category")
	default:
		return Decision{}, reject(c, s, action, "unknown category")
	}

	if !ok {
		return Decision{}, reject(c, s, action, "")
	}

	return decision, nil
}

func reject(c models.Category, s models.State, action Action, reason string) error {
	return &RejectedError{Category: c, State: s, Action: action, Reason: reason}
}

// CreationAction returns the action that brings a workflow of category c into existence.
// Incoming instruments come into existence by being conveyed to us; everything else is
// created locally.
func CreationAction(c models.Category) Action {
	switch c {
	case models.CategoryIncomingCheque, models.CategoryIncomingInvoice,
		models.CategoryIncomingTransfer, models.CategoryIncomingCash:
		return ActionConvey
	case models.CategoryOutgoingCheque, models.CategoryOutgoingInvoice, models.CategoryOutgoingTransfer,
		models.CategoryInternalTransfer, models.CategoryOutgoingCash, models.CategoryUnknown:
		return ActionCreate
	}

	return ActionCreate
}

// created decides the first event of a workflow.
func created(c models.Category, action Action) (Decision, bool) {
	initial, err := Initial(c)
	if err != nil || action != CreationAction(c) {
		return Decision{}, false
	}

	return Decision{To: initial, Event: models.EventType(action)}, true
}
