package rules

import "github.com/dukex/payflow/pkg/models"

// Each table below only sees non-terminal legal states; Decide filters the rest.

func outgoingCheque(s models.State, action Action, tc TimeContext) (Decision, bool) {
	switch action {
	case ActionCancel:
		if s == models.StateUnsent || s == models.StateConveyed || s == models.StateExpired {
			return Decision{To: models.StateCancelled, Event: models.EventCancel}, true
		}
	case ActionConvey:
		if s == models.StateUnsent {
			return Decision{To: models.StateConveyed, Event: models.EventConvey}, true
		}
	case ActionAccept:
		if s == models.StateUnsent || s == models.StateConveyed || s == models.StateExpired {
			if tc.Final {
				return Decision{To: models.StateCompleted, Event: models.EventAccept}, true
			}

			return Decision{To: models.StateAccepted, Event: models.EventAccept}, true
		}
	case ActionClear, ActionComplete:
		if s == models.StateAccepted {
			return Decision{To: models.StateCompleted, Event: models.EventClear}, true
		}
	case ActionCreate, ActionExpire, ActionAbort, ActionAcknowledge, ActionReject:
	}

	return Decision{}, false
}

func incomingCheque(s models.State, action Action) (Decision, bool) {
	switch action {
	case ActionAccept:
		if s == models.StateConveyed || s == models.StateExpired {
			return Decision{To: models.StateCompleted, Event: models.EventAccept}, true
		}
	case ActionReject:
		if s == models.StateConveyed {
			return Decision{To: models.StateRejected, Event: models.EventReject}, true
		}
	case ActionCreate, ActionConvey, ActionCancel, ActionClear, ActionExpire, ActionAbort,
		ActionAcknowledge, ActionComplete:
	}

	return Decision{}, false
}

func outgoingTransfer(s models.State, action Action) (Decision, bool) {
	switch action {
	case ActionAbort:
		if s == models.StateInitiated {
			return Decision{To: models.StateAborted, Event: models.EventAbort}, true
		}
	case ActionAcknowledge:
		if s == models.StateInitiated {
			return Decision{To: models.StateAcknowledged, Event: models.EventAcknowledge}, true
		}
	case ActionAccept:
		if s == models.StateAcknowledged {
			return Decision{To: models.StateAccepted, Event: models.EventAccept}, true
		}
	case ActionComplete, ActionClear:
		if s == models.StateAcknowledged || s == models.StateAccepted {
			return Decision{To: models.StateCompleted, Event: models.EventComplete}, true
		}
	case ActionCreate, ActionConvey, ActionCancel, ActionExpire, ActionReject:
	}

	return Decision{}, false
}

func incomingTransfer(s models.State, action Action) (Decision, bool) {
	switch action {
	case ActionAccept, ActionClear:
		if s == models.StateConveyed {
			return Decision{To: models.StateCompleted, Event: models.EventAccept}, true
		}
	case ActionCreate, ActionConvey, ActionCancel, ActionExpire, ActionAbort, ActionAcknowledge,
		ActionComplete, ActionReject:
	}

	return Decision{}, false
}

// internalTransfer merges both legs of a transfer between two accounts of the same owner:
// the notary acknowledging the outgoing leg and the incoming leg being conveyed are the
// same step.
func internalTransfer(s models.State, action Action) (Decision, bool) {
	switch action {
	case ActionAcknowledge, ActionConvey:
		if s == models.StateInitiated {
			return Decision{To: models.StateAcknowledged, Event: models.EventType(action)}, true
		}
	case ActionAbort:
		if s == models.StateInitiated {
			return Decision{To: models.StateAborted, Event: models.EventAbort}, true
		}
	case ActionAccept:
		if s == models.StateAcknowledged {
			return Decision{To: models.StateAccepted, Event: models.EventAccept}, true
		}
	case ActionComplete, ActionClear:
		if s == models.StateAcknowledged || s == models.StateAccepted {
			return Decision{To: models.StateCompleted, Event: models.EventComplete}, true
		}
	case ActionCreate, ActionCancel, ActionExpire, ActionReject:
	}

	return Decision{}, false
}

func outgoingCash(s models.State, action Action) (Decision, bool) {
	switch action {
	case ActionConvey:
		if s == models.StateUnsent {
			return Decision{To: models.StateConveyed, Event: models.EventConvey}, true
		}
	case ActionAccept:
		if s == models.StateUnsent || s == models.StateConveyed {
			return Decision{To: models.StateCompleted, Event: models.EventAccept}, true
		}
	case ActionCancel:
		if s == models.StateUnsent {
			return Decision{To: models.StateCancelled, Event: models.EventCancel}, true
		}
	case ActionCreate, ActionClear, ActionExpire, ActionAbort, ActionAcknowledge, ActionComplete,
		ActionReject:
	}

	return Decision{}, false
}

func incomingCash(s models.State, action Action) (Decision, bool) {
	switch action {
	case ActionAccept:
		if s == models.StateConveyed {
			return Decision{To: models.StateCompleted, Event: models.EventAccept}, true
		}
	case ActionCreate, ActionConvey, ActionCancel, ActionClear, ActionExpire, ActionAbort,
		ActionAcknowledge, ActionComplete, ActionReject:
	}

	return Decision{}, false
}
