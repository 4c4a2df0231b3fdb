package models

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrUnknownWireValue is returned when a wire enum value has no domain counterpart.
var ErrUnknownWireValue = errors.New("unknown wire value")

// Wire values are stable across releases; new values are only ever appended.
var (
	categoryToWire = map[Category]uint8{
		CategoryOutgoingCheque:   1,
		CategoryIncomingCheque:   2,
		CategoryOutgoingTransfer: 3,
		CategoryIncomingTransfer: 4,
		CategoryInternalTransfer: 5,
		CategoryOutgoingCash:     6,
		CategoryIncomingCash:     7,
		CategoryOutgoingInvoice:  8,
		CategoryIncomingInvoice:  9,
	}

	stateToWire = map[State]uint8{
		StateUnsent:       1,
		StateConveyed:     2,
		StateCancelled:    3,
		StateAccepted:     4,
		StateCompleted:    5,
		StateExpired:      6,
		StateInitiated:    7,
		StateAborted:      8,
		StateAcknowledged: 9,
		StateRejected:     10,
	}

	eventTypeToWire = map[EventType]uint8{
		EventCreate:      1,
		EventConvey:      2,
		EventCancel:      3,
		EventAccept:      4,
		EventComplete:    5,
		EventAbort:       6,
		EventAcknowledge: 7,
		EventExpire:      8,
		EventReject:      9,
		EventClear:       10,
	}

	wireToCategory  = invert(categoryToWire)
	wireToState     = invert(stateToWire)
	wireToEventType = invert(eventTypeToWire)
)

func invert[K comparable, V comparable](in map[K]V) map[V]K {
	out := make(map[V]K, len(in))
	for k, v := range in {
		out[v] = k
	}

	return out
}

// CategoryToWire translates a category into its wire value. Zero means unknown.
func CategoryToWire(c Category) uint8 {
	return categoryToWire[c]
}

// CategoryFromWire translates a wire value, returning CategoryUnknown and an error for
// values it does not recognize.
func CategoryFromWire(v uint8) (Category, error) {
	c, ok := wireToCategory[v]
	if !ok {
		return CategoryUnknown, fmt.Errorf("category %d: %w", v, ErrUnknownWireValue)
	}

	return c, nil
}

// StateToWire translates a state into its wire value. Zero means unknown.
func StateToWire(s State) uint8 {
	return stateToWire[s]
}

// StateFromWire translates a wire value into a state.
func StateFromWire(v uint8) (State, error) {
	s, ok := wireToState[v]
	if !ok {
		return StateUnknown, fmt.Errorf("state %d: %w", v, ErrUnknownWireValue)
	}

	return s, nil
}

// EventTypeToWire translates an event type into its wire value. Zero means unknown.
func EventTypeToWire(e EventType) uint8 {
	return eventTypeToWire[e]
}

// EventTypeFromWire translates a wire value into an event type.
func EventTypeFromWire(v uint8) (EventType, error) {
	e, ok := wireToEventType[v]
	if !ok {
		return EventUnknown, fmt.Errorf("event type %d: %w", v, ErrUnknownWireValue)
	}

	return e, nil
}

// ParseCategory accepts either a category name or its wire value.
func ParseCategory(s string) (Category, error) {
	if v, err := strconv.ParseUint(s, 10, 8); err == nil {
		return CategoryFromWire(uint8(v))
	}

	c := Category(s)
	if !c.Valid() {
		return CategoryUnknown, fmt.Errorf("category %q: %w", s, ErrUnknownWireValue)
	}

	return c, nil
}

// ParseState accepts either a state name or its wire value.
func ParseState(s string) (State, error) {
	if v, err := strconv.ParseUint(s, 10, 8); err == nil {
		return StateFromWire(uint8(v))
	}

	st := State(s)
	if !st.Valid() {
		return StateUnknown, fmt.Errorf("state %q: %w", s, ErrUnknownWireValue)
	}

	return st, nil
}
