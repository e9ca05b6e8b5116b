package domain

import "time"

// EventKind distinguishes new data from channel failures on the event bus.
type EventKind uint8

const (
	EventData EventKind = iota + 1
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is what subscribers receive. It is not retained after delivery.
type Event struct {
	ModuleID  string
	Channel   string
	Kind      EventKind
	Record    Record
	Err       error
	Published time.Time
}
