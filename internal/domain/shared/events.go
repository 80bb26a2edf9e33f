package shared

import (
	"time"
)

// DomainEvent represents an important business occurrence in the domain.
// Events are immutable values: created during aggregate mutation, appended to
// the outbox in the same transaction as the aggregate rows, and retained
// indefinitely for audit after processing.
type DomainEvent interface {
	// EventType returns the type of event (e.g., "GroupCreated", "TenantDeleted")
	EventType() string

	// AggregateType returns the kind of aggregate that generated this event
	AggregateType() string

	// AggregateID returns the ID of the aggregate that generated this event
	AggregateID() string

	// Timestamp returns when the event occurred
	Timestamp() time.Time
}

// PayloadValidator is implemented by events whose payload carries required
// fields. The serializer calls it after deserialization; a failure surfaces
// as a payload schema mismatch rather than a half-populated event.
type PayloadValidator interface {
	ValidatePayload() error
}

// EventAggregate is implemented by aggregates that record domain events
// during mutation. The write use case drains the uncommitted events into the
// outbox before committing.
type EventAggregate interface {
	// UncommittedEvents returns events that haven't been persisted yet
	UncommittedEvents() []DomainEvent

	// MarkEventsCommitted clears the uncommitted events after persistence
	MarkEventsCommitted()
}

// EventRecorder provides the recording half of EventAggregate for embedding
// into aggregate types.
type EventRecorder struct {
	events []DomainEvent
}

// Record appends an event to the uncommitted set.
func (r *EventRecorder) Record(event DomainEvent) {
	r.events = append(r.events, event)
}

// UncommittedEvents returns the recorded events in occurrence order.
func (r *EventRecorder) UncommittedEvents() []DomainEvent {
	return r.events
}

// MarkEventsCommitted clears the uncommitted events.
func (r *EventRecorder) MarkEventsCommitted() {
	r.events = nil
}
