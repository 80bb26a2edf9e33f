// Package outbox implements the transactional outbox: append-only event rows
// committed alongside aggregate state, claimed under row-level locks, and
// projected into policy-engine relationship writes by a background worker.
package outbox

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NotificationChannel is the LISTEN/NOTIFY channel the after-insert trigger
// fires on. The notification payload is the new row's id as text.
const NotificationChannel = "outbox_events"

// Entry is one outbox row. Rows are append-only except for the one-shot
// processed_at transition and the retry bookkeeping columns.
type Entry struct {
	// ID is a UUIDv7 assigned at append time; byte order matches insert
	// order within a session, so it doubles as the claim ordering key and
	// as a fencing token.
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	ProcessedAt   *time.Time
	RetryCount    int
	DeadLettered  bool
}

// EntryError wraps a processing failure with the id of the row that caused
// it, so the worker can record the failure after the batch rolls back.
type EntryError struct {
	EntryID   uuid.UUID
	EventType string
	Err       error
}

// Error implements the error interface.
func (e *EntryError) Error() string {
	return fmt.Sprintf("outbox entry %s (%s): %v", e.EntryID, e.EventType, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *EntryError) Unwrap() error {
	return e.Err
}

// BatchStats summarizes one claim-and-apply pass.
type BatchStats struct {
	Claimed   int
	Processed int
}
