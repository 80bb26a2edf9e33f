// Package errors provides the unified error type used across the Kartograph
// core. Every failure that crosses a package boundary is a *KartographError
// carrying a kind (for programmatic handling), a machine code, and a
// retryability flag that the outbox worker and the bulk loader consult when
// deciding whether a batch should be retried or parked.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// ERROR KINDS AND CODES
// ============================================================================

// Kind classifies an error for handling and retry decisions.
type Kind string

const (
	// Projection-side kinds.
	KindUnknownEventKind      Kind = "UNKNOWN_EVENT_KIND"
	KindPayloadSchemaMismatch Kind = "PAYLOAD_SCHEMA_MISMATCH"
	KindPolicyEngine          Kind = "POLICY_ENGINE_ERROR"

	// Bulk-load kinds.
	KindInvalidLabelName   Kind = "INVALID_LABEL_NAME"
	KindDuplicateLogicalID Kind = "DUPLICATE_LOGICAL_ID"
	KindOrphanedEdgeRef    Kind = "ORPHANED_EDGE_REF"

	// Infrastructure kinds.
	KindDatabase   Kind = "DATABASE_ERROR"
	KindValidation Kind = "VALIDATION"
	KindInternal   Kind = "INTERNAL"
)

// ============================================================================
// ERROR STRUCTURE
// ============================================================================

// KartographError is the single error type shared by all layers.
type KartographError struct {
	Kind      Kind     `json:"kind"`
	Message   string   `json:"message"`
	Details   []string `json:"details,omitempty"` // offending ids, field names, ...
	Operation string   `json:"operation,omitempty"`
	Retryable bool     `json:"retryable"`
	Cause     error    `json:"-"`
}

// Error implements the error interface.
func (e *KartographError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Kind, e.Message)
	if len(e.Details) > 0 {
		fmt.Fprintf(&b, ": %s", strings.Join(e.Details, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *KartographError) Unwrap() error {
	return e.Cause
}

// IsKind reports whether err is a KartographError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ke *KartographError
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}

// IsRetryable reports whether the operation that produced err may be retried.
// Unknown error shapes default to retryable so transient driver errors are
// not parked prematurely.
func IsRetryable(err error) bool {
	var ke *KartographError
	if errors.As(err, &ke) {
		return ke.Retryable
	}
	return true
}

// ============================================================================
// BUILDER
// ============================================================================

// Builder assembles a KartographError fluently.
type Builder struct {
	err *KartographError
}

// New starts building an error of the given kind.
func New(kind Kind, message string) *Builder {
	return &Builder{err: &KartographError{Kind: kind, Message: message}}
}

// WithDetails attaches identifying details (offending ids, fields).
func (b *Builder) WithDetails(details ...string) *Builder {
	b.err.Details = append(b.err.Details, details...)
	return b
}

// WithOperation records the operation that failed.
func (b *Builder) WithOperation(op string) *Builder {
	b.err.Operation = op
	return b
}

// WithCause wraps the underlying error.
func (b *Builder) WithCause(cause error) *Builder {
	b.err.Cause = cause
	return b
}

// Retryable marks the error as safe to retry.
func (b *Builder) Retryable() *Builder {
	b.err.Retryable = true
	return b
}

// Build finalizes the error.
func (b *Builder) Build() *KartographError {
	return b.err
}

// ============================================================================
// CONVENIENCE CONSTRUCTORS
// ============================================================================

// UnknownEventKind reports an event type with no registered handler.
// Permanent: replaying the row cannot succeed until a handler ships.
func UnknownEventKind(eventType string) *KartographError {
	return New(KindUnknownEventKind, "no handler registered for event type").
		WithDetails(eventType).Build()
}

// PayloadSchemaMismatch reports a payload missing required event fields.
func PayloadSchemaMismatch(eventType string, cause error) *KartographError {
	return New(KindPayloadSchemaMismatch, "event payload does not match schema").
		WithDetails(eventType).WithCause(cause).Build()
}

// InvalidLabelName reports a label that fails the label grammar.
func InvalidLabelName(label string) *KartographError {
	return New(KindInvalidLabelName, "label name violates grammar").
		WithDetails(label).Build()
}

// DuplicateLogicalID reports logical ids appearing more than once in a batch.
func DuplicateLogicalID(ids ...string) *KartographError {
	return New(KindDuplicateLogicalID, "duplicate logical id in batch").
		WithDetails(ids...).Build()
}

// OrphanedEdgeRef reports edges whose endpoints resolve to no node.
func OrphanedEdgeRef(missing []string, total int) *KartographError {
	return New(KindOrphanedEdgeRef,
		fmt.Sprintf("%d edge endpoint(s) reference missing nodes", total)).
		WithDetails(missing...).Build()
}

// PolicyEngine wraps a failed policy-engine call. Retryable: rows stay
// unprocessed and are picked up on the next wakeup.
func PolicyEngine(op string, cause error) *KartographError {
	return New(KindPolicyEngine, "policy engine call failed").
		WithOperation(op).WithCause(cause).Retryable().Build()
}

// Database wraps a failed SQL operation. Retryable by default; the enclosing
// transaction has already rolled back.
func Database(op string, cause error) *KartographError {
	return New(KindDatabase, "database operation failed").
		WithOperation(op).WithCause(cause).Retryable().Build()
}

// Validation reports invalid caller input.
func Validation(message string, details ...string) *KartographError {
	return New(KindValidation, message).WithDetails(details...).Build()
}

// Internal reports a programming or invariant error.
func Internal(message string, cause error) *KartographError {
	return New(KindInternal, message).WithCause(cause).Build()
}
