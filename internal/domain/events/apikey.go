package events

import (
	"time"
)

// API-key event types.
const (
	EventTypeAPIKeyCreated = "APIKeyCreated"
	EventTypeAPIKeyRevoked = "APIKeyRevoked"
	EventTypeAPIKeyDeleted = "APIKeyDeleted"
)

// APIKeyCreated is fired when a user mints an API key in a tenant.
type APIKeyCreated struct {
	KeyID      string    `json:"key_id"`
	UserID     string    `json:"user_id"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *APIKeyCreated) EventType() string     { return EventTypeAPIKeyCreated }
func (e *APIKeyCreated) AggregateType() string { return AggregateAPIKey }
func (e *APIKeyCreated) AggregateID() string   { return e.KeyID }
func (e *APIKeyCreated) Timestamp() time.Time  { return e.OccurredAt }

func (e *APIKeyCreated) ValidatePayload() error {
	return requireFields(map[string]string{
		"key_id":    e.KeyID,
		"user_id":   e.UserID,
		"tenant_id": e.TenantID,
	})
}

// APIKeyRevoked is fired when a key is revoked. Revocation is enforced at
// authentication time via the key's revoked flag; the key's relationships are
// deliberately retained for audit, so this event projects to no tuple
// operations.
type APIKeyRevoked struct {
	KeyID      string    `json:"key_id"`
	UserID     string    `json:"user_id"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *APIKeyRevoked) EventType() string     { return EventTypeAPIKeyRevoked }
func (e *APIKeyRevoked) AggregateType() string { return AggregateAPIKey }
func (e *APIKeyRevoked) AggregateID() string   { return e.KeyID }
func (e *APIKeyRevoked) Timestamp() time.Time  { return e.OccurredAt }

func (e *APIKeyRevoked) ValidatePayload() error {
	return requireFields(map[string]string{"key_id": e.KeyID})
}

// APIKeyDeleted is fired when a key is permanently removed.
type APIKeyDeleted struct {
	KeyID      string    `json:"key_id"`
	UserID     string    `json:"user_id"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *APIKeyDeleted) EventType() string     { return EventTypeAPIKeyDeleted }
func (e *APIKeyDeleted) AggregateType() string { return AggregateAPIKey }
func (e *APIKeyDeleted) AggregateID() string   { return e.KeyID }
func (e *APIKeyDeleted) Timestamp() time.Time  { return e.OccurredAt }

func (e *APIKeyDeleted) ValidatePayload() error {
	return requireFields(map[string]string{
		"key_id":    e.KeyID,
		"user_id":   e.UserID,
		"tenant_id": e.TenantID,
	})
}
