package events

import (
	"time"
)

// Tenant event types.
const (
	EventTypeTenantMemberAdded   = "TenantMemberAdded"
	EventTypeTenantMemberRemoved = "TenantMemberRemoved"
	EventTypeTenantDeleted       = "TenantDeleted"
)

// TenantMember is a membership snapshot embedded in TenantDeleted.
type TenantMember struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// TenantMemberAdded is fired when a user joins a tenant with a role.
type TenantMemberAdded struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *TenantMemberAdded) EventType() string     { return EventTypeTenantMemberAdded }
func (e *TenantMemberAdded) AggregateType() string { return AggregateTenant }
func (e *TenantMemberAdded) AggregateID() string   { return e.TenantID }
func (e *TenantMemberAdded) Timestamp() time.Time  { return e.OccurredAt }

func (e *TenantMemberAdded) ValidatePayload() error {
	return requireFields(map[string]string{
		"tenant_id": e.TenantID,
		"user_id":   e.UserID,
		"role":      e.Role,
	})
}

// TenantMemberRemoved is fired when a user leaves a tenant. The event does
// not carry the role the user held; the projection deletes every role tuple
// for the user.
type TenantMemberRemoved struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *TenantMemberRemoved) EventType() string     { return EventTypeTenantMemberRemoved }
func (e *TenantMemberRemoved) AggregateType() string { return AggregateTenant }
func (e *TenantMemberRemoved) AggregateID() string   { return e.TenantID }
func (e *TenantMemberRemoved) Timestamp() time.Time  { return e.OccurredAt }

func (e *TenantMemberRemoved) ValidatePayload() error {
	return requireFields(map[string]string{
		"tenant_id": e.TenantID,
		"user_id":   e.UserID,
	})
}

// TenantDeleted is fired when a tenant is torn down. Members carries the full
// membership at deletion time so the projection can remove every role tuple
// without reading state.
type TenantDeleted struct {
	TenantID   string         `json:"tenant_id"`
	Members    []TenantMember `json:"members"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (e *TenantDeleted) EventType() string     { return EventTypeTenantDeleted }
func (e *TenantDeleted) AggregateType() string { return AggregateTenant }
func (e *TenantDeleted) AggregateID() string   { return e.TenantID }
func (e *TenantDeleted) Timestamp() time.Time  { return e.OccurredAt }

func (e *TenantDeleted) ValidatePayload() error {
	return requireFields(map[string]string{"tenant_id": e.TenantID})
}
