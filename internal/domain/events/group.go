// Package events defines the IAM domain events that flow through the outbox.
// Each event is a flat, JSON-serializable value; the field set of an event is
// its schema, and the serializer registry in internal/outbox pins the mapping
// from event-type string to concrete type.
package events

import (
	"fmt"
	"time"
)

// Aggregate type names shared by the outbox rows and the translators.
const (
	AggregateGroup     = "group"
	AggregateAPIKey    = "api_key"
	AggregateWorkspace = "workspace"
	AggregateTenant    = "tenant"
)

// Group event types.
const (
	EventTypeGroupCreated      = "GroupCreated"
	EventTypeGroupDeleted      = "GroupDeleted"
	EventTypeMemberAdded       = "MemberAdded"
	EventTypeMemberRemoved     = "MemberRemoved"
	EventTypeMemberRoleChanged = "MemberRoleChanged"
)

// GroupMember is a membership snapshot carried by events that must undo
// per-member relationships (deletion events cannot read state at
// translation time, so the writer embeds the member list).
type GroupMember struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// GroupCreated is fired when a new group is created in a tenant.
type GroupCreated struct {
	GroupID    string    `json:"group_id"`
	TenantID   string    `json:"tenant_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *GroupCreated) EventType() string     { return EventTypeGroupCreated }
func (e *GroupCreated) AggregateType() string { return AggregateGroup }
func (e *GroupCreated) AggregateID() string   { return e.GroupID }
func (e *GroupCreated) Timestamp() time.Time  { return e.OccurredAt }

// ValidatePayload checks the required fields.
func (e *GroupCreated) ValidatePayload() error {
	return requireFields(map[string]string{
		"group_id":  e.GroupID,
		"tenant_id": e.TenantID,
	})
}

// GroupDeleted is fired when a group is deleted. Members carries the
// membership at deletion time so the projection can remove every role tuple.
type GroupDeleted struct {
	GroupID    string        `json:"group_id"`
	TenantID   string        `json:"tenant_id"`
	Members    []GroupMember `json:"members"`
	OccurredAt time.Time     `json:"occurred_at"`
}

func (e *GroupDeleted) EventType() string     { return EventTypeGroupDeleted }
func (e *GroupDeleted) AggregateType() string { return AggregateGroup }
func (e *GroupDeleted) AggregateID() string   { return e.GroupID }
func (e *GroupDeleted) Timestamp() time.Time  { return e.OccurredAt }

func (e *GroupDeleted) ValidatePayload() error {
	return requireFields(map[string]string{
		"group_id":  e.GroupID,
		"tenant_id": e.TenantID,
	})
}

// MemberAdded is fired when a user joins a group with a role.
type MemberAdded struct {
	GroupID    string    `json:"group_id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *MemberAdded) EventType() string     { return EventTypeMemberAdded }
func (e *MemberAdded) AggregateType() string { return AggregateGroup }
func (e *MemberAdded) AggregateID() string   { return e.GroupID }
func (e *MemberAdded) Timestamp() time.Time  { return e.OccurredAt }

func (e *MemberAdded) ValidatePayload() error {
	return requireFields(map[string]string{
		"group_id": e.GroupID,
		"user_id":  e.UserID,
		"role":     e.Role,
	})
}

// MemberRemoved is fired when a user leaves a group.
type MemberRemoved struct {
	GroupID    string    `json:"group_id"`
	UserID     string    `json:"user_id"`
	Role       string    `json:"role"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *MemberRemoved) EventType() string     { return EventTypeMemberRemoved }
func (e *MemberRemoved) AggregateType() string { return AggregateGroup }
func (e *MemberRemoved) AggregateID() string   { return e.GroupID }
func (e *MemberRemoved) Timestamp() time.Time  { return e.OccurredAt }

func (e *MemberRemoved) ValidatePayload() error {
	return requireFields(map[string]string{
		"group_id": e.GroupID,
		"user_id":  e.UserID,
		"role":     e.Role,
	})
}

// MemberRoleChanged is fired when a member's role changes within a group.
type MemberRoleChanged struct {
	GroupID    string    `json:"group_id"`
	UserID     string    `json:"user_id"`
	OldRole    string    `json:"old_role"`
	NewRole    string    `json:"new_role"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e *MemberRoleChanged) EventType() string     { return EventTypeMemberRoleChanged }
func (e *MemberRoleChanged) AggregateType() string { return AggregateGroup }
func (e *MemberRoleChanged) AggregateID() string   { return e.GroupID }
func (e *MemberRoleChanged) Timestamp() time.Time  { return e.OccurredAt }

func (e *MemberRoleChanged) ValidatePayload() error {
	return requireFields(map[string]string{
		"group_id": e.GroupID,
		"user_id":  e.UserID,
		"old_role": e.OldRole,
		"new_role": e.NewRole,
	})
}

// requireFields returns an error naming the first empty required field.
func requireFields(fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("missing required field %q", name)
		}
	}
	return nil
}
