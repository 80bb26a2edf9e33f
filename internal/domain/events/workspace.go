package events

import (
	"fmt"
	"time"
)

// Workspace event types.
const (
	EventTypeWorkspaceCreated           = "WorkspaceCreated"
	EventTypeWorkspaceDeleted           = "WorkspaceDeleted"
	EventTypeWorkspaceMemberAdded       = "WorkspaceMemberAdded"
	EventTypeWorkspaceMemberRemoved     = "WorkspaceMemberRemoved"
	EventTypeWorkspaceMemberRoleChanged = "WorkspaceMemberRoleChanged"
)

// MemberKind discriminates workspace members: individual users or whole
// groups (granted transitively through the group's member relation).
type MemberKind string

const (
	MemberKindUser  MemberKind = "user"
	MemberKindGroup MemberKind = "group"
)

// WorkspaceCreated is fired for both root and child workspaces; a root
// workspace has an empty ParentID.
type WorkspaceCreated struct {
	WorkspaceID string    `json:"workspace_id"`
	TenantID    string    `json:"tenant_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (e *WorkspaceCreated) EventType() string     { return EventTypeWorkspaceCreated }
func (e *WorkspaceCreated) AggregateType() string { return AggregateWorkspace }
func (e *WorkspaceCreated) AggregateID() string   { return e.WorkspaceID }
func (e *WorkspaceCreated) Timestamp() time.Time  { return e.OccurredAt }

// IsRoot reports whether this is the tenant's root workspace.
func (e *WorkspaceCreated) IsRoot() bool { return e.ParentID == "" }

func (e *WorkspaceCreated) ValidatePayload() error {
	return requireFields(map[string]string{
		"workspace_id": e.WorkspaceID,
		"tenant_id":    e.TenantID,
	})
}

// WorkspaceDeleted mirrors WorkspaceCreated so the projection can emit the
// exact inverse tuple deletes for the root and child variants.
type WorkspaceDeleted struct {
	WorkspaceID string    `json:"workspace_id"`
	TenantID    string    `json:"tenant_id"`
	ParentID    string    `json:"parent_id,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

func (e *WorkspaceDeleted) EventType() string     { return EventTypeWorkspaceDeleted }
func (e *WorkspaceDeleted) AggregateType() string { return AggregateWorkspace }
func (e *WorkspaceDeleted) AggregateID() string   { return e.WorkspaceID }
func (e *WorkspaceDeleted) Timestamp() time.Time  { return e.OccurredAt }

// IsRoot reports whether the deleted workspace was the tenant's root.
func (e *WorkspaceDeleted) IsRoot() bool { return e.ParentID == "" }

func (e *WorkspaceDeleted) ValidatePayload() error {
	return requireFields(map[string]string{
		"workspace_id": e.WorkspaceID,
		"tenant_id":    e.TenantID,
	})
}

// WorkspaceMemberAdded grants a role on a workspace to a user or a group.
type WorkspaceMemberAdded struct {
	WorkspaceID string     `json:"workspace_id"`
	MemberID    string     `json:"member_id"`
	MemberKind  MemberKind `json:"member_kind"`
	Role        string     `json:"role"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

func (e *WorkspaceMemberAdded) EventType() string     { return EventTypeWorkspaceMemberAdded }
func (e *WorkspaceMemberAdded) AggregateType() string { return AggregateWorkspace }
func (e *WorkspaceMemberAdded) AggregateID() string   { return e.WorkspaceID }
func (e *WorkspaceMemberAdded) Timestamp() time.Time  { return e.OccurredAt }

func (e *WorkspaceMemberAdded) ValidatePayload() error {
	if err := requireFields(map[string]string{
		"workspace_id": e.WorkspaceID,
		"member_id":    e.MemberID,
		"role":         e.Role,
	}); err != nil {
		return err
	}
	return validateMemberKind(e.MemberKind)
}

// WorkspaceMemberRemoved revokes a member's role on a workspace.
type WorkspaceMemberRemoved struct {
	WorkspaceID string     `json:"workspace_id"`
	MemberID    string     `json:"member_id"`
	MemberKind  MemberKind `json:"member_kind"`
	Role        string     `json:"role"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

func (e *WorkspaceMemberRemoved) EventType() string     { return EventTypeWorkspaceMemberRemoved }
func (e *WorkspaceMemberRemoved) AggregateType() string { return AggregateWorkspace }
func (e *WorkspaceMemberRemoved) AggregateID() string   { return e.WorkspaceID }
func (e *WorkspaceMemberRemoved) Timestamp() time.Time  { return e.OccurredAt }

func (e *WorkspaceMemberRemoved) ValidatePayload() error {
	if err := requireFields(map[string]string{
		"workspace_id": e.WorkspaceID,
		"member_id":    e.MemberID,
		"role":         e.Role,
	}); err != nil {
		return err
	}
	return validateMemberKind(e.MemberKind)
}

// WorkspaceMemberRoleChanged swaps a member's role on a workspace.
type WorkspaceMemberRoleChanged struct {
	WorkspaceID string     `json:"workspace_id"`
	MemberID    string     `json:"member_id"`
	MemberKind  MemberKind `json:"member_kind"`
	OldRole     string     `json:"old_role"`
	NewRole     string     `json:"new_role"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

func (e *WorkspaceMemberRoleChanged) EventType() string {
	return EventTypeWorkspaceMemberRoleChanged
}
func (e *WorkspaceMemberRoleChanged) AggregateType() string { return AggregateWorkspace }
func (e *WorkspaceMemberRoleChanged) AggregateID() string   { return e.WorkspaceID }
func (e *WorkspaceMemberRoleChanged) Timestamp() time.Time  { return e.OccurredAt }

func (e *WorkspaceMemberRoleChanged) ValidatePayload() error {
	if err := requireFields(map[string]string{
		"workspace_id": e.WorkspaceID,
		"member_id":    e.MemberID,
		"old_role":     e.OldRole,
		"new_role":     e.NewRole,
	}); err != nil {
		return err
	}
	return validateMemberKind(e.MemberKind)
}

func validateMemberKind(kind MemberKind) error {
	switch kind {
	case MemberKindUser, MemberKindGroup:
		return nil
	default:
		return fmt.Errorf("invalid member_kind %q", kind)
	}
}
