package authz

import (
	"kartograph-backend/internal/domain/events"
	"kartograph-backend/internal/domain/shared"
	"kartograph-backend/internal/errors"
)

// WorkspaceTranslator projects workspace hierarchy and membership events.
type WorkspaceTranslator struct{}

// SupportedEventTypes lists the workspace event types.
func (t *WorkspaceTranslator) SupportedEventTypes() []string {
	return []string{
		events.EventTypeWorkspaceCreated,
		events.EventTypeWorkspaceDeleted,
		events.EventTypeWorkspaceMemberAdded,
		events.EventTypeWorkspaceMemberRemoved,
		events.EventTypeWorkspaceMemberRoleChanged,
	}
}

// Translate maps a workspace event to its tuple operations.
func (t *WorkspaceTranslator) Translate(event shared.DomainEvent) ([]TupleOperation, error) {
	switch e := event.(type) {
	case *events.WorkspaceCreated:
		workspace := ObjectRef{Type: ObjectTypeWorkspace, ID: e.WorkspaceID}
		ops := []TupleOperation{
			Write(workspace, RelationTenant, Tenant(e.TenantID)),
		}
		if e.IsRoot() {
			tenant := ObjectRef{Type: ObjectTypeTenant, ID: e.TenantID}
			ops = append(ops, Write(tenant, RelationRootWorkspace, Workspace(e.WorkspaceID)))
		} else {
			ops = append(ops, Write(workspace, RelationParent, Workspace(e.ParentID)))
		}
		return ops, nil

	case *events.WorkspaceDeleted:
		workspace := ObjectRef{Type: ObjectTypeWorkspace, ID: e.WorkspaceID}
		ops := []TupleOperation{
			Delete(workspace, RelationTenant, Tenant(e.TenantID)),
		}
		if e.IsRoot() {
			tenant := ObjectRef{Type: ObjectTypeTenant, ID: e.TenantID}
			ops = append(ops, Delete(tenant, RelationRootWorkspace, Workspace(e.WorkspaceID)))
		} else {
			ops = append(ops, Delete(workspace, RelationParent, Workspace(e.ParentID)))
		}
		return ops, nil

	case *events.WorkspaceMemberAdded:
		workspace := ObjectRef{Type: ObjectTypeWorkspace, ID: e.WorkspaceID}
		return []TupleOperation{
			Write(workspace, e.Role, memberSubject(e.MemberKind, e.MemberID)),
		}, nil

	case *events.WorkspaceMemberRemoved:
		workspace := ObjectRef{Type: ObjectTypeWorkspace, ID: e.WorkspaceID}
		return []TupleOperation{
			Delete(workspace, e.Role, memberSubject(e.MemberKind, e.MemberID)),
		}, nil

	case *events.WorkspaceMemberRoleChanged:
		workspace := ObjectRef{Type: ObjectTypeWorkspace, ID: e.WorkspaceID}
		subject := memberSubject(e.MemberKind, e.MemberID)
		return []TupleOperation{
			Delete(workspace, e.OldRole, subject),
			Write(workspace, e.NewRole, subject),
		}, nil

	default:
		return nil, errors.UnknownEventKind(event.EventType())
	}
}

// memberSubject builds the subject for a workspace member. Group members use
// the group#member subject relation so the grant covers the group's members
// transitively under the policy schema.
func memberSubject(kind events.MemberKind, id string) SubjectRef {
	if kind == events.MemberKindGroup {
		return GroupMembers(id)
	}
	return User(id)
}
