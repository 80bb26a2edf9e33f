package authz

import (
	"kartograph-backend/internal/domain/events"
	"kartograph-backend/internal/domain/shared"
	"kartograph-backend/internal/errors"
)

// GroupTranslator projects group lifecycle and membership events.
type GroupTranslator struct{}

// SupportedEventTypes lists the group event types.
func (t *GroupTranslator) SupportedEventTypes() []string {
	return []string{
		events.EventTypeGroupCreated,
		events.EventTypeGroupDeleted,
		events.EventTypeMemberAdded,
		events.EventTypeMemberRemoved,
		events.EventTypeMemberRoleChanged,
	}
}

// Translate maps a group event to its tuple operations.
func (t *GroupTranslator) Translate(event shared.DomainEvent) ([]TupleOperation, error) {
	switch e := event.(type) {
	case *events.GroupCreated:
		group := ObjectRef{Type: ObjectTypeGroup, ID: e.GroupID}
		return []TupleOperation{
			Write(group, RelationTenant, Tenant(e.TenantID)),
		}, nil

	case *events.GroupDeleted:
		group := ObjectRef{Type: ObjectTypeGroup, ID: e.GroupID}
		ops := []TupleOperation{
			Delete(group, RelationTenant, Tenant(e.TenantID)),
		}
		for _, member := range e.Members {
			ops = append(ops, Delete(group, member.Role, User(member.UserID)))
		}
		return ops, nil

	case *events.MemberAdded:
		group := ObjectRef{Type: ObjectTypeGroup, ID: e.GroupID}
		return []TupleOperation{
			Write(group, e.Role, User(e.UserID)),
		}, nil

	case *events.MemberRemoved:
		group := ObjectRef{Type: ObjectTypeGroup, ID: e.GroupID}
		return []TupleOperation{
			Delete(group, e.Role, User(e.UserID)),
		}, nil

	case *events.MemberRoleChanged:
		group := ObjectRef{Type: ObjectTypeGroup, ID: e.GroupID}
		return []TupleOperation{
			Delete(group, e.OldRole, User(e.UserID)),
			Write(group, e.NewRole, User(e.UserID)),
		}, nil

	default:
		return nil, errors.UnknownEventKind(event.EventType())
	}
}
