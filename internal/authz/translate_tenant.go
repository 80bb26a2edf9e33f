package authz

import (
	"kartograph-backend/internal/domain/events"
	"kartograph-backend/internal/domain/shared"
	"kartograph-backend/internal/errors"
)

// TenantTranslator projects tenant membership and teardown events.
type TenantTranslator struct{}

// SupportedEventTypes lists the tenant event types.
func (t *TenantTranslator) SupportedEventTypes() []string {
	return []string{
		events.EventTypeTenantMemberAdded,
		events.EventTypeTenantMemberRemoved,
		events.EventTypeTenantDeleted,
	}
}

// Translate maps a tenant event to its tuple operations.
func (t *TenantTranslator) Translate(event shared.DomainEvent) ([]TupleOperation, error) {
	switch e := event.(type) {
	case *events.TenantMemberAdded:
		tenant := ObjectRef{Type: ObjectTypeTenant, ID: e.TenantID}
		return []TupleOperation{
			Write(tenant, e.Role, User(e.UserID)),
		}, nil

	case *events.TenantMemberRemoved:
		// The event does not carry the role the user held, so every role
		// tuple is deleted. Deleting an absent tuple is a no-op.
		tenant := ObjectRef{Type: ObjectTypeTenant, ID: e.TenantID}
		return []TupleOperation{
			Delete(tenant, RelationAdmin, User(e.UserID)),
			Delete(tenant, RelationMember, User(e.UserID)),
		}, nil

	case *events.TenantDeleted:
		tenant := ObjectRef{Type: ObjectTypeTenant, ID: e.TenantID}
		ops := []TupleOperation{
			DeleteByFilter(RelationshipFilter{
				ResourceType: ObjectTypeTenant,
				ResourceID:   e.TenantID,
				Relation:     RelationRootWorkspace,
			}),
		}
		for _, member := range e.Members {
			ops = append(ops, Delete(tenant, member.Role, User(member.UserID)))
		}
		return ops, nil

	default:
		return nil, errors.UnknownEventKind(event.EventType())
	}
}
