package authz

import (
	"kartograph-backend/internal/domain/events"
	"kartograph-backend/internal/domain/shared"
	"kartograph-backend/internal/errors"
)

// APIKeyTranslator projects API-key lifecycle events.
type APIKeyTranslator struct{}

// SupportedEventTypes lists the API-key event types.
func (t *APIKeyTranslator) SupportedEventTypes() []string {
	return []string{
		events.EventTypeAPIKeyCreated,
		events.EventTypeAPIKeyRevoked,
		events.EventTypeAPIKeyDeleted,
	}
}

// Translate maps an API-key event to its tuple operations.
func (t *APIKeyTranslator) Translate(event shared.DomainEvent) ([]TupleOperation, error) {
	switch e := event.(type) {
	case *events.APIKeyCreated:
		key := ObjectRef{Type: ObjectTypeAPIKey, ID: e.KeyID}
		return []TupleOperation{
			Write(key, RelationOwner, User(e.UserID)),
			Write(key, RelationTenant, Tenant(e.TenantID)),
		}, nil

	case *events.APIKeyRevoked:
		// Revocation is enforced at authentication time via the key's
		// revoked flag. The owner and tenant tuples are kept for audit, so a
		// revoked key still appears in lookup_resources for its owner.
		return nil, nil

	case *events.APIKeyDeleted:
		key := ObjectRef{Type: ObjectTypeAPIKey, ID: e.KeyID}
		return []TupleOperation{
			Delete(key, RelationOwner, User(e.UserID)),
			Delete(key, RelationTenant, Tenant(e.TenantID)),
		}, nil

	default:
		return nil, errors.UnknownEventKind(event.EventType())
	}
}
