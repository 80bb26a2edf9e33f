package outbox

import (
	"encoding/json"
	"fmt"

	"kartograph-backend/internal/domain/events"
	"kartograph-backend/internal/domain/shared"
	"kartograph-backend/internal/errors"
)

// Registry maps event-type strings to concrete event types for persistence.
// Round-tripping an event through Serialize and Deserialize yields an event
// equal to the original over its declared fields, which is the equality the
// translators operate under.
type Registry struct {
	factories map[string]func() shared.DomainEvent
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]func() shared.DomainEvent)}
}

// Register binds an event type to a factory producing a zero value of the
// concrete event. Registering a type twice is a wiring bug.
func (r *Registry) Register(eventType string, factory func() shared.DomainEvent) error {
	if _, exists := r.factories[eventType]; exists {
		return errors.Internal(fmt.Sprintf("event type %q registered twice", eventType), nil)
	}
	r.factories[eventType] = factory
	return nil
}

// Registered reports whether eventType has a factory.
func (r *Registry) Registered(eventType string) bool {
	_, ok := r.factories[eventType]
	return ok
}

// Serialize converts a registered event to its persistence payload.
func (r *Registry) Serialize(event shared.DomainEvent) ([]byte, error) {
	if !r.Registered(event.EventType()) {
		return nil, errors.UnknownEventKind(event.EventType())
	}
	if v, ok := event.(shared.PayloadValidator); ok {
		if err := v.ValidatePayload(); err != nil {
			return nil, errors.PayloadSchemaMismatch(event.EventType(), err)
		}
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, errors.PayloadSchemaMismatch(event.EventType(), err)
	}
	return payload, nil
}

// Deserialize materializes the original typed event from a payload.
func (r *Registry) Deserialize(eventType string, payload []byte) (shared.DomainEvent, error) {
	factory, ok := r.factories[eventType]
	if !ok {
		return nil, errors.UnknownEventKind(eventType)
	}
	event := factory()
	if err := json.Unmarshal(payload, event); err != nil {
		return nil, errors.PayloadSchemaMismatch(eventType, err)
	}
	if v, ok := event.(shared.PayloadValidator); ok {
		if err := v.ValidatePayload(); err != nil {
			return nil, errors.PayloadSchemaMismatch(eventType, err)
		}
	}
	return event, nil
}

// NewIAMRegistry registers every IAM event type.
func NewIAMRegistry() *Registry {
	r := NewRegistry()
	for eventType, factory := range map[string]func() shared.DomainEvent{
		events.EventTypeGroupCreated:      func() shared.DomainEvent { return &events.GroupCreated{} },
		events.EventTypeGroupDeleted:      func() shared.DomainEvent { return &events.GroupDeleted{} },
		events.EventTypeMemberAdded:       func() shared.DomainEvent { return &events.MemberAdded{} },
		events.EventTypeMemberRemoved:     func() shared.DomainEvent { return &events.MemberRemoved{} },
		events.EventTypeMemberRoleChanged: func() shared.DomainEvent { return &events.MemberRoleChanged{} },

		events.EventTypeAPIKeyCreated: func() shared.DomainEvent { return &events.APIKeyCreated{} },
		events.EventTypeAPIKeyRevoked: func() shared.DomainEvent { return &events.APIKeyRevoked{} },
		events.EventTypeAPIKeyDeleted: func() shared.DomainEvent { return &events.APIKeyDeleted{} },

		events.EventTypeWorkspaceCreated:           func() shared.DomainEvent { return &events.WorkspaceCreated{} },
		events.EventTypeWorkspaceDeleted:           func() shared.DomainEvent { return &events.WorkspaceDeleted{} },
		events.EventTypeWorkspaceMemberAdded:       func() shared.DomainEvent { return &events.WorkspaceMemberAdded{} },
		events.EventTypeWorkspaceMemberRemoved:     func() shared.DomainEvent { return &events.WorkspaceMemberRemoved{} },
		events.EventTypeWorkspaceMemberRoleChanged: func() shared.DomainEvent { return &events.WorkspaceMemberRoleChanged{} },

		events.EventTypeTenantMemberAdded:   func() shared.DomainEvent { return &events.TenantMemberAdded{} },
		events.EventTypeTenantMemberRemoved: func() shared.DomainEvent { return &events.TenantMemberRemoved{} },
		events.EventTypeTenantDeleted:       func() shared.DomainEvent { return &events.TenantDeleted{} },
	} {
		// Registration of a fresh registry cannot collide.
		_ = r.Register(eventType, factory)
	}
	return r
}
