package authz

import (
	"fmt"

	"kartograph-backend/internal/domain/shared"
	"kartograph-backend/internal/errors"
)

// Translator maps domain events of a bounded context to ordered tuple
// operations. Translators are pure functions over the event value: they must
// not read external state (including the policy engine), so that replaying
// an event always produces the same operation list.
type Translator interface {
	// SupportedEventTypes lists the event types this translator owns.
	SupportedEventTypes() []string

	// Translate maps one event to its tuple operations, in application order.
	Translate(event shared.DomainEvent) ([]TupleOperation, error)
}

// CompositeTranslator dispatches by event type to the sole registered
// translator. Exactly one translator owns each event type.
type CompositeTranslator struct {
	byType map[string]Translator
}

// NewCompositeTranslator registers the given translators. A duplicate claim
// on an event type is a wiring bug and fails construction.
func NewCompositeTranslator(translators ...Translator) (*CompositeTranslator, error) {
	byType := make(map[string]Translator)
	for _, tr := range translators {
		for _, eventType := range tr.SupportedEventTypes() {
			if _, exists := byType[eventType]; exists {
				return nil, errors.Internal(
					fmt.Sprintf("event type %q claimed by multiple translators", eventType), nil)
			}
			byType[eventType] = tr
		}
	}
	return &CompositeTranslator{byType: byType}, nil
}

// SupportedEventTypes lists every registered event type.
func (c *CompositeTranslator) SupportedEventTypes() []string {
	types := make([]string, 0, len(c.byType))
	for eventType := range c.byType {
		types = append(types, eventType)
	}
	return types
}

// Translate dispatches to the registered translator; unknown types fail fast.
func (c *CompositeTranslator) Translate(event shared.DomainEvent) ([]TupleOperation, error) {
	tr, ok := c.byType[event.EventType()]
	if !ok {
		return nil, errors.UnknownEventKind(event.EventType())
	}
	return tr.Translate(event)
}

// NewIAMTranslator wires the translators for every IAM bounded context.
func NewIAMTranslator() (*CompositeTranslator, error) {
	return NewCompositeTranslator(
		&GroupTranslator{},
		&APIKeyTranslator{},
		&WorkspaceTranslator{},
		&TenantTranslator{},
	)
}
