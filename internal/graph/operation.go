// Package graph defines the mutation-operation model for the property graph:
// the typed operations decoded from JSONL batches, the open property maps
// they carry, and the label grammar every operation is validated against
// before any SQL is constructed.
package graph

import (
	"fmt"
	"regexp"

	"kartograph-backend/internal/errors"
)

// OpType is the mutation verb.
type OpType string

const (
	OpDefine OpType = "DEFINE"
	OpCreate OpType = "CREATE"
	OpUpdate OpType = "UPDATE"
	OpDelete OpType = "DELETE"
)

// EntityKind selects nodes or edges.
type EntityKind string

const (
	KindNode EntityKind = "node"
	KindEdge EntityKind = "edge"
)

// labelPattern is the label grammar. Identifiers are capped at 63 bytes to
// fit PostgreSQL's name type.
var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidLabel reports whether label satisfies the label grammar.
func ValidLabel(label string) bool {
	return labelPattern.MatchString(label)
}

// Operation is one decoded mutation. The logical id is unique across the
// batch per entity kind; CREATE and DEFINE carry a label; edges carry the
// logical ids of their endpoints.
type Operation struct {
	Op      OpType     `json:"op"`
	Type    EntityKind `json:"type"`
	ID      string     `json:"id,omitempty"`
	Label   string     `json:"label,omitempty"`
	StartID string     `json:"start_id,omitempty"`
	EndID   string     `json:"end_id,omitempty"`

	SetProperties    Properties `json:"set_properties,omitempty"`
	RemoveProperties []string   `json:"remove_properties,omitempty"`

	// DEFINE metadata.
	Description        string     `json:"description,omitempty"`
	RequiredProperties []string   `json:"required_properties,omitempty"`
	OptionalProperties []string   `json:"optional_properties,omitempty"`
	Example            Properties `json:"example,omitempty"`
}

// Validate checks structural requirements. Label grammar violations surface
// as InvalidLabelName so the batch fails before any SQL runs.
func (o *Operation) Validate() error {
	switch o.Type {
	case KindNode, KindEdge:
	default:
		return errors.Validation("invalid entity type", string(o.Type))
	}

	switch o.Op {
	case OpDefine:
		if o.Label == "" {
			return errors.Validation("DEFINE requires a label")
		}
	case OpCreate:
		if o.ID == "" {
			return errors.Validation("CREATE requires an id")
		}
		if o.Label == "" {
			return errors.Validation("CREATE requires a label", o.ID)
		}
		if o.Type == KindEdge && (o.StartID == "" || o.EndID == "") {
			return errors.Validation("CREATE edge requires start_id and end_id", o.ID)
		}
	case OpUpdate:
		if o.ID == "" {
			return errors.Validation("UPDATE requires an id")
		}
		if len(o.SetProperties) == 0 && len(o.RemoveProperties) == 0 {
			return errors.Validation("UPDATE requires set_properties or remove_properties", o.ID)
		}
	case OpDelete:
		if o.ID == "" {
			return errors.Validation("DELETE requires an id")
		}
	default:
		return errors.Validation("invalid operation", string(o.Op))
	}

	if o.Label != "" && !ValidLabel(o.Label) {
		return errors.InvalidLabelName(o.Label)
	}
	return nil
}

// String renders the operation for logs and error messages.
func (o *Operation) String() string {
	if o.Op == OpDefine {
		return fmt.Sprintf("%s %s label=%s", o.Op, o.Type, o.Label)
	}
	return fmt.Sprintf("%s %s id=%s", o.Op, o.Type, o.ID)
}
