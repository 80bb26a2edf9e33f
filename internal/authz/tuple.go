// Package authz contains the authorization projection: the relationship-tuple
// model, the event translators that map IAM domain events to ordered tuple
// operations, and the policy-engine port the outbox worker applies them
// through.
package authz

import (
	"fmt"
	"strings"
)

// Object types known to the policy schema.
const (
	ObjectTypeUser      = "user"
	ObjectTypeGroup     = "group"
	ObjectTypeTenant    = "tenant"
	ObjectTypeWorkspace = "workspace"
	ObjectTypeAPIKey    = "api_key"
)

// Relations known to the policy schema.
const (
	RelationTenant        = "tenant"
	RelationParent        = "parent"
	RelationRootWorkspace = "root_workspace"
	RelationOwner         = "owner"
	RelationMember        = "member"
	RelationAdmin         = "admin"
)

// ObjectRef identifies a resource in the policy engine.
type ObjectRef struct {
	Type string
	ID   string
}

// String renders the type:id form.
func (o ObjectRef) String() string {
	return o.Type + ":" + o.ID
}

// SubjectRef identifies the subject of a relationship. Relation is optional;
// when set (e.g. "member" on a group subject) the tuple grants transitively
// through that relation.
type SubjectRef struct {
	Type     string
	ID       string
	Relation string
}

// String renders type:id or type:id#relation.
func (s SubjectRef) String() string {
	if s.Relation != "" {
		return s.Type + ":" + s.ID + "#" + s.Relation
	}
	return s.Type + ":" + s.ID
}

// User builds a user subject.
func User(id string) SubjectRef {
	return SubjectRef{Type: ObjectTypeUser, ID: id}
}

// GroupMembers builds a group subject with the member relation, so the tuple
// covers every member of the group transitively.
func GroupMembers(id string) SubjectRef {
	return SubjectRef{Type: ObjectTypeGroup, ID: id, Relation: RelationMember}
}

// Tenant builds a tenant subject.
func Tenant(id string) SubjectRef {
	return SubjectRef{Type: ObjectTypeTenant, ID: id}
}

// Workspace builds a workspace subject.
func Workspace(id string) SubjectRef {
	return SubjectRef{Type: ObjectTypeWorkspace, ID: id}
}

// Relationship is a (resource, relation, subject) tuple, the unit of access
// control in the policy engine.
type Relationship struct {
	Resource ObjectRef
	Relation string
	Subject  SubjectRef
}

// String renders resource#relation@subject, the canonical tuple form.
func (r Relationship) String() string {
	return fmt.Sprintf("%s#%s@%s", r.Resource, r.Relation, r.Subject)
}

// RelationshipFilter selects tuples by any combination of coordinates.
// ResourceType is required; all other fields are optional (empty = wildcard).
type RelationshipFilter struct {
	ResourceType string
	ResourceID   string
	Relation     string
	SubjectType  string
	SubjectID    string
}

// String renders the filter for logs and error messages.
func (f RelationshipFilter) String() string {
	parts := []string{"type=" + f.ResourceType}
	if f.ResourceID != "" {
		parts = append(parts, "id="+f.ResourceID)
	}
	if f.Relation != "" {
		parts = append(parts, "relation="+f.Relation)
	}
	if f.SubjectType != "" {
		parts = append(parts, "subject_type="+f.SubjectType)
	}
	if f.SubjectID != "" {
		parts = append(parts, "subject_id="+f.SubjectID)
	}
	return strings.Join(parts, " ")
}

// OpKind discriminates tuple operations.
type OpKind int

const (
	// OpWrite upserts a single tuple.
	OpWrite OpKind = iota
	// OpDelete removes a single tuple.
	OpDelete
	// OpDeleteByFilter removes every tuple matching a filter.
	OpDeleteByFilter
)

// String returns the operation kind name.
func (k OpKind) String() string {
	switch k {
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	case OpDeleteByFilter:
		return "delete_by_filter"
	default:
		return "unknown"
	}
}

// TupleOperation is one step of a translated event. Translators emit
// operations in a total order; the worker preserves that order when applying
// them to the policy engine.
type TupleOperation struct {
	Kind         OpKind
	Relationship Relationship       // OpWrite, OpDelete
	Filter       RelationshipFilter // OpDeleteByFilter
}

// Write builds a tuple upsert operation.
func Write(resource ObjectRef, relation string, subject SubjectRef) TupleOperation {
	return TupleOperation{
		Kind:         OpWrite,
		Relationship: Relationship{Resource: resource, Relation: relation, Subject: subject},
	}
}

// Delete builds a single-tuple delete operation.
func Delete(resource ObjectRef, relation string, subject SubjectRef) TupleOperation {
	return TupleOperation{
		Kind:         OpDelete,
		Relationship: Relationship{Resource: resource, Relation: relation, Subject: subject},
	}
}

// DeleteByFilter builds a filtered delete operation.
func DeleteByFilter(filter RelationshipFilter) TupleOperation {
	return TupleOperation{Kind: OpDeleteByFilter, Filter: filter}
}
