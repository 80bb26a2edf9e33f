package authz

import (
	"context"
)

// PolicyEngine is the port the projection writes through and the IAM read
// paths query through. Implementations must be idempotent with respect to
// tuple identity: writing an existing tuple or deleting an absent one
// succeeds, because the outbox delivers at least once and the worker may
// replay an event after a crash.
type PolicyEngine interface {
	// WriteRelationships upserts the given tuples in one call.
	WriteRelationships(ctx context.Context, tuples []Relationship) error

	// DeleteRelationships removes the given tuples in one call.
	DeleteRelationships(ctx context.Context, tuples []Relationship) error

	// DeleteRelationshipsByFilter removes every tuple matching the filter.
	DeleteRelationshipsByFilter(ctx context.Context, filter RelationshipFilter) error

	// CheckPermission reports whether subject holds permission on resource.
	CheckPermission(ctx context.Context, resource ObjectRef, permission string, subject SubjectRef) (bool, error)

	// LookupResources returns the ids of resources of resourceType on which
	// subject holds permission.
	LookupResources(ctx context.Context, resourceType, permission string, subject SubjectRef) ([]string, error)

	// LookupSubjects returns the ids of subjects of subjectType holding
	// permission on resource.
	LookupSubjects(ctx context.Context, resource ObjectRef, permission, subjectType string) ([]string, error)

	// ReadRelationships returns the tuples matching the filter.
	ReadRelationships(ctx context.Context, filter RelationshipFilter) ([]Relationship, error)
}
