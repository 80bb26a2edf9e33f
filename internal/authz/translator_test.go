package authz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartograph-backend/internal/domain/events"
	"kartograph-backend/internal/domain/shared"
	"kartograph-backend/internal/errors"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func translate(t *testing.T, event shared.DomainEvent) []TupleOperation {
	t.Helper()
	composite, err := NewIAMTranslator()
	require.NoError(t, err)
	ops, err := composite.Translate(event)
	require.NoError(t, err)
	return ops
}

func TestGroupTranslator(t *testing.T) {
	tests := []struct {
		name     string
		event    shared.DomainEvent
		expected []TupleOperation
	}{
		{
			name:  "group created links tenant",
			event: &events.GroupCreated{GroupID: "g1", TenantID: "t1", OccurredAt: now},
			expected: []TupleOperation{
				Write(ObjectRef{Type: "group", ID: "g1"}, "tenant", Tenant("t1")),
			},
		},
		{
			name: "group deleted removes tenant link then member roles",
			event: &events.GroupDeleted{
				GroupID:  "g1",
				TenantID: "t1",
				Members: []events.GroupMember{
					{UserID: "u1", Role: "admin"},
					{UserID: "u2", Role: "member"},
				},
				OccurredAt: now,
			},
			expected: []TupleOperation{
				Delete(ObjectRef{Type: "group", ID: "g1"}, "tenant", Tenant("t1")),
				Delete(ObjectRef{Type: "group", ID: "g1"}, "admin", User("u1")),
				Delete(ObjectRef{Type: "group", ID: "g1"}, "member", User("u2")),
			},
		},
		{
			name:  "member added writes role tuple",
			event: &events.MemberAdded{GroupID: "g1", UserID: "u1", Role: "member", OccurredAt: now},
			expected: []TupleOperation{
				Write(ObjectRef{Type: "group", ID: "g1"}, "member", User("u1")),
			},
		},
		{
			name:  "member removed deletes role tuple",
			event: &events.MemberRemoved{GroupID: "g1", UserID: "u1", Role: "member", OccurredAt: now},
			expected: []TupleOperation{
				Delete(ObjectRef{Type: "group", ID: "g1"}, "member", User("u1")),
			},
		},
		{
			name: "role change deletes old role before writing new",
			event: &events.MemberRoleChanged{
				GroupID: "g1", UserID: "u1",
				OldRole: "member", NewRole: "admin",
				OccurredAt: now,
			},
			expected: []TupleOperation{
				Delete(ObjectRef{Type: "group", ID: "g1"}, "member", User("u1")),
				Write(ObjectRef{Type: "group", ID: "g1"}, "admin", User("u1")),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, translate(t, tt.event))
		})
	}
}

func TestAPIKeyTranslator(t *testing.T) {
	tests := []struct {
		name     string
		event    shared.DomainEvent
		expected []TupleOperation
	}{
		{
			name:  "key created writes owner and tenant",
			event: &events.APIKeyCreated{KeyID: "k1", UserID: "u1", TenantID: "t1", OccurredAt: now},
			expected: []TupleOperation{
				Write(ObjectRef{Type: "api_key", ID: "k1"}, "owner", User("u1")),
				Write(ObjectRef{Type: "api_key", ID: "k1"}, "tenant", Tenant("t1")),
			},
		},
		{
			// Revocation is an authentication-time concern; the tuples stay.
			name:     "key revoked emits nothing",
			event:    &events.APIKeyRevoked{KeyID: "k1", UserID: "u1", OccurredAt: now},
			expected: nil,
		},
		{
			name:  "key deleted removes owner and tenant",
			event: &events.APIKeyDeleted{KeyID: "k1", UserID: "u1", TenantID: "t1", OccurredAt: now},
			expected: []TupleOperation{
				Delete(ObjectRef{Type: "api_key", ID: "k1"}, "owner", User("u1")),
				Delete(ObjectRef{Type: "api_key", ID: "k1"}, "tenant", Tenant("t1")),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, translate(t, tt.event))
		})
	}
}

func TestWorkspaceTranslator(t *testing.T) {
	tests := []struct {
		name     string
		event    shared.DomainEvent
		expected []TupleOperation
	}{
		{
			name:  "root workspace created marks tenant root",
			event: &events.WorkspaceCreated{WorkspaceID: "w1", TenantID: "t1", OccurredAt: now},
			expected: []TupleOperation{
				Write(ObjectRef{Type: "workspace", ID: "w1"}, "tenant", Tenant("t1")),
				Write(ObjectRef{Type: "tenant", ID: "t1"}, "root_workspace", Workspace("w1")),
			},
		},
		{
			name:  "child workspace created links parent",
			event: &events.WorkspaceCreated{WorkspaceID: "w2", TenantID: "t1", ParentID: "w1", OccurredAt: now},
			expected: []TupleOperation{
				Write(ObjectRef{Type: "workspace", ID: "w2"}, "tenant", Tenant("t1")),
				Write(ObjectRef{Type: "workspace", ID: "w2"}, "parent", Workspace("w1")),
			},
		},
		{
			name:  "child workspace deleted removes parent link",
			event: &events.WorkspaceDeleted{WorkspaceID: "w2", TenantID: "t1", ParentID: "w1", OccurredAt: now},
			expected: []TupleOperation{
				Delete(ObjectRef{Type: "workspace", ID: "w2"}, "tenant", Tenant("t1")),
				Delete(ObjectRef{Type: "workspace", ID: "w2"}, "parent", Workspace("w1")),
			},
		},
		{
			name: "group member added uses transitive subject",
			event: &events.WorkspaceMemberAdded{
				WorkspaceID: "w1", MemberID: "g1",
				MemberKind: events.MemberKindGroup, Role: "member",
				OccurredAt: now,
			},
			expected: []TupleOperation{
				Write(ObjectRef{Type: "workspace", ID: "w1"}, "member", GroupMembers("g1")),
			},
		},
		{
			name: "user member removed deletes plain subject",
			event: &events.WorkspaceMemberRemoved{
				WorkspaceID: "w1", MemberID: "u1",
				MemberKind: events.MemberKindUser, Role: "admin",
				OccurredAt: now,
			},
			expected: []TupleOperation{
				Delete(ObjectRef{Type: "workspace", ID: "w1"}, "admin", User("u1")),
			},
		},
		{
			name: "member role change swaps tuples in order",
			event: &events.WorkspaceMemberRoleChanged{
				WorkspaceID: "w1", MemberID: "u1",
				MemberKind: events.MemberKindUser,
				OldRole:    "member", NewRole: "admin",
				OccurredAt: now,
			},
			expected: []TupleOperation{
				Delete(ObjectRef{Type: "workspace", ID: "w1"}, "member", User("u1")),
				Write(ObjectRef{Type: "workspace", ID: "w1"}, "admin", User("u1")),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, translate(t, tt.event))
		})
	}
}

func TestTenantTranslator(t *testing.T) {
	tests := []struct {
		name     string
		event    shared.DomainEvent
		expected []TupleOperation
	}{
		{
			name:  "member added writes role tuple",
			event: &events.TenantMemberAdded{TenantID: "t1", UserID: "u1", Role: "admin", OccurredAt: now},
			expected: []TupleOperation{
				Write(ObjectRef{Type: "tenant", ID: "t1"}, "admin", User("u1")),
			},
		},
		{
			// The event carries no role, so both role tuples are deleted;
			// deleting an absent tuple is a no-op in the engine.
			name:  "member removed deletes every role tuple",
			event: &events.TenantMemberRemoved{TenantID: "t1", UserID: "u1", OccurredAt: now},
			expected: []TupleOperation{
				Delete(ObjectRef{Type: "tenant", ID: "t1"}, "admin", User("u1")),
				Delete(ObjectRef{Type: "tenant", ID: "t1"}, "member", User("u1")),
			},
		},
		{
			name: "tenant deleted clears root link then member roles",
			event: &events.TenantDeleted{
				TenantID: "t1",
				Members: []events.TenantMember{
					{UserID: "u1", Role: "admin"},
					{UserID: "u2", Role: "member"},
				},
				OccurredAt: now,
			},
			expected: []TupleOperation{
				DeleteByFilter(RelationshipFilter{
					ResourceType: "tenant",
					ResourceID:   "t1",
					Relation:     "root_workspace",
				}),
				Delete(ObjectRef{Type: "tenant", ID: "t1"}, "admin", User("u1")),
				Delete(ObjectRef{Type: "tenant", ID: "t1"}, "member", User("u2")),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, translate(t, tt.event))
		})
	}
}

type fakeEvent struct{ kind string }

func (e *fakeEvent) EventType() string     { return e.kind }
func (e *fakeEvent) AggregateType() string { return "fake" }
func (e *fakeEvent) AggregateID() string   { return "x" }
func (e *fakeEvent) Timestamp() time.Time  { return now }

type fakeTranslator struct{ types []string }

func (f *fakeTranslator) SupportedEventTypes() []string { return f.types }
func (f *fakeTranslator) Translate(shared.DomainEvent) ([]TupleOperation, error) {
	return nil, nil
}

func TestCompositeTranslator_UnknownType(t *testing.T) {
	composite, err := NewIAMTranslator()
	require.NoError(t, err)

	_, err = composite.Translate(&fakeEvent{kind: "NoSuchEvent"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUnknownEventKind))
}

func TestCompositeTranslator_DuplicateClaim(t *testing.T) {
	_, err := NewCompositeTranslator(
		&fakeTranslator{types: []string{"A", "B"}},
		&fakeTranslator{types: []string{"B"}},
	)
	require.Error(t, err)
}

func TestTupleRendering(t *testing.T) {
	rel := Relationship{
		Resource: ObjectRef{Type: "workspace", ID: "w1"},
		Relation: "member",
		Subject:  GroupMembers("g1"),
	}
	assert.Equal(t, "workspace:w1#member@group:g1#member", rel.String())
	assert.Equal(t, "user:u1", User("u1").String())
}
