package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartograph-backend/internal/domain/events"
	"kartograph-backend/internal/domain/shared"
	"kartograph-backend/internal/errors"
)

var occurredAt = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRegistry_RoundTrip(t *testing.T) {
	registry := NewIAMRegistry()

	tests := []struct {
		name  string
		event shared.DomainEvent
	}{
		{
			name:  "group created",
			event: &events.GroupCreated{GroupID: "g1", TenantID: "t1", OccurredAt: occurredAt},
		},
		{
			name: "group deleted with member snapshot",
			event: &events.GroupDeleted{
				GroupID:  "g1",
				TenantID: "t1",
				Members: []events.GroupMember{
					{UserID: "u1", Role: "admin"},
					{UserID: "u2", Role: "member"},
				},
				OccurredAt: occurredAt,
			},
		},
		{
			name: "member role changed",
			event: &events.MemberRoleChanged{
				GroupID: "g1", UserID: "u1",
				OldRole: "member", NewRole: "admin",
				OccurredAt: occurredAt,
			},
		},
		{
			name:  "api key created",
			event: &events.APIKeyCreated{KeyID: "k1", UserID: "u1", TenantID: "t1", OccurredAt: occurredAt},
		},
		{
			name:  "root workspace created",
			event: &events.WorkspaceCreated{WorkspaceID: "w1", TenantID: "t1", OccurredAt: occurredAt},
		},
		{
			name: "workspace member added for a group",
			event: &events.WorkspaceMemberAdded{
				WorkspaceID: "w1", MemberID: "g1",
				MemberKind: events.MemberKindGroup, Role: "member",
				OccurredAt: occurredAt,
			},
		},
		{
			name: "tenant deleted with member snapshot",
			event: &events.TenantDeleted{
				TenantID:   "t1",
				Members:    []events.TenantMember{{UserID: "u1", Role: "admin"}},
				OccurredAt: occurredAt,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := registry.Serialize(tt.event)
			require.NoError(t, err)

			restored, err := registry.Deserialize(tt.event.EventType(), payload)
			require.NoError(t, err)
			assert.Equal(t, tt.event, restored)
		})
	}
}

func TestRegistry_UnknownEventType(t *testing.T) {
	registry := NewIAMRegistry()

	_, err := registry.Deserialize("NoSuchEvent", []byte(`{}`))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindUnknownEventKind))
}

func TestRegistry_PayloadValidation(t *testing.T) {
	registry := NewIAMRegistry()

	tests := []struct {
		name      string
		eventType string
		payload   string
	}{
		{
			name:      "missing required field",
			eventType: events.EventTypeGroupCreated,
			payload:   `{"group_id":"g1"}`,
		},
		{
			name:      "invalid member kind",
			eventType: events.EventTypeWorkspaceMemberAdded,
			payload:   `{"workspace_id":"w1","member_id":"x","member_kind":"robot","role":"member"}`,
		},
		{
			name:      "malformed json",
			eventType: events.EventTypeGroupCreated,
			payload:   `{"group_id":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.Deserialize(tt.eventType, []byte(tt.payload))
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindPayloadSchemaMismatch))
		})
	}
}

func TestRegistry_SerializeRejectsInvalidEvent(t *testing.T) {
	registry := NewIAMRegistry()

	_, err := registry.Serialize(&events.GroupCreated{GroupID: "g1"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindPayloadSchemaMismatch))
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	registry := NewRegistry()
	factory := func() shared.DomainEvent { return &events.GroupCreated{} }

	require.NoError(t, registry.Register("X", factory))
	require.Error(t, registry.Register("X", factory))
}
