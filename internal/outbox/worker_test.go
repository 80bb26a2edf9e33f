package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kartograph-backend/internal/authz"
	"kartograph-backend/internal/domain/events"
	"kartograph-backend/internal/domain/shared"
	"kartograph-backend/internal/observability"
)

// fakeStore serves entries from memory with the repository's semantics: a
// handler failure fails the whole batch, success marks every entry processed.
type fakeStore struct {
	mu        sync.Mutex
	entries   []Entry
	retries   map[uuid.UUID]int
	lastLimit int
}

func newFakeStore(entries ...Entry) *fakeStore {
	return &fakeStore{entries: entries, retries: make(map[uuid.UUID]int)}
}

func (s *fakeStore) ProcessBatch(ctx context.Context, limit int, handle func(context.Context, *Entry) error) (BatchStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit

	var stats BatchStats
	var handled []int
	for i := range s.entries {
		entry := &s.entries[i]
		if entry.ProcessedAt != nil || entry.DeadLettered {
			continue
		}
		if stats.Claimed == limit {
			break
		}
		stats.Claimed++
		if err := handle(ctx, entry); err != nil {
			return stats, &EntryError{EntryID: entry.ID, EventType: entry.EventType, Err: err}
		}
		handled = append(handled, i)
	}
	now := time.Now()
	for _, i := range handled {
		s.entries[i].ProcessedAt = &now
		stats.Processed++
	}
	return stats, nil
}

func (s *fakeStore) RecordFailure(ctx context.Context, id uuid.UUID, maxRetries int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.retries[id]++
	if s.retries[id] >= maxRetries {
		for i := range s.entries {
			if s.entries[i].ID == id {
				s.entries[i].DeadLettered = true
			}
		}
		return true, nil
	}
	return false, nil
}

// fakeEngine records calls in order.
type fakeEngine struct {
	mu    sync.Mutex
	calls []engineCall
	fail  bool
}

type engineCall struct {
	op     string
	tuples []authz.Relationship
	filter authz.RelationshipFilter
}

func (e *fakeEngine) record(call engineCall) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fail {
		return assert.AnError
	}
	e.calls = append(e.calls, call)
	return nil
}

func (e *fakeEngine) WriteRelationships(_ context.Context, tuples []authz.Relationship) error {
	copied := append([]authz.Relationship(nil), tuples...)
	return e.record(engineCall{op: "write", tuples: copied})
}

func (e *fakeEngine) DeleteRelationships(_ context.Context, tuples []authz.Relationship) error {
	copied := append([]authz.Relationship(nil), tuples...)
	return e.record(engineCall{op: "delete", tuples: copied})
}

func (e *fakeEngine) DeleteRelationshipsByFilter(_ context.Context, filter authz.RelationshipFilter) error {
	return e.record(engineCall{op: "delete_by_filter", filter: filter})
}

func (e *fakeEngine) CheckPermission(context.Context, authz.ObjectRef, string, authz.SubjectRef) (bool, error) {
	return false, nil
}

func (e *fakeEngine) LookupResources(context.Context, string, string, authz.SubjectRef) ([]string, error) {
	return nil, nil
}

func (e *fakeEngine) LookupSubjects(context.Context, authz.ObjectRef, string, string) ([]string, error) {
	return nil, nil
}

func (e *fakeEngine) ReadRelationships(context.Context, authz.RelationshipFilter) ([]authz.Relationship, error) {
	return nil, nil
}

func newTestWorker(t *testing.T, store Store, engine authz.PolicyEngine, cfg WorkerConfig) *Worker {
	t.Helper()
	registry := NewIAMRegistry()
	translator, err := authz.NewIAMTranslator()
	require.NoError(t, err)
	return NewWorker(
		store, registry, translator, engine,
		NewPollSource(time.Hour),
		cfg,
		observability.NewCollector("test"),
		zap.NewNop(),
	)
}

func entryFor(t *testing.T, registry *Registry, event shared.DomainEvent) Entry {
	t.Helper()
	payload, err := registry.Serialize(event)
	require.NoError(t, err)
	id, err := uuid.NewV7()
	require.NoError(t, err)
	return Entry{
		ID:            id,
		AggregateType: event.AggregateType(),
		AggregateID:   event.AggregateID(),
		EventType:     event.EventType(),
		Payload:       payload,
		CreatedAt:     time.Now(),
	}
}

func TestWorker_ProcessBatchAppliesInOrder(t *testing.T) {
	registry := NewIAMRegistry()
	store := newFakeStore(
		entryFor(t, registry, &events.MemberRoleChanged{
			GroupID: "g1", UserID: "u1",
			OldRole: "member", NewRole: "admin",
			OccurredAt: occurredAt,
		}),
	)
	engine := &fakeEngine{}
	worker := newTestWorker(t, store, engine, WorkerConfig{BatchSize: 10, MaxRetries: 3})

	claimed, err := worker.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, claimed)

	// The role swap must delete the old role before writing the new one.
	require.Len(t, engine.calls, 2)
	assert.Equal(t, "delete", engine.calls[0].op)
	assert.Equal(t, "write", engine.calls[1].op)
	assert.Equal(t, "group:g1#member@user:u1", engine.calls[0].tuples[0].String())
	assert.Equal(t, "group:g1#admin@user:u1", engine.calls[1].tuples[0].String())
}

func TestWorker_BatchesConsecutiveSameKindOps(t *testing.T) {
	registry := NewIAMRegistry()
	store := newFakeStore(
		entryFor(t, registry, &events.GroupDeleted{
			GroupID:  "g1",
			TenantID: "t1",
			Members: []events.GroupMember{
				{UserID: "u1", Role: "admin"},
				{UserID: "u2", Role: "member"},
			},
			OccurredAt: occurredAt,
		}),
	)
	engine := &fakeEngine{}
	worker := newTestWorker(t, store, engine, WorkerConfig{BatchSize: 10, MaxRetries: 3})

	_, err := worker.processBatch(context.Background())
	require.NoError(t, err)

	// All three deletes are consecutive, so one engine call covers them.
	require.Len(t, engine.calls, 1)
	assert.Equal(t, "delete", engine.calls[0].op)
	assert.Len(t, engine.calls[0].tuples, 3)
}

func TestWorker_FilterDeleteFlushesPendingOps(t *testing.T) {
	registry := NewIAMRegistry()
	store := newFakeStore(
		entryFor(t, registry, &events.TenantDeleted{
			TenantID:   "t1",
			Members:    []events.TenantMember{{UserID: "u1", Role: "admin"}},
			OccurredAt: occurredAt,
		}),
	)
	engine := &fakeEngine{}
	worker := newTestWorker(t, store, engine, WorkerConfig{BatchSize: 10, MaxRetries: 3})

	_, err := worker.processBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, engine.calls, 2)
	assert.Equal(t, "delete_by_filter", engine.calls[0].op)
	assert.Equal(t, "tenant", engine.calls[0].filter.ResourceType)
	assert.Equal(t, "delete", engine.calls[1].op)
}

func TestWorker_FailedEntryDeadLettersAfterMaxRetries(t *testing.T) {
	registry := NewIAMRegistry()
	entry := entryFor(t, registry, &events.GroupCreated{
		GroupID: "g1", TenantID: "t1", OccurredAt: occurredAt,
	})
	store := newFakeStore(entry)
	engine := &fakeEngine{fail: true}
	worker := newTestWorker(t, store, engine, WorkerConfig{BatchSize: 10, MaxRetries: 3})

	for i := 0; i < 3; i++ {
		_, err := worker.processBatch(context.Background())
		require.Error(t, err)
	}

	// After max_retries failures the row is parked and no longer claimed.
	assert.True(t, store.entries[0].DeadLettered)
	claimed, err := worker.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, claimed)
}

func TestWorker_ReplayIsIdempotent(t *testing.T) {
	registry := NewIAMRegistry()
	event := &events.MemberAdded{GroupID: "g1", UserID: "u1", Role: "member", OccurredAt: occurredAt}
	store := newFakeStore(entryFor(t, registry, event), entryFor(t, registry, event))
	engine := &fakeEngine{}
	worker := newTestWorker(t, store, engine, WorkerConfig{BatchSize: 10, MaxRetries: 3})

	_, err := worker.processBatch(context.Background())
	require.NoError(t, err)

	// Duplicate delivery produces the same upsert twice; both succeed.
	require.Len(t, engine.calls, 2)
	assert.Equal(t, engine.calls[0], engine.calls[1])
}

func TestWorker_StartStop(t *testing.T) {
	store := newFakeStore()
	worker := newTestWorker(t, store, &fakeEngine{}, WorkerConfig{BatchSize: 10, MaxRetries: 3})

	require.NoError(t, worker.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, worker.Stop(ctx))

	// Repeated shutdown (signal races, deferred cleanup) must not panic.
	require.NotPanics(t, func() {
		require.NoError(t, worker.Stop(ctx))
	})
}

func TestWorker_UpdateConfigAppliesNewKnobs(t *testing.T) {
	registry := NewIAMRegistry()
	store := newFakeStore(
		entryFor(t, registry, &events.GroupCreated{GroupID: "g1", TenantID: "t1", OccurredAt: occurredAt}),
	)
	worker := newTestWorker(t, store, &fakeEngine{}, WorkerConfig{
		BatchSize:    10,
		PollInterval: 5 * time.Second,
		MaxRetries:   3,
	})

	worker.UpdateConfig(WorkerConfig{
		BatchSize:    7,
		PollInterval: time.Second,
		MaxRetries:   4,
	})

	_, err := worker.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, store.lastLimit, "reloaded batch size drives the next claim")

	cfg := worker.config()
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 4, cfg.MaxRetries)

	// Zero-valued knobs fall back to defaults instead of wedging the loop.
	worker.UpdateConfig(WorkerConfig{})
	cfg = worker.config()
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}
