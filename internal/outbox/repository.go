package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"kartograph-backend/internal/domain/shared"
	"kartograph-backend/internal/errors"
)

// SQL statements kept as constants for clarity and reuse.
const (
	appendSQL = `
INSERT INTO outbox_entries (id, aggregate_type, aggregate_id, event_type, payload)
VALUES ($1, $2, $3, $4, $5)`

	claimSQL = `
SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, retry_count
FROM outbox_entries
WHERE processed_at IS NULL AND NOT dead_lettered
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED`

	markProcessedSQL = `UPDATE outbox_entries SET processed_at = now() WHERE id = $1`

	recordFailureSQL = `
UPDATE outbox_entries
SET retry_count = retry_count + 1,
    dead_lettered = (retry_count + 1 >= $2)
WHERE id = $1 AND processed_at IS NULL
RETURNING dead_lettered`

	listDeadLetteredSQL = `
SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, retry_count
FROM outbox_entries
WHERE dead_lettered
ORDER BY id
LIMIT $1`

	requeueSQL = `
UPDATE outbox_entries
SET dead_lettered = FALSE, retry_count = 0
WHERE id = $1 AND processed_at IS NULL`
)

// Repository persists and claims outbox rows.
type Repository struct {
	pool     *pgxpool.Pool
	registry *Registry
	logger   *zap.Logger
}

// NewRepository creates an outbox repository.
func NewRepository(pool *pgxpool.Pool, registry *Registry, logger *zap.Logger) *Repository {
	return &Repository{pool: pool, registry: registry, logger: logger}
}

// Append inserts a serialized event row inside the caller's open transaction.
// It never opens its own transaction: event durability and aggregate
// durability share the caller's atomicity boundary. On commit the insert
// trigger notifies the worker with the new row's id.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, event shared.DomainEvent) (uuid.UUID, error) {
	payload, err := r.registry.Serialize(event)
	if err != nil {
		return uuid.Nil, err
	}
	return r.AppendRaw(ctx, tx, event.AggregateType(), event.AggregateID(), event.EventType(), payload)
}

// AppendRaw inserts a pre-serialized payload inside the caller's transaction.
func (r *Repository) AppendRaw(ctx context.Context, tx pgx.Tx, aggregateType, aggregateID, eventType string, payload []byte) (uuid.UUID, error) {
	// UUIDv7 keeps id order aligned with insert order within a session.
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, errors.Internal("failed to generate outbox id", err)
	}
	if _, err := tx.Exec(ctx, appendSQL, id, aggregateType, aggregateID, eventType, payload); err != nil {
		return uuid.Nil, errors.Database("append outbox entry", err)
	}
	return id, nil
}

// AppendAll drains an aggregate's uncommitted events into the outbox, in
// occurrence order, inside the caller's transaction.
func (r *Repository) AppendAll(ctx context.Context, tx pgx.Tx, aggregate shared.EventAggregate) error {
	for _, event := range aggregate.UncommittedEvents() {
		if _, err := r.Append(ctx, tx, event); err != nil {
			return err
		}
	}
	aggregate.MarkEventsCommitted()
	return nil
}

// ProcessBatch claims up to limit unprocessed rows under row-level locks
// (SKIP LOCKED, so concurrent workers do not starve each other), invokes
// handle for each in ascending id order, and marks handled rows processed.
// The whole batch shares one transaction: the first handle failure rolls
// everything back and is returned wrapped in an *EntryError.
func (r *Repository) ProcessBatch(ctx context.Context, limit int, handle func(context.Context, *Entry) error) (BatchStats, error) {
	var stats BatchStats

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return stats, errors.Database("begin claim transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entries, err := r.claim(ctx, tx, limit)
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(entries)
	if len(entries) == 0 {
		return stats, tx.Commit(ctx)
	}

	for i := range entries {
		entry := &entries[i]
		if err := handle(ctx, entry); err != nil {
			return stats, &EntryError{EntryID: entry.ID, EventType: entry.EventType, Err: err}
		}
		if _, err := tx.Exec(ctx, markProcessedSQL, entry.ID); err != nil {
			return stats, errors.Database("mark outbox entry processed", err)
		}
		stats.Processed++
	}

	if err := tx.Commit(ctx); err != nil {
		return stats, errors.Database("commit claim transaction", err)
	}
	return stats, nil
}

// claim selects and locks the next batch of unprocessed rows.
func (r *Repository) claim(ctx context.Context, tx pgx.Tx, limit int) ([]Entry, error) {
	rows, err := tx.Query(ctx, claimSQL, limit)
	if err != nil {
		return nil, errors.Database("claim outbox entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.RetryCount); err != nil {
			return nil, errors.Database("scan outbox entry", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Database("iterate outbox entries", err)
	}
	return entries, nil
}

// RecordFailure bumps a row's retry count in its own short transaction,
// after the claim transaction has rolled back, and parks the row once
// maxRetries consecutive attempts have failed. Returns whether the row was
// dead-lettered.
func (r *Repository) RecordFailure(ctx context.Context, id uuid.UUID, maxRetries int) (bool, error) {
	var deadLettered bool
	err := r.pool.QueryRow(ctx, recordFailureSQL, id, maxRetries).Scan(&deadLettered)
	if err != nil {
		if err == pgx.ErrNoRows {
			// Row was processed or removed concurrently; nothing to record.
			return false, nil
		}
		return false, errors.Database("record outbox failure", err)
	}
	if deadLettered {
		r.logger.Warn("outbox entry dead-lettered after exhausting retries",
			zap.String("entry_id", id.String()),
			zap.Int("max_retries", maxRetries),
		)
	}
	return deadLettered, nil
}

// ListDeadLettered returns parked rows for operator inspection.
func (r *Repository) ListDeadLettered(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, listDeadLetteredSQL, limit)
	if err != nil {
		return nil, errors.Database("list dead-lettered entries", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		e.DeadLettered = true
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.RetryCount); err != nil {
			return nil, errors.Database("scan dead-lettered entry", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Requeue returns a dead-lettered row to the claimable set with a fresh
// retry budget.
func (r *Repository) Requeue(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, requeueSQL, id)
	if err != nil {
		return errors.Database("requeue outbox entry", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.Validation("no unprocessed entry with that id", id.String())
	}
	return nil
}

// UnprocessedCount reports the claimable backlog, used by health checks.
func (r *Repository) UnprocessedCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM outbox_entries WHERE processed_at IS NULL AND NOT dead_lettered`,
	).Scan(&count)
	if err != nil {
		return 0, errors.Database("count unprocessed entries", err)
	}
	return count, nil
}

// OldestUnprocessedAge is exposed for monitoring dashboards.
func (r *Repository) OldestUnprocessedAge(ctx context.Context) (time.Duration, error) {
	var seconds *float64
	err := r.pool.QueryRow(ctx,
		`SELECT EXTRACT(EPOCH FROM now() - min(created_at))
		 FROM outbox_entries WHERE processed_at IS NULL AND NOT dead_lettered`,
	).Scan(&seconds)
	if err != nil {
		return 0, errors.Database("oldest unprocessed age", err)
	}
	if seconds == nil {
		return 0, nil
	}
	return time.Duration(*seconds * float64(time.Second)), nil
}
