package outbox

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"kartograph-backend/internal/errors"
)

// schemaStatements bootstrap the outbox table, the claim index, and the
// notification trigger. Every statement is idempotent so EnsureSchema can run
// at every process start.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS outbox_entries (
		id             UUID PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		event_type     TEXT NOT NULL,
		payload        JSONB NOT NULL,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		processed_at   TIMESTAMPTZ,
		retry_count    INT NOT NULL DEFAULT 0,
		dead_lettered  BOOLEAN NOT NULL DEFAULT FALSE
	)`,

	// Serves the claim query's processed_at IS NULL scan in id order.
	`CREATE INDEX IF NOT EXISTS outbox_entries_claim_idx
		ON outbox_entries (processed_at, id)`,

	`CREATE OR REPLACE FUNCTION outbox_notify() RETURNS trigger AS $$
	BEGIN
		PERFORM pg_notify('outbox_events', NEW.id::text);
		RETURN NEW;
	END;
	$$ LANGUAGE plpgsql`,

	`DROP TRIGGER IF EXISTS outbox_entries_notify ON outbox_entries`,

	`CREATE TRIGGER outbox_entries_notify
		AFTER INSERT ON outbox_entries
		FOR EACH ROW EXECUTE FUNCTION outbox_notify()`,
}

// EnsureSchema creates the outbox table, claim index, and notify trigger if
// they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return errors.Database("ensure outbox schema", err)
		}
	}
	return nil
}
