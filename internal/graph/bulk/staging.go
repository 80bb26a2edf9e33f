package bulk

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"kartograph-backend/internal/errors"
	"kartograph-backend/internal/graph"
)

// StagingManager creates the transaction-scoped staging tables, streams
// operation rows into them over the COPY protocol, and runs the resolution
// and validation passes. All tables it creates are ON COMMIT DROP, so the
// enclosing transaction cleans them up on both commit and rollback.
type StagingManager struct {
	qb     *QueryBuilder
	logger *zap.Logger

	suffix string
	nodes  string
	edges  string
	lookup string
}

// orphanListLimit caps how many missing node ids an OrphanedEdgeRef error
// names; the total count is always reported.
const orphanListLimit = 10

// NewStagingManager creates a manager with a fresh session suffix so
// concurrent batches on one database never collide on table names.
func NewStagingManager(qb *QueryBuilder, logger *zap.Logger) *StagingManager {
	var raw [4]byte
	_, _ = rand.Read(raw[:])
	suffix := hex.EncodeToString(raw[:])
	return &StagingManager{
		qb:     qb,
		logger: logger,
		suffix: suffix,
		nodes:  "_staging_nodes_" + suffix,
		edges:  "_staging_edges_" + suffix,
		lookup: "_graphid_lookup_" + suffix,
	}
}

// NodeTable returns the node staging table name.
func (m *StagingManager) NodeTable() string { return m.nodes }

// EdgeTable returns the edge staging table name.
func (m *StagingManager) EdgeTable() string { return m.edges }

// ============================================================================
// TEMP TABLES AND COPY
// ============================================================================

// StageNodes creates the node staging table, copies the operations in, and
// indexes the label column.
func (m *StagingManager) StageNodes(ctx context.Context, tx pgx.Tx, ops []graph.Operation) error {
	createSQL := fmt.Sprintf(`
CREATE TEMP TABLE %s (
	id         TEXT NOT NULL,
	label      TEXT NOT NULL,
	properties TEXT NOT NULL
) ON COMMIT DROP`, ident(m.nodes))
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return errors.Database("create node staging table", err)
	}

	var sb strings.Builder
	for i := range ops {
		op := &ops[i]
		props, err := op.SetProperties.WithID(op.ID).CanonicalJSON()
		if err != nil {
			return err
		}
		sb.WriteString(copyRow(
			escapeCopyText(op.ID),
			escapeCopyText(op.Label),
			escapeCopyText(props),
		))
	}

	copySQL := fmt.Sprintf(`COPY %s (id, label, properties) FROM STDIN`, ident(m.nodes))
	if err := m.copyInto(ctx, tx, copySQL, sb.String()); err != nil {
		return err
	}

	indexSQL := fmt.Sprintf(`CREATE INDEX ON %s USING btree (label)`, ident(m.nodes))
	if _, err := tx.Exec(ctx, indexSQL); err != nil {
		return errors.Database("index node staging table", err)
	}
	return nil
}

// StageEdges creates the edge staging table, copies the operations in, and
// indexes label, start_id, and end_id for the resolution joins.
func (m *StagingManager) StageEdges(ctx context.Context, tx pgx.Tx, ops []graph.Operation) error {
	createSQL := fmt.Sprintf(`
CREATE TEMP TABLE %s (
	id            TEXT NOT NULL,
	label         TEXT NOT NULL,
	start_id      TEXT NOT NULL,
	end_id        TEXT NOT NULL,
	start_graphid ag_catalog.graphid,
	end_graphid   ag_catalog.graphid,
	properties    TEXT NOT NULL
) ON COMMIT DROP`, ident(m.edges))
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return errors.Database("create edge staging table", err)
	}

	var sb strings.Builder
	for i := range ops {
		op := &ops[i]
		props, err := op.SetProperties.WithID(op.ID).CanonicalJSON()
		if err != nil {
			return err
		}
		sb.WriteString(copyRow(
			escapeCopyText(op.ID),
			escapeCopyText(op.Label),
			escapeCopyText(op.StartID),
			escapeCopyText(op.EndID),
			escapeCopyText(props),
		))
	}

	copySQL := fmt.Sprintf(`COPY %s (id, label, start_id, end_id, properties) FROM STDIN`, ident(m.edges))
	if err := m.copyInto(ctx, tx, copySQL, sb.String()); err != nil {
		return err
	}

	for _, column := range []string{"label", "start_id", "end_id"} {
		indexSQL := fmt.Sprintf(`CREATE INDEX ON %s USING btree (%s)`, ident(m.edges), ident(column))
		if _, err := tx.Exec(ctx, indexSQL); err != nil {
			return errors.Database("index edge staging table", err)
		}
	}
	return nil
}

// copyInto streams pre-encoded COPY text rows through the wire protocol.
// The stream is one suspension point covering the whole row set.
func (m *StagingManager) copyInto(ctx context.Context, tx pgx.Tx, copySQL, rows string) error {
	if rows == "" {
		return nil
	}
	tag, err := tx.Conn().PgConn().CopyFrom(ctx, strings.NewReader(rows), copySQL)
	if err != nil {
		return errors.Database("copy staging rows", err)
	}
	m.logger.Debug("staged rows copied",
		zap.Int64("rows", tag.RowsAffected()),
		zap.String("session", m.suffix),
	)
	return nil
}

// ============================================================================
// VALIDATION
// ============================================================================

// CheckDuplicates fails the batch when a logical id appears more than once
// in the given staging table.
func (m *StagingManager) CheckDuplicates(ctx context.Context, tx pgx.Tx, table string) error {
	sql := fmt.Sprintf(`
SELECT id FROM %s GROUP BY id HAVING count(*) > 1 ORDER BY id LIMIT 10`, ident(table))
	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return errors.Database("check duplicate logical ids", err)
	}
	defer rows.Close()

	var dups []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return errors.Database("scan duplicate id", err)
		}
		dups = append(dups, id)
	}
	if err := rows.Err(); err != nil {
		return errors.Database("iterate duplicate ids", err)
	}
	if len(dups) > 0 {
		return errors.DuplicateLogicalID(dups...)
	}
	return nil
}

// DistinctLabels returns the label set present in a staging table so the
// strategy can pre-create the ones missing from the catalog.
func (m *StagingManager) DistinctLabels(ctx context.Context, tx pgx.Tx, table string) ([]string, error) {
	sql := fmt.Sprintf(`SELECT DISTINCT label FROM %s ORDER BY label`, ident(table))
	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, errors.Database("read distinct labels", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, errors.Database("scan label", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// ============================================================================
// GRAPH-ID RESOLUTION
// ============================================================================

// BuildGraphIDLookup materializes a flat (logical_id, graph_id) table over
// the parent vertex table. Joining against this flat table instead of the
// inherited hierarchy cuts edge resolution time substantially.
func (m *StagingManager) BuildGraphIDLookup(ctx context.Context, tx pgx.Tx) error {
	createSQL := fmt.Sprintf(`
CREATE TEMP TABLE %s ON COMMIT DROP AS
SELECT trim(both '"' from %s::text) AS logical_id, v.id AS graph_id
FROM %s AS v`,
		ident(m.lookup),
		PropertyIDExpr("v"),
		pgx.Identifier{m.qb.Graph(), parentVertexTable}.Sanitize(),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return errors.Database("build graph id lookup", err)
	}

	indexSQL := fmt.Sprintf(`CREATE INDEX ON %s USING btree (logical_id)`, ident(m.lookup))
	if _, err := tx.Exec(ctx, indexSQL); err != nil {
		return errors.Database("index graph id lookup", err)
	}
	return nil
}

// ResolveEdges fills start_graphid and end_graphid from the lookup table.
// The two endpoints resolve in separate UPDATEs: a single join on both keys
// at once degenerates into a cartesian product.
func (m *StagingManager) ResolveEdges(ctx context.Context, tx pgx.Tx) error {
	for _, pair := range [][2]string{
		{"start_graphid", "start_id"},
		{"end_graphid", "end_id"},
	} {
		sql := fmt.Sprintf(`
UPDATE %s AS s
SET %s = l.graph_id
FROM %s AS l
WHERE s.%s = l.logical_id`,
			ident(m.edges), ident(pair[0]), ident(m.lookup), ident(pair[1]))
		if _, err := tx.Exec(ctx, sql); err != nil {
			return errors.Database("resolve edge endpoints", err)
		}
	}
	return nil
}

// CheckOrphans fails the batch when any staged edge still has an unresolved
// endpoint, naming the first missing node ids and the total count.
func (m *StagingManager) CheckOrphans(ctx context.Context, tx pgx.Tx) error {
	countSQL := fmt.Sprintf(`
SELECT count(*) FROM %s WHERE start_graphid IS NULL OR end_graphid IS NULL`, ident(m.edges))
	var total int
	if err := tx.QueryRow(ctx, countSQL).Scan(&total); err != nil {
		return errors.Database("count orphaned edges", err)
	}
	if total == 0 {
		return nil
	}

	listSQL := fmt.Sprintf(`
SELECT DISTINCT missing FROM (
  SELECT start_id AS missing FROM %s WHERE start_graphid IS NULL
  UNION ALL
  SELECT end_id FROM %s WHERE end_graphid IS NULL
) AS u
ORDER BY missing
LIMIT %d`, ident(m.edges), ident(m.edges), orphanListLimit)
	rows, err := tx.Query(ctx, listSQL)
	if err != nil {
		return errors.Database("list orphaned edge refs", err)
	}
	defer rows.Close()

	var missing []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return errors.Database("scan orphaned edge ref", err)
		}
		missing = append(missing, id)
	}
	if err := rows.Err(); err != nil {
		return errors.Database("iterate orphaned edge refs", err)
	}
	return errors.OrphanedEdgeRef(missing, total)
}
