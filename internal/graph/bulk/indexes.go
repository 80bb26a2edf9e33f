package bulk

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"kartograph-backend/internal/errors"
	"kartograph-backend/internal/graph"
)

// Indexer keeps every label table covered by the standard index set. Index
// creation is skip-if-exists by name, so re-running after new labels appear
// only touches the gap.
type Indexer struct {
	qb     *QueryBuilder
	logger *zap.Logger
}

// NewIndexer creates an indexer for the builder's graph.
func NewIndexer(qb *QueryBuilder, logger *zap.Logger) *Indexer {
	return &Indexer{qb: qb, logger: logger}
}

// indexSpec is one index on a label table: name suffix plus the USING clause
// body.
type indexSpec struct {
	suffix string
	using  string
}

// nodeIndexSpecs covers the predicates the upsert and delete SQL issues
// against node label tables. The expression index mirrors PropertyIDExpr
// exactly; the planner only matches it on textual equality.
func nodeIndexSpecs() []indexSpec {
	return []indexSpec{
		{suffix: "id_idx", using: "btree (id)"},
		{suffix: "properties_idx", using: "gin (properties)"},
		{
			suffix: "properties_id_idx",
			using: fmt.Sprintf("btree (%s) WHERE %s IS NOT NULL",
				PropertyIDExpr(""), PropertyIDExpr("")),
		},
	}
}

// edgeIndexSpecs adds endpoint columns on top of the node set.
func edgeIndexSpecs() []indexSpec {
	return append(nodeIndexSpecs(),
		indexSpec{suffix: "start_id_idx", using: "btree (start_id)"},
		indexSpec{suffix: "end_id_idx", using: "btree (end_id)"},
	)
}

const indexExistsSQL = `
SELECT EXISTS (
  SELECT 1 FROM pg_indexes
  WHERE schemaname = $1 AND indexname = $2
)`

// EnsureLabelIndexes creates any missing index from the standard set on one
// label table.
func (ix *Indexer) EnsureLabelIndexes(ctx context.Context, tx pgx.Tx, label string, kind graph.EntityKind) error {
	specs := nodeIndexSpecs()
	if kind == graph.KindEdge {
		specs = edgeIndexSpecs()
	}

	for _, spec := range specs {
		name := fmt.Sprintf("%s_%s", label, spec.suffix)

		var exists bool
		if err := tx.QueryRow(ctx, indexExistsSQL, ix.qb.Graph(), name).Scan(&exists); err != nil {
			return errors.Database("check index existence", err)
		}
		if exists {
			continue
		}

		createSQL := fmt.Sprintf(`CREATE INDEX %s ON %s USING %s`,
			ident(name), ix.qb.table(label), spec.using)
		if _, err := tx.Exec(ctx, createSQL); err != nil {
			return errors.Database("create label index", err)
		}
		ix.logger.Info("created label index",
			zap.String("graph", ix.qb.Graph()),
			zap.String("label", label),
			zap.String("index", name),
		)
	}
	return nil
}

// EnsureAllIndexes walks every non-system label in the catalog and ensures
// its index set. Labels are classified as edge tables when the edge parent
// is among their ancestors.
func (ix *Indexer) EnsureAllIndexes(ctx context.Context, tx pgx.Tx) error {
	rows, err := tx.Query(ctx, labelKindsSQL, ix.qb.Graph())
	if err != nil {
		return errors.Database("list graph labels", err)
	}
	defer rows.Close()

	type labeled struct {
		name string
		kind graph.EntityKind
	}
	var labels []labeled
	for rows.Next() {
		var name, kind string
		if err := rows.Scan(&name, &kind); err != nil {
			return errors.Database("scan graph label", err)
		}
		entity := graph.KindNode
		if kind == "e" {
			entity = graph.KindEdge
		}
		labels = append(labels, labeled{name: name, kind: entity})
	}
	if err := rows.Err(); err != nil {
		return errors.Database("iterate graph labels", err)
	}
	rows.Close()

	for _, l := range labels {
		if err := ix.EnsureLabelIndexes(ctx, tx, l.name, l.kind); err != nil {
			return err
		}
	}
	return nil
}

// labelKindsSQL lists (name, kind) for every non-system label; kind is the
// catalog's single-letter vertex/edge marker.
const labelKindsSQL = `
SELECT l.name, l.kind
FROM ag_catalog.ag_label l
JOIN ag_catalog.ag_graph g ON g.graphid = l.graph
WHERE g.name = $1 AND l.name NOT LIKE '\_ag\_%'
ORDER BY l.name`
