package bulk

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"kartograph-backend/internal/graph"
)

// Parent tables every label table inherits from.
const (
	parentVertexTable = "_ag_label_vertex"
	parentEdgeTable   = "_ag_label_edge"
)

// QueryBuilder emits the SQL families of the bulk loader for one graph.
// Every identifier that varies (graph, label, staging table) goes through
// the driver's identifier quoter; only typed parameters are interpolated by
// the server.
type QueryBuilder struct {
	graph string
}

// NewQueryBuilder creates a builder for the given graph.
func NewQueryBuilder(graph string) *QueryBuilder {
	return &QueryBuilder{graph: graph}
}

// Graph returns the graph name.
func (q *QueryBuilder) Graph() string {
	return q.graph
}

// table quotes graph.table.
func (q *QueryBuilder) table(name string) string {
	return pgx.Identifier{q.graph, name}.Sanitize()
}

// ident quotes a bare identifier.
func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// PropertyIDExpr is the text-extraction expression for the logical id inside
// properties. The same expression backs the expression index on every label
// table and every upsert/delete predicate; any drift between the two sends
// the planner back to sequential scans.
func PropertyIDExpr(qualifier string) string {
	if qualifier == "" {
		return `ag_catalog.agtype_access_operator(properties, '"id"'::agtype)`
	}
	return fmt.Sprintf(`ag_catalog.agtype_access_operator(%s.properties, '"id"'::agtype)`, qualifier)
}

// AgtypeID renders a logical id as the agtype string literal the extraction
// expression yields, for use in = ANY(...) parameter arrays.
func AgtypeID(id string) string {
	quoted, _ := json.Marshal(id)
	return string(quoted)
}

// AgtypeIDs renders a batch of logical ids.
func AgtypeIDs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = AgtypeID(id)
	}
	return out
}

// ============================================================================
// CATALOG QUERIES
// ============================================================================

// LabelLookupSQL returns (label_id, seq_name) for a (graph, label) pair.
func (q *QueryBuilder) LabelLookupSQL() string {
	return `
SELECT l.id, l.seq_name
FROM ag_catalog.ag_label l
JOIN ag_catalog.ag_graph g ON g.graphid = l.graph
WHERE g.name = $1 AND l.name = $2`
}

// LabelNamesSQL returns all non-system label names for a graph.
func (q *QueryBuilder) LabelNamesSQL() string {
	return `
SELECT l.name
FROM ag_catalog.ag_label l
JOIN ag_catalog.ag_graph g ON g.graphid = l.graph
WHERE g.name = $1 AND l.name NOT LIKE '\_ag\_%'`
}

// SequenceRegclass renders the fully-qualified sequence name for nextval.
func (q *QueryBuilder) SequenceRegclass(seqName string) string {
	return q.table(seqName)
}

// CreateVLabelSQL calls the extension's vertex-label creator.
func (q *QueryBuilder) CreateVLabelSQL() string {
	return `SELECT ag_catalog.create_vlabel($1, $2)`
}

// CreateELabelSQL calls the extension's edge-label creator.
func (q *QueryBuilder) CreateELabelSQL() string {
	return `SELECT ag_catalog.create_elabel($1, $2)`
}

// ============================================================================
// ADVISORY LOCKS
// ============================================================================

// AdvisoryLockSQL acquires a transaction-scoped advisory lock.
func (q *QueryBuilder) AdvisoryLockSQL() string {
	return `SELECT pg_advisory_xact_lock($1)`
}

// AdvisoryLockKey derives the lock key for a label: the low 63 bits of
// SHA-256(graph || ":" || label). SHA-256 keeps the key stable across
// processes and runtime versions, unlike Go's per-process map hashing.
func (q *QueryBuilder) AdvisoryLockKey(label string) int64 {
	sum := sha256.Sum256([]byte(q.graph + ":" + label))
	return int64(binary.BigEndian.Uint64(sum[:8]) & (1<<63 - 1))
}

// SortedLockKeys returns the deduplicated lock keys for the given labels in
// ascending order. Every batch acquires its locks in this order, which rules
// out lock-order deadlocks between concurrent batches.
func (q *QueryBuilder) SortedLockKeys(labels []string) []int64 {
	seen := make(map[int64]struct{}, len(labels))
	keys := make([]int64, 0, len(labels))
	for _, label := range labels {
		key := q.AdvisoryLockKey(label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// ============================================================================
// UPSERTS
// ============================================================================

// UpdateNodesSQL refreshes properties of staged nodes that already exist in
// the label table. $1 is the label.
func (q *QueryBuilder) UpdateNodesSQL(label, stagingTable string) string {
	return fmt.Sprintf(`
UPDATE %s AS t
SET properties = s.properties::agtype
FROM %s AS s
WHERE s.label = $1
  AND %s = ag_catalog.agtype_access_operator(s.properties::agtype, '"id"'::agtype)`,
		q.table(label), ident(stagingTable), PropertyIDExpr("t"))
}

// InsertNodesSQL inserts staged nodes whose logical ids are not present yet.
// $1 is the label id, $2 the label's sequence, $3 the label.
func (q *QueryBuilder) InsertNodesSQL(label, stagingTable string) string {
	return fmt.Sprintf(`
INSERT INTO %s (id, properties)
SELECT ag_catalog._graphid($1::int, nextval($2::regclass)), s.properties::agtype
FROM %s AS s
WHERE s.label = $3
  AND NOT EXISTS (
    SELECT 1 FROM %s AS t
    WHERE %s = ag_catalog.agtype_access_operator(s.properties::agtype, '"id"'::agtype)
  )`,
		q.table(label), ident(stagingTable), q.table(label), PropertyIDExpr("t"))
}

// UpdateEdgesSQL refreshes properties of staged edges that already exist.
func (q *QueryBuilder) UpdateEdgesSQL(label, stagingTable string) string {
	return fmt.Sprintf(`
UPDATE %s AS t
SET properties = s.properties::agtype
FROM %s AS s
WHERE s.label = $1
  AND %s = ag_catalog.agtype_access_operator(s.properties::agtype, '"id"'::agtype)`,
		q.table(label), ident(stagingTable), PropertyIDExpr("t"))
}

// InsertEdgesSQL inserts staged edges with resolved endpoints. The staging
// row's start_graphid/end_graphid must be non-null after resolution.
func (q *QueryBuilder) InsertEdgesSQL(label, stagingTable string) string {
	return fmt.Sprintf(`
INSERT INTO %s (id, start_id, end_id, properties)
SELECT ag_catalog._graphid($1::int, nextval($2::regclass)), s.start_graphid, s.end_graphid, s.properties::agtype
FROM %s AS s
WHERE s.label = $3
  AND NOT EXISTS (
    SELECT 1 FROM %s AS t
    WHERE %s = ag_catalog.agtype_access_operator(s.properties::agtype, '"id"'::agtype)
  )`,
		q.table(label), ident(stagingTable), q.table(label), PropertyIDExpr("t"))
}

// ============================================================================
// DELETES
// ============================================================================

// DeleteIncidentEdgesSQL removes edges touching any node in the given
// logical-id set ($1, agtype string literals) from the parent edge table.
func (q *QueryBuilder) DeleteIncidentEdgesSQL() string {
	return fmt.Sprintf(`
DELETE FROM %s AS e
WHERE EXISTS (
  SELECT 1 FROM %s AS v
  WHERE (v.id = e.start_id OR v.id = e.end_id)
    AND %s = ANY($1::agtype[])
)`, q.table(parentEdgeTable), q.table(parentVertexTable), PropertyIDExpr("v"))
}

// DeleteNodesSQL removes nodes by logical-id set from the parent vertex
// table; label partitions inherit the delete.
func (q *QueryBuilder) DeleteNodesSQL() string {
	return fmt.Sprintf(`
DELETE FROM %s AS v
WHERE %s = ANY($1::agtype[])`, q.table(parentVertexTable), PropertyIDExpr("v"))
}

// DeleteEdgesSQL removes edges by logical-id set from the parent edge table.
func (q *QueryBuilder) DeleteEdgesSQL() string {
	return fmt.Sprintf(`
DELETE FROM %s AS e
WHERE %s = ANY($1::agtype[])`, q.table(parentEdgeTable), PropertyIDExpr("e"))
}

// ============================================================================
// PROPERTY UPDATES
// ============================================================================

// LocateTableSQL finds the fully-qualified label table owning the entity
// with the given logical id ($1, agtype string literal), via tableoid
// against the parent table.
func (q *QueryBuilder) LocateTableSQL(kind graph.EntityKind) string {
	parent := parentVertexTable
	if kind == graph.KindEdge {
		parent = parentEdgeTable
	}
	return fmt.Sprintf(`
SELECT t.tableoid::regclass::text
FROM %s AS t
WHERE %s = $1::agtype`, q.table(parent), PropertyIDExpr("t"))
}

// MergePropertiesSQL merges $1 (JSON object) into properties and removes the
// key set $2 from the entity with logical id $3. The target table comes from
// LocateTableSQL already fully qualified and quoted by the server, and is
// reused as-is.
func (q *QueryBuilder) MergePropertiesSQL(qualifiedTable string) string {
	return fmt.Sprintf(`
UPDATE %s
SET properties = ((properties::jsonb || $1::jsonb) - $2::text[])::agtype
WHERE %s = $3::agtype`, qualifiedTable, PropertyIDExpr(""))
}
