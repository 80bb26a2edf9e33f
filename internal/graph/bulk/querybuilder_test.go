package bulk

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kartograph-backend/internal/graph"
)

func TestPropertyIDExpr(t *testing.T) {
	assert.Equal(t,
		`ag_catalog.agtype_access_operator(t.properties, '"id"'::agtype)`,
		PropertyIDExpr("t"))
	assert.Equal(t,
		`ag_catalog.agtype_access_operator(properties, '"id"'::agtype)`,
		PropertyIDExpr(""))
}

// The expression index and the upsert predicates must share one extraction
// expression, otherwise the planner refuses the index. Pin that the index
// definition embeds the exact expression.
func TestIndexSpecsUsePropertyIDExpr(t *testing.T) {
	specs := nodeIndexSpecs()
	var found bool
	for _, spec := range specs {
		if spec.suffix == "properties_id_idx" {
			found = true
			assert.Contains(t, spec.using, PropertyIDExpr(""))
		}
	}
	require.True(t, found)

	assert.Len(t, nodeIndexSpecs(), 3)
	assert.Len(t, edgeIndexSpecs(), 5)
}

func TestAgtypeID(t *testing.T) {
	assert.Equal(t, `"person:1"`, AgtypeID("person:1"))
	assert.Equal(t, `"say \"hi\""`, AgtypeID(`say "hi"`))
	assert.Equal(t, []string{`"a"`, `"b"`}, AgtypeIDs([]string{"a", "b"}))
}

func TestAdvisoryLockKey(t *testing.T) {
	qb := NewQueryBuilder("kartograph")

	// Stable across calls and processes.
	assert.Equal(t, qb.AdvisoryLockKey("person"), qb.AdvisoryLockKey("person"))

	// Non-negative: the low 63 bits only.
	assert.GreaterOrEqual(t, qb.AdvisoryLockKey("person"), int64(0))

	// Distinct labels and distinct graphs get distinct keys.
	assert.NotEqual(t, qb.AdvisoryLockKey("person"), qb.AdvisoryLockKey("company"))
	other := NewQueryBuilder("staging")
	assert.NotEqual(t, qb.AdvisoryLockKey("person"), other.AdvisoryLockKey("person"))
}

func TestSortedLockKeys(t *testing.T) {
	qb := NewQueryBuilder("kartograph")

	keys := qb.SortedLockKeys([]string{"person", "company", "person", "knows"})
	assert.Len(t, keys, 3, "duplicates collapse")
	assert.True(t, sort.SliceIsSorted(keys, func(i, j int) bool { return keys[i] < keys[j] }))

	assert.Empty(t, qb.SortedLockKeys(nil))
}

func TestQueryBuilder_QuotesIdentifiers(t *testing.T) {
	qb := NewQueryBuilder(`my"graph`)

	sql := qb.InsertNodesSQL(`per"son`, "_staging_nodes_x")
	assert.Contains(t, sql, `"my""graph"."per""son"`)
	assert.Contains(t, sql, `"_staging_nodes_x"`)
}

func TestQueryBuilder_UpsertShape(t *testing.T) {
	qb := NewQueryBuilder("kartograph")

	insert := qb.InsertNodesSQL("person", "_staging_nodes_x")
	assert.Contains(t, insert, "ag_catalog._graphid($1::int, nextval($2::regclass))")
	assert.Contains(t, insert, "NOT EXISTS")
	assert.Contains(t, insert, PropertyIDExpr("t"))

	update := qb.UpdateNodesSQL("person", "_staging_nodes_x")
	assert.Contains(t, update, "SET properties = s.properties::agtype")
	assert.Contains(t, update, PropertyIDExpr("t"))

	insertEdges := qb.InsertEdgesSQL("knows", "_staging_edges_x")
	assert.Contains(t, insertEdges, "s.start_graphid, s.end_graphid")
}

func TestQueryBuilder_DeleteShape(t *testing.T) {
	qb := NewQueryBuilder("kartograph")

	incident := qb.DeleteIncidentEdgesSQL()
	assert.Contains(t, incident, `"kartograph"."_ag_label_edge"`)
	assert.Contains(t, incident, `"kartograph"."_ag_label_vertex"`)
	assert.Contains(t, incident, "v.id = e.start_id OR v.id = e.end_id")
	assert.Contains(t, incident, `ANY($1::agtype[])`)

	nodes := qb.DeleteNodesSQL()
	assert.Contains(t, nodes, `"kartograph"."_ag_label_vertex"`)
	assert.Contains(t, nodes, PropertyIDExpr("v"))
}

func TestQueryBuilder_LocateTable(t *testing.T) {
	qb := NewQueryBuilder("kartograph")

	nodeSQL := qb.LocateTableSQL(graph.KindNode)
	assert.Contains(t, nodeSQL, "tableoid::regclass::text")
	assert.Contains(t, nodeSQL, `"_ag_label_vertex"`)

	edgeSQL := qb.LocateTableSQL(graph.KindEdge)
	assert.Contains(t, edgeSQL, `"_ag_label_edge"`)
}

func TestQueryBuilder_MergeProperties(t *testing.T) {
	qb := NewQueryBuilder("kartograph")

	sql := qb.MergePropertiesSQL(`kartograph."person"`)
	assert.Contains(t, sql, `UPDATE kartograph."person"`)
	assert.Contains(t, sql, `((properties::jsonb || $1::jsonb) - $2::text[])::agtype`)
	assert.Contains(t, sql, PropertyIDExpr(""))
}
