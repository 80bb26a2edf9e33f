package bulk

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"kartograph-backend/internal/errors"
	"kartograph-backend/internal/graph"
	"kartograph-backend/internal/observability"
)

// deleteChunkSize bounds the logical-id parameter arrays of delete
// statements.
const deleteChunkSize = 1000

// Result reports what one batch did. On failure Errors carries the first
// error message and the counters reflect work attempted before rollback.
type Result struct {
	Attempted     int      `json:"attempted"`
	NodesCreated  int      `json:"nodes_created"`
	EdgesCreated  int      `json:"edges_created"`
	NodesUpdated  int      `json:"nodes_updated"`
	EdgesUpdated  int      `json:"edges_updated"`
	NodesDeleted  int      `json:"nodes_deleted"`
	EdgesDeleted  int      `json:"edges_deleted"`
	LabelsDefined int      `json:"labels_defined"`
	LabelsCreated int      `json:"labels_created"`
	Duration      string   `json:"duration"`
	Errors        []string `json:"errors,omitempty"`
}

// Loader applies one mutation batch in one transaction: advisory locks,
// deletes, COPY-staged creates with label-partitioned upserts, property
// merges, definition upserts, then a single commit. Any error rolls the
// whole batch back; no partial state is ever visible.
type Loader struct {
	pool    *pgxpool.Pool
	qb      *QueryBuilder
	indexer *Indexer
	defs    *DefinitionStore
	metrics *observability.Collector
	logger  *zap.Logger
}

// NewLoader creates a loader for one graph.
func NewLoader(pool *pgxpool.Pool, graphName string, metrics *observability.Collector, logger *zap.Logger) *Loader {
	qb := NewQueryBuilder(graphName)
	return &Loader{
		pool:    pool,
		qb:      qb,
		indexer: NewIndexer(qb, logger),
		defs:    NewDefinitionStore(graphName),
		metrics: metrics,
		logger:  logger,
	}
}

// batch is the partition of one operation list by (op, entity kind).
type batch struct {
	defines     []graph.Operation
	createNodes []graph.Operation
	createEdges []graph.Operation
	updates     []graph.Operation
	deleteNodes []string
	deleteEdges []string
}

func partition(ops []graph.Operation) batch {
	var b batch
	for i := range ops {
		op := ops[i]
		switch op.Op {
		case graph.OpDefine:
			b.defines = append(b.defines, op)
		case graph.OpCreate:
			if op.Type == graph.KindEdge {
				b.createEdges = append(b.createEdges, op)
			} else {
				b.createNodes = append(b.createNodes, op)
			}
		case graph.OpUpdate:
			b.updates = append(b.updates, op)
		case graph.OpDelete:
			if op.Type == graph.KindEdge {
				b.deleteEdges = append(b.deleteEdges, op.ID)
			} else {
				b.deleteNodes = append(b.deleteNodes, op.ID)
			}
		}
	}
	return b
}

func labelsOf(ops []graph.Operation) []string {
	labels := make([]string, 0, len(ops))
	for i := range ops {
		labels = append(labels, ops[i].Label)
	}
	return labels
}

// ApplyBatch validates and applies the operations. The returned Result is
// always non-nil; when err is non-nil the transaction was rolled back and
// Result.Errors holds the failure.
func (l *Loader) ApplyBatch(ctx context.Context, ops []graph.Operation) (*Result, error) {
	started := time.Now()
	res := &Result{Attempted: len(ops)}

	ctx, span := observability.StartSpan(ctx, "bulk.apply_batch",
		attribute.String("graph", l.qb.Graph()),
		attribute.Int("operations", len(ops)),
	)
	err := l.applyBatch(ctx, ops, res)
	observability.EndSpan(span, err)

	res.Duration = time.Since(started).String()
	if err != nil {
		l.metrics.BulkBatchErrors.Inc()
		res.Errors = append(res.Errors, err.Error())
		l.logger.Error("bulk batch rolled back",
			zap.String("graph", l.qb.Graph()),
			zap.Int("operations", len(ops)),
			zap.Error(err),
		)
		return res, err
	}

	l.logger.Info("bulk batch committed",
		zap.String("graph", l.qb.Graph()),
		zap.Int("operations", len(ops)),
		zap.Int("nodes_created", res.NodesCreated),
		zap.Int("edges_created", res.EdgesCreated),
		zap.Int("nodes_deleted", res.NodesDeleted),
		zap.Int("edges_deleted", res.EdgesDeleted),
		zap.Duration("duration", time.Since(started)),
	)
	return res, nil
}

func (l *Loader) applyBatch(ctx context.Context, ops []graph.Operation, res *Result) error {
	// Fail on any malformed operation before touching the database.
	for i := range ops {
		if err := ops[i].Validate(); err != nil {
			return err
		}
	}
	b := partition(ops)

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return errors.Database("begin bulk transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	staging := NewStagingManager(l.qb, l.logger)

	// Lock order is fixed across batches: node labels, then edge labels,
	// each set sorted by key.
	if err := l.acquireLocks(ctx, tx, labelsOf(b.createNodes)); err != nil {
		return err
	}
	if err := l.acquireLocks(ctx, tx, labelsOf(b.createEdges)); err != nil {
		return err
	}

	if err := l.deleteEdges(ctx, tx, b.deleteEdges, res); err != nil {
		return err
	}
	if err := l.deleteNodes(ctx, tx, b.deleteNodes, res); err != nil {
		return err
	}
	if err := l.createNodes(ctx, tx, staging, b.createNodes, res); err != nil {
		return err
	}
	if err := l.createEdges(ctx, tx, staging, b.createEdges, res); err != nil {
		return err
	}
	if err := l.applyUpdates(ctx, tx, b.updates, res); err != nil {
		return err
	}
	if err := l.applyDefines(ctx, tx, b.defines, res); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Database("commit bulk transaction", err)
	}
	return nil
}

func (l *Loader) acquireLocks(ctx context.Context, tx pgx.Tx, labels []string) error {
	for _, key := range l.qb.SortedLockKeys(labels) {
		if _, err := tx.Exec(ctx, l.qb.AdvisoryLockSQL(), key); err != nil {
			return errors.Database("acquire advisory lock", err)
		}
	}
	return nil
}

// ============================================================================
// DELETES
// ============================================================================

func (l *Loader) deleteEdges(ctx context.Context, tx pgx.Tx, ids []string, res *Result) error {
	if len(ids) == 0 {
		return nil
	}
	defer l.metrics.ObservePhase("delete_edges", time.Now())

	for _, chunk := range chunkIDs(ids, deleteChunkSize) {
		tag, err := tx.Exec(ctx, l.qb.DeleteEdgesSQL(), AgtypeIDs(chunk))
		if err != nil {
			return errors.Database("delete edges", err)
		}
		res.EdgesDeleted += int(tag.RowsAffected())
	}
	l.metrics.BulkOperations.WithLabelValues("delete", "edge").Add(float64(len(ids)))
	return nil
}

func (l *Loader) deleteNodes(ctx context.Context, tx pgx.Tx, ids []string, res *Result) error {
	if len(ids) == 0 {
		return nil
	}
	defer l.metrics.ObservePhase("delete_nodes", time.Now())

	for _, chunk := range chunkIDs(ids, deleteChunkSize) {
		set := AgtypeIDs(chunk)
		// Incident edges go first so no dangling edge survives the node.
		tag, err := tx.Exec(ctx, l.qb.DeleteIncidentEdgesSQL(), set)
		if err != nil {
			return errors.Database("delete incident edges", err)
		}
		res.EdgesDeleted += int(tag.RowsAffected())

		tag, err = tx.Exec(ctx, l.qb.DeleteNodesSQL(), set)
		if err != nil {
			return errors.Database("delete nodes", err)
		}
		res.NodesDeleted += int(tag.RowsAffected())
	}
	l.metrics.BulkOperations.WithLabelValues("delete", "node").Add(float64(len(ids)))
	return nil
}

// ============================================================================
// CREATES
// ============================================================================

func (l *Loader) createNodes(ctx context.Context, tx pgx.Tx, staging *StagingManager, ops []graph.Operation, res *Result) error {
	if len(ops) == 0 {
		return nil
	}
	defer l.metrics.ObservePhase("create_nodes", time.Now())

	if err := staging.StageNodes(ctx, tx, ops); err != nil {
		return err
	}
	if err := staging.CheckDuplicates(ctx, tx, staging.NodeTable()); err != nil {
		return err
	}
	labels, err := staging.DistinctLabels(ctx, tx, staging.NodeTable())
	if err != nil {
		return err
	}
	if err := l.ensureLabels(ctx, tx, labels, graph.KindNode, res); err != nil {
		return err
	}

	for _, label := range labels {
		created, err := l.upsertLabel(ctx, tx, label,
			l.qb.UpdateNodesSQL(label, staging.NodeTable()),
			l.qb.InsertNodesSQL(label, staging.NodeTable()))
		if err != nil {
			return err
		}
		res.NodesCreated += created
	}
	l.metrics.BulkOperations.WithLabelValues("create", "node").Add(float64(len(ops)))
	return nil
}

func (l *Loader) createEdges(ctx context.Context, tx pgx.Tx, staging *StagingManager, ops []graph.Operation, res *Result) error {
	if len(ops) == 0 {
		return nil
	}
	defer l.metrics.ObservePhase("create_edges", time.Now())

	if err := staging.StageEdges(ctx, tx, ops); err != nil {
		return err
	}
	if err := staging.CheckDuplicates(ctx, tx, staging.EdgeTable()); err != nil {
		return err
	}
	// The lookup runs after node creates so intra-batch edges resolve.
	if err := staging.BuildGraphIDLookup(ctx, tx); err != nil {
		return err
	}
	if err := staging.ResolveEdges(ctx, tx); err != nil {
		return err
	}
	if err := staging.CheckOrphans(ctx, tx); err != nil {
		return err
	}
	labels, err := staging.DistinctLabels(ctx, tx, staging.EdgeTable())
	if err != nil {
		return err
	}
	if err := l.ensureLabels(ctx, tx, labels, graph.KindEdge, res); err != nil {
		return err
	}

	for _, label := range labels {
		created, err := l.upsertLabel(ctx, tx, label,
			l.qb.UpdateEdgesSQL(label, staging.EdgeTable()),
			l.qb.InsertEdgesSQL(label, staging.EdgeTable()))
		if err != nil {
			return err
		}
		res.EdgesCreated += created
	}
	l.metrics.BulkOperations.WithLabelValues("create", "edge").Add(float64(len(ops)))
	return nil
}

// ensureLabels creates catalog labels missing from the graph and their index
// set.
func (l *Loader) ensureLabels(ctx context.Context, tx pgx.Tx, labels []string, kind graph.EntityKind, res *Result) error {
	existing, err := l.existingLabels(ctx, tx)
	if err != nil {
		return err
	}

	createSQL := l.qb.CreateVLabelSQL()
	if kind == graph.KindEdge {
		createSQL = l.qb.CreateELabelSQL()
	}
	for _, label := range labels {
		if !existing[label] {
			if _, err := tx.Exec(ctx, createSQL, l.qb.Graph(), label); err != nil {
				return errors.Database("create label", err)
			}
			res.LabelsCreated++
			l.logger.Info("created label",
				zap.String("graph", l.qb.Graph()),
				zap.String("label", label),
				zap.String("kind", string(kind)),
			)
		}
		if err := l.indexer.EnsureLabelIndexes(ctx, tx, label, kind); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) existingLabels(ctx context.Context, tx pgx.Tx) (map[string]bool, error) {
	rows, err := tx.Query(ctx, l.qb.LabelNamesSQL(), l.qb.Graph())
	if err != nil {
		return nil, errors.Database("list existing labels", err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Database("scan existing label", err)
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

// upsertLabel runs the update-then-insert pair for one label partition and
// returns the number of inserted rows.
func (l *Loader) upsertLabel(ctx context.Context, tx pgx.Tx, label, updateSQL, insertSQL string) (int, error) {
	var (
		labelID int
		seqName string
	)
	if err := tx.QueryRow(ctx, l.qb.LabelLookupSQL(), l.qb.Graph(), label).Scan(&labelID, &seqName); err != nil {
		return 0, errors.Database("look up label", err)
	}

	if _, err := tx.Exec(ctx, updateSQL, label); err != nil {
		return 0, errors.Database("update existing rows", err)
	}
	tag, err := tx.Exec(ctx, insertSQL, labelID, l.qb.SequenceRegclass(seqName), label)
	if err != nil {
		return 0, errors.Database("insert new rows", err)
	}
	return int(tag.RowsAffected()), nil
}

// ============================================================================
// UPDATES AND DEFINES
// ============================================================================

func (l *Loader) applyUpdates(ctx context.Context, tx pgx.Tx, ops []graph.Operation, res *Result) error {
	if len(ops) == 0 {
		return nil
	}
	defer l.metrics.ObservePhase("updates", time.Now())

	for i := range ops {
		op := &ops[i]
		id := AgtypeID(op.ID)

		var table string
		err := tx.QueryRow(ctx, l.qb.LocateTableSQL(op.Type), id).Scan(&table)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.Validation("update target does not exist", op.ID)
		}
		if err != nil {
			return errors.Database("locate update target", err)
		}

		merge, err := op.SetProperties.CanonicalJSON()
		if err != nil {
			return err
		}
		remove := op.RemoveProperties
		if remove == nil {
			remove = []string{}
		}
		if _, err := tx.Exec(ctx, l.qb.MergePropertiesSQL(table), merge, remove, id); err != nil {
			return errors.Database("merge properties", err)
		}

		if op.Type == graph.KindEdge {
			res.EdgesUpdated++
		} else {
			res.NodesUpdated++
		}
		l.metrics.BulkOperations.WithLabelValues("update", string(op.Type)).Inc()
	}
	return nil
}

func (l *Loader) applyDefines(ctx context.Context, tx pgx.Tx, ops []graph.Operation, res *Result) error {
	if len(ops) == 0 {
		return nil
	}
	defer l.metrics.ObservePhase("defines", time.Now())

	for i := range ops {
		if err := l.defs.Upsert(ctx, tx, &ops[i]); err != nil {
			return err
		}
		res.LabelsDefined++
		l.metrics.BulkOperations.WithLabelValues("define", string(ops[i].Type)).Inc()
	}
	return nil
}

// EnsureSchema creates the loader's supporting tables.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	return l.defs.EnsureSchema(ctx, l.pool)
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		chunks = append(chunks, ids)
	}
	return chunks
}
