package outbox

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kartograph-backend/internal/authz"
	"kartograph-backend/internal/observability"
)

// Store is the persistence surface the worker drives. *Repository implements
// it; tests substitute an in-memory fake.
type Store interface {
	ProcessBatch(ctx context.Context, limit int, handle func(context.Context, *Entry) error) (BatchStats, error)
	RecordFailure(ctx context.Context, id uuid.UUID, maxRetries int) (bool, error)
}

// WorkerConfig holds the worker's operational knobs.
type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
}

// withDefaults fills unset knobs.
func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	return c
}

// Worker claims unprocessed outbox rows, translates their events into tuple
// operations, and applies them to the policy engine in order. One goroutine
// drives the claim loop; wakeups arrive from the event source and from a
// ticker that acts as the poll floor. Multiple worker processes may run
// concurrently; they coordinate only through SKIP LOCKED row claims.
type Worker struct {
	store      Store
	registry   *Registry
	translator authz.Translator
	engine     authz.PolicyEngine
	source     EventSource
	logger     *zap.Logger
	metrics    *observability.Collector

	cfgMu sync.RWMutex
	cfg   WorkerConfig

	wake        chan struct{}
	stopChan    chan struct{}
	stopOnce    sync.Once
	stoppedChan chan struct{}
	cancel      context.CancelFunc
}

// NewWorker constructs a Worker from dependencies.
func NewWorker(
	store Store,
	registry *Registry,
	translator authz.Translator,
	engine authz.PolicyEngine,
	source EventSource,
	cfg WorkerConfig,
	metrics *observability.Collector,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		store:       store,
		registry:    registry,
		translator:  translator,
		engine:      engine,
		source:      source,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		metrics:     metrics,
		wake:        make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// config returns a snapshot of the tuning knobs.
func (w *Worker) config() WorkerConfig {
	w.cfgMu.RLock()
	defer w.cfgMu.RUnlock()
	return w.cfg
}

// UpdateConfig swaps the tuning knobs at runtime. The batch size applies to
// the next claim; the poll interval takes effect on the next loop pass, which
// the wakeup nudge forces immediately.
func (w *Worker) UpdateConfig(cfg WorkerConfig) {
	cfg = cfg.withDefaults()

	w.cfgMu.Lock()
	changed := cfg != w.cfg
	w.cfg = cfg
	w.cfgMu.Unlock()

	if !changed {
		return
	}
	w.logger.Info("worker configuration updated",
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("max_retries", cfg.MaxRetries),
	)
	w.onEvent(uuid.Nil)
}

// Start begins the event-source consumer and the claim loop.
func (w *Worker) Start(ctx context.Context) error {
	cfg := w.config()
	w.logger.Info("starting outbox worker",
		zap.Int("batch_size", cfg.BatchSize),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.Int("max_retries", cfg.MaxRetries),
	)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if err := w.source.Start(w.onEvent); err != nil {
		cancel()
		return err
	}

	go w.processLoop(runCtx)
	return nil
}

// Stop signals the claim loop to exit, waits for the in-flight batch to
// finish, and closes the event source. No new batch is claimed after Stop.
// Stop is idempotent.
func (w *Worker) Stop(ctx context.Context) error {
	w.logger.Info("stopping outbox worker")
	w.stopOnce.Do(func() { close(w.stopChan) })

	select {
	case <-w.stoppedChan:
	case <-ctx.Done():
		w.cancel()
		<-w.stoppedChan
	}

	err := w.source.Stop(ctx)
	w.logger.Info("outbox worker stopped")
	return err
}

// onEvent coalesces wakeups; a full channel means a wakeup is already
// pending and the pending pass will observe this row too.
func (w *Worker) onEvent(uuid.UUID) {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// processLoop drains the backlog on every wakeup and on every poll tick.
func (w *Worker) processLoop(ctx context.Context) {
	defer close(w.stoppedChan)

	interval := w.config().PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-w.wake:
		case <-ticker.C:
		}
		if next := w.config().PollInterval; next != interval {
			interval = next
			ticker.Reset(interval)
		}
		w.drain(ctx)
	}
}

// drain processes batches until the claimable set is empty, so one wakeup
// covers every row committed before it.
func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		default:
		}

		claimed, err := w.processBatch(ctx)
		if err != nil {
			w.logger.Error("outbox batch failed", zap.Error(err))
			return
		}
		if claimed == 0 {
			return
		}
	}
}

// processBatch runs one claim-translate-apply transaction. On failure the
// claim transaction has already rolled back; the failing row's retry count is
// bumped in a separate short transaction so the row can eventually
// dead-letter while remaining unprocessed.
func (w *Worker) processBatch(ctx context.Context) (int, error) {
	start := time.Now()
	cfg := w.config()
	ctx, span := observability.StartSpan(ctx, "outbox.process_batch")

	stats, err := w.store.ProcessBatch(ctx, cfg.BatchSize, w.handleEntry)
	w.metrics.OutboxClaimed.Add(float64(stats.Claimed))
	w.metrics.OutboxProcessed.Add(float64(stats.Processed))
	w.metrics.BatchDuration.Observe(time.Since(start).Seconds())
	observability.EndSpan(span, err)

	if err != nil {
		w.metrics.OutboxFailed.Inc()
		var entryErr *EntryError
		if stderrors.As(err, &entryErr) {
			deadLettered, recordErr := w.store.RecordFailure(ctx, entryErr.EntryID, cfg.MaxRetries)
			if recordErr != nil {
				w.logger.Error("failed to record outbox failure",
					zap.String("entry_id", entryErr.EntryID.String()),
					zap.Error(recordErr),
				)
			}
			if deadLettered {
				w.metrics.OutboxDeadLettered.Inc()
			}
		}
		return stats.Claimed, err
	}
	return stats.Claimed, nil
}

// handleEntry projects one row: deserialize, translate, apply.
func (w *Worker) handleEntry(ctx context.Context, entry *Entry) error {
	event, err := w.registry.Deserialize(entry.EventType, entry.Payload)
	if err != nil {
		return err
	}

	ops, err := w.translator.Translate(event)
	if err != nil {
		return err
	}

	return w.apply(ctx, ops)
}

// apply issues the translated operations in order. Consecutive operations of
// the same kind are batched into one policy-engine call; order across kinds
// is preserved.
func (w *Worker) apply(ctx context.Context, ops []authz.TupleOperation) error {
	var writes, deletes []authz.Relationship

	flushWrites := func() error {
		if len(writes) == 0 {
			return nil
		}
		err := w.engine.WriteRelationships(ctx, writes)
		w.countEngineCall("write_relationships", err)
		writes = writes[:0]
		return err
	}
	flushDeletes := func() error {
		if len(deletes) == 0 {
			return nil
		}
		err := w.engine.DeleteRelationships(ctx, deletes)
		w.countEngineCall("delete_relationships", err)
		deletes = deletes[:0]
		return err
	}

	for _, op := range ops {
		switch op.Kind {
		case authz.OpWrite:
			if err := flushDeletes(); err != nil {
				return err
			}
			writes = append(writes, op.Relationship)
		case authz.OpDelete:
			if err := flushWrites(); err != nil {
				return err
			}
			deletes = append(deletes, op.Relationship)
		case authz.OpDeleteByFilter:
			if err := flushWrites(); err != nil {
				return err
			}
			if err := flushDeletes(); err != nil {
				return err
			}
			err := w.engine.DeleteRelationshipsByFilter(ctx, op.Filter)
			w.countEngineCall("delete_relationships_by_filter", err)
			if err != nil {
				return err
			}
		}
	}

	if err := flushWrites(); err != nil {
		return err
	}
	return flushDeletes()
}

func (w *Worker) countEngineCall(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	w.metrics.EngineCalls.WithLabelValues(operation, outcome).Inc()
}
