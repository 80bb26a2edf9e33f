package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"kartograph-backend/internal/observability"
)

// EventSource abstracts how new-entry wakeups reach the worker. Delivery is
// best-effort: the worker never relies on a notification for any given row
// and keeps a periodic sweep as a floor.
type EventSource interface {
	// Start begins delivering entry ids to onEvent. The poll variant passes
	// uuid.Nil as a sentinel.
	Start(onEvent func(entryID uuid.UUID)) error

	// Stop cancels the in-flight listener and waits for it to exit. It is
	// idempotent.
	Stop(ctx context.Context) error
}

// ============================================================================
// PUSH SOURCE (LISTEN/NOTIFY)
// ============================================================================

// NotifyListener subscribes to the outbox notification channel on a
// dedicated pooled connection and delivers each row id as it arrives.
// Malformed payloads are counted and dropped silently; connection failures
// reconnect with exponential backoff.
type NotifyListener struct {
	pool    *pgxpool.Pool
	channel string
	logger  *zap.Logger
	metrics *observability.Collector

	cancel   context.CancelFunc
	done     chan struct{}
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewNotifyListener creates a push source on the given channel.
func NewNotifyListener(pool *pgxpool.Pool, channel string, metrics *observability.Collector, logger *zap.Logger) *NotifyListener {
	if channel == "" {
		channel = NotificationChannel
	}
	return &NotifyListener{
		pool:    pool,
		channel: channel,
		logger:  logger,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

// Start launches the listener goroutine.
func (l *NotifyListener) Start(onEvent func(entryID uuid.UUID)) error {
	l.startMu.Lock()
	defer l.startMu.Unlock()
	if l.started {
		return nil
	}
	l.started = true

	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel

	go l.listen(ctx, onEvent)
	return nil
}

// Stop cancels the listener and waits for it to exit.
func (l *NotifyListener) Stop(ctx context.Context) error {
	l.startMu.Lock()
	started := l.started
	l.startMu.Unlock()
	if !started {
		return nil
	}

	l.stopOnce.Do(func() { l.cancel() })
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// listen holds one connection on LISTEN and forwards notifications.
func (l *NotifyListener) listen(ctx context.Context, onEvent func(entryID uuid.UUID)) {
	defer close(l.done)

	retry := backoff.NewExponentialBackOff()
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0 // retry forever; the poll floor covers the gap

	for {
		if ctx.Err() != nil {
			return
		}
		if err := l.listenOnce(ctx, onEvent); err != nil && ctx.Err() == nil {
			wait := retry.NextBackOff()
			l.logger.Warn("notification listener disconnected, reconnecting",
				zap.Error(err),
				zap.Duration("backoff", wait),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()
	}
}

// listenStatement quotes the channel name; LISTEN takes an identifier, not a
// parameter.
func listenStatement(channel string) string {
	return "LISTEN " + pgx.Identifier{channel}.Sanitize()
}

// listenOnce acquires a connection, subscribes, and blocks on notifications
// until the connection breaks or ctx is canceled.
func (l *NotifyListener) listenOnce(ctx context.Context, onEvent func(entryID uuid.UUID)) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, listenStatement(l.channel)); err != nil {
		return err
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		entryID, parseErr := uuid.Parse(notification.Payload)
		if parseErr != nil {
			// Heartbeat frames and garbage payloads are dropped silently.
			l.metrics.NotificationsDropped.Inc()
			continue
		}
		onEvent(entryID)
	}
}

// ============================================================================
// POLL SOURCE
// ============================================================================

// PollSource wakes the worker on a fixed interval with a nil-id sentinel.
// It serves as the floor under the push source: any row missed by a
// notification is picked up on the next tick.
type PollSource struct {
	interval time.Duration

	cancel   context.CancelFunc
	done     chan struct{}
	startMu  sync.Mutex
	started  bool
	stopOnce sync.Once
}

// NewPollSource creates a poll source with the given interval.
func NewPollSource(interval time.Duration) *PollSource {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PollSource{interval: interval, done: make(chan struct{})}
}

// Start launches the ticker goroutine.
func (p *PollSource) Start(onEvent func(entryID uuid.UUID)) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()
	if p.started {
		return nil
	}
	p.started = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				onEvent(uuid.Nil)
			}
		}
	}()
	return nil
}

// Stop cancels the ticker and waits for it to exit.
func (p *PollSource) Stop(ctx context.Context) error {
	p.startMu.Lock()
	started := p.started
	p.startMu.Unlock()
	if !started {
		return nil
	}

	p.stopOnce.Do(func() { p.cancel() })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
