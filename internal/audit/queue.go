package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize     = 10
	defaultFlushInterval = 5 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	writeConcurrency     = 8
)

// Store persists a single audit record.
type Store interface {
	Append(ctx context.Context, rec Record) error
}

// Observer receives queue health signals. Implemented by observability.Metrics.
type Observer interface {
	AuditQueueDepth(n int)
	AuditFlushFailed(records int)
}

// Config tunes batching.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	// WriteTimeout bounds a timer or threshold triggered flush.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = defaultFlushInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Queue buffers records in memory and writes them to the Store in batches.
// Enqueue never blocks on I/O. At most one flush runs at a time.
type Queue struct {
	store    Store
	cfg      Config
	logger   *slog.Logger
	observer Observer

	mu         sync.Mutex
	buf        []Record
	processing bool
	closed     bool

	timer    *schedule
	inflight sync.WaitGroup
}

// NewQueue constructs a queue writing to store.
func NewQueue(store Store, cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
	q.timer = newSchedule(q.cfg.FlushInterval, q.flushFromTimer)
	return q
}

// WithObserver attaches queue health reporting.
func (q *Queue) WithObserver(o Observer) *Queue {
	q.observer = o
	return q
}

// Enqueue appends rec to the buffer. Reaching the batch size starts a flush in
// the background; otherwise the flush timer is armed if it is not already.
func (q *Queue) Enqueue(rec Record) {
	q.mu.Lock()
	q.buf = append(q.buf, rec)
	depth := len(q.buf)
	full := depth >= q.cfg.BatchSize && !q.closed
	if full {
		q.inflight.Add(1)
	} else if !q.closed {
		q.timer.arm()
	}
	q.mu.Unlock()

	q.reportDepth(depth)
	if full {
		go q.backgroundFlush()
	}
}

// Len reports the number of buffered records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// ForceFlush writes everything buffered, looping until the buffer is empty.
// It stops at the first failed batch; the failed records stay buffered.
func (q *Queue) ForceFlush(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := q.flush(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			continue
		}
		q.mu.Lock()
		remaining, busy := len(q.buf), q.processing
		q.mu.Unlock()
		if remaining == 0 && !busy {
			return nil
		}
		if !busy {
			continue
		}
		// another flush owns the buffer; wait for it to finish
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Close stops the flush timer, waits for background flushes and drains the
// buffer. Records enqueued after Close are only written by ForceFlush.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.timer.cancel()
	done := make(chan struct{})
	go func() {
		q.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return q.ForceFlush(ctx)
}

func (q *Queue) backgroundFlush() {
	defer q.inflight.Done()
	ctx, cancel := context.WithTimeout(context.Background(), q.cfg.WriteTimeout)
	defer cancel()
	if _, err := q.flush(ctx); err != nil {
		q.logger.Warn("audit flush failed", slog.Any("error", err))
	}
}

func (q *Queue) flushFromTimer() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.inflight.Add(1)
	q.mu.Unlock()
	q.backgroundFlush()
}

// flush persists up to one batch. It returns the number of records written,
// zero when another flush is running or the buffer is empty.
func (q *Queue) flush(ctx context.Context) (int, error) {
	q.mu.Lock()
	if q.processing || len(q.buf) == 0 {
		q.mu.Unlock()
		return 0, nil
	}
	q.processing = true
	q.timer.cancel()
	n := min(len(q.buf), q.cfg.BatchSize)
	batch := make([]Record, n)
	copy(batch, q.buf[:n])
	q.buf = append([]Record(nil), q.buf[n:]...)
	q.mu.Unlock()

	err := q.persist(ctx, batch)

	q.mu.Lock()
	q.processing = false
	if err != nil {
		q.buf = append(batch, q.buf...)
	}
	depth := len(q.buf)
	again := err == nil && depth >= q.cfg.BatchSize && !q.closed
	if again {
		q.inflight.Add(1)
	} else if depth > 0 && !q.closed {
		q.timer.arm()
	}
	q.mu.Unlock()

	q.reportDepth(depth)
	if again {
		go q.backgroundFlush()
	}
	if err != nil {
		if q.observer != nil {
			q.observer.AuditFlushFailed(len(batch))
		}
		return 0, err
	}
	return n, nil
}

func (q *Queue) persist(ctx context.Context, batch []Record) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(writeConcurrency)
	for _, rec := range batch {
		g.Go(func() error {
			return q.store.Append(gctx, rec)
		})
	}
	return g.Wait()
}

func (q *Queue) reportDepth(n int) {
	if q.observer != nil {
		q.observer.AuditQueueDepth(n)
	}
}
