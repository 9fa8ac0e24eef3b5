package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"stratlink/internal/events"
)

var ErrClosed = errors.New("journal: closed")

const (
	DefaultBatchSize     = 500
	DefaultFlushInterval = 5 * time.Second
	DefaultQueueSize     = 10000

	directWriteTimeout = 500 * time.Millisecond
	flushTimeout       = 30 * time.Second
)

// Entry is one journaled lifecycle transition.
type Entry struct {
	StrategyID string         `json:"strategy_id"`
	Kind       string         `json:"kind"`
	Data       map[string]any `json:"data"`
	Existed    bool           `json:"existed"`
	At         time.Time      `json:"at"`
}

// Store persists batches of entries.
type Store interface {
	BatchInsert(ctx context.Context, batch []Entry) error
}

type Options struct {
	BatchSize     int
	FlushInterval time.Duration
	QueueSize     int
	Logger        *slog.Logger
}

// Journal is an events.Sink that records every apply/stop in a Store.
// Publish only enqueues; a background writer flushes when the batch is
// full or the flush interval elapses. The journal is write-only: the
// registry is never rebuilt from it.
type Journal struct {
	store         Store
	queue         chan Entry
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu     sync.RWMutex // guards closed against in-flight Publish calls
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

func New(store Store, opts Options) *Journal {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Journal{
		store:         store,
		queue:         make(chan Entry, opts.QueueSize),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		logger:        opts.Logger,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the background batch writer.
func (j *Journal) Start() {
	go j.run()
}

// Publish queues ev for the next batch. When the queue is full the entry is
// written directly with a short timeout instead of blocking the caller
// indefinitely.
func (j *Journal) Publish(ctx context.Context, ev events.Event) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}

	entry := Entry{
		StrategyID: ev.StrategyID,
		Kind:       string(ev.Kind),
		Data:       ev.Data,
		Existed:    ev.Existed,
		At:         ev.At,
	}

	if depth := len(j.queue); depth > cap(j.queue)/2 {
		j.logger.Warn("journal_queue_high_watermark", "queue_depth", depth)
	}

	select {
	case j.queue <- entry:
		return nil
	default:
	}

	j.logger.Warn("journal_queue_full_direct_write",
		"strategy_id", entry.StrategyID,
	)
	ctx, cancel := context.WithTimeout(ctx, directWriteTimeout)
	defer cancel()
	if err := j.store.BatchInsert(ctx, []Entry{entry}); err != nil {
		return fmt.Errorf("journal direct write failed: %w", err)
	}
	return nil
}

// Close stops accepting entries, flushes what is queued and waits for the
// writer to exit. Close requires Start to have been called.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.mu.Unlock()

	close(j.stop)
	<-j.done
	return nil
}

func (j *Journal) run() {
	defer close(j.done)

	ticker := time.NewTicker(j.flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, j.batchSize)
	j.logger.Info("journal_writer_started",
		"interval", j.flushInterval.String(),
		"batch_size", j.batchSize,
	)

	for {
		select {
		case <-j.stop:
			// nothing can be enqueued any more, drain what is left
		drain:
			for {
				select {
				case e := <-j.queue:
					batch = append(batch, e)
				default:
					break drain
				}
			}
			j.logger.Info("journal_writer_shutting_down", "remaining", len(batch))
			j.flush(batch)
			return

		case e := <-j.queue:
			batch = append(batch, e)
			if len(batch) >= j.batchSize {
				j.flush(batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				j.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (j *Journal) flush(batch []Entry) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	start := time.Now()
	if err := j.store.BatchInsert(ctx, batch); err != nil {
		j.logger.Error("journal_batch_insert_failed",
			"count", len(batch),
			"error", err,
		)
		return
	}
	j.logger.Debug("journal_batch_insert_success",
		"count", len(batch),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}
