package usage

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
)

const (
	defaultBufferSize    = 1024
	defaultBatchSize     = 100
	defaultFlushInterval = 2 * time.Second
	defaultWriteTimeout  = 5 * time.Second
)

type Options struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	WriteTimeout  time.Duration
}

func (o *Options) applyDefaults() {
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = defaultFlushInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
}

// Recorder buffers usage entries and writes them to a Sink in batches.
// Record never blocks; entries arriving while the buffer is full are dropped.
type Recorder struct {
	sink    Sink
	opts    Options
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	closed  bool
	entries chan storage.UsageLog
	done    chan struct{}
}

func NewRecorder(sink Sink, opts Options, logger *slog.Logger, metrics *Metrics) *Recorder {
	r := newRecorder(sink, opts, logger, metrics)
	go r.run()
	return r
}

func newRecorder(sink Sink, opts Options, logger *slog.Logger, metrics *Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	opts.applyDefaults()
	return &Recorder{
		sink:    sink,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
		entries: make(chan storage.UsageLog, opts.BufferSize),
		done:    make(chan struct{}),
	}
}

// Record enqueues entry and reports whether it was accepted.
func (r *Recorder) Record(entry storage.UsageLog) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.metrics.record("dropped", 1)
		return false
	}
	select {
	case r.entries <- entry:
		return true
	default:
		r.metrics.record("dropped", 1)
		return false
	}
}

// Close stops accepting entries and waits for buffered ones to be written.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.entries)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]storage.UsageLog, 0, r.opts.BatchSize)
	for {
		select {
		case entry, ok := <-r.entries:
			if !ok {
				r.flush(batch)
				return
			}
			batch = append(batch, entry)
			if len(batch) >= r.opts.BatchSize {
				r.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				r.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (r *Recorder) flush(batch []storage.UsageLog) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.WriteTimeout)
	defer cancel()

	if err := r.sink.Write(ctx, batch); err != nil {
		r.metrics.record("failed", len(batch))
		r.logger.Error("write usage logs failed", "count", len(batch), "error", err)
		return
	}
	r.metrics.record("flushed", len(batch))
}
