// Package recorder persists envelopes asynchronously through a bounded queue
// so storage latency and failures never reach the client.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nocturne-hq/parity/pkg/analysis"
)

// Config contains configuration for the recorder.
type Config struct {
	// AsyncBuffer is the queue capacity.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds both the wait for queue space and each storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Observer is notified after every write attempt.
type Observer interface {
	ObservePersistence(err error)
}

// Recorder is a single-worker write queue in front of a Storage.
type Recorder struct {
	storage  analysis.Storage
	config   *Config
	observer Observer
	queue    chan *analysis.Envelope
	wg       sync.WaitGroup
	done     chan struct{}
	once     sync.Once
	// mu is held shared by Record while it enqueues and exclusively by
	// Close while it flips closed, so nothing lands after the drain.
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// NewRecorder creates a recorder and starts its worker. observer may be nil.
func NewRecorder(storage analysis.Storage, config *Config, observer Observer) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = 1000
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}

	r := &Recorder{
		storage:  storage,
		config:   config,
		observer: observer,
		queue:    make(chan *analysis.Envelope, config.AsyncBuffer),
		done:     make(chan struct{}),
		logger:   slog.Default().With("component", "analysis.recorder"),
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("analysis recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// Record enqueues an envelope. It waits at most WriteTimeout for queue space
// and returns a RecorderError when the envelope is dropped. An envelope
// accepted before Close is always written by the drain.
func (r *Recorder) Record(ctx context.Context, e *analysis.Envelope) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("recorder shutting down, dropping analysis", "id", e.ID)
		return analysis.NewRecorderError(e.ID, context.Canceled)
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.queue <- e:
		return nil
	case <-timer.C:
		r.logger.Error("analysis queue full, dropping analysis",
			"id", e.ID,
			"correlation_id", e.CorrelationID,
			"capacity", r.config.AsyncBuffer,
		)
		err := analysis.NewRecorderError(e.ID, context.DeadlineExceeded)
		r.observe(err)
		return err
	case <-ctx.Done():
		return analysis.NewRecorderError(e.ID, ctx.Err())
	}
}

// Pending returns the number of queued envelopes.
func (r *Recorder) Pending() int {
	return len(r.queue)
}

// Close stops accepting envelopes, drains the queue and waits for the worker.
func (r *Recorder) Close() error {
	r.once.Do(func() {
		r.logger.Info("shutting down analysis recorder")
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.done)
		r.wg.Wait()
		r.logger.Info("analysis recorder shut down complete")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case e := <-r.queue:
			r.write(e)

		case <-r.done:
			r.logger.Info("draining analysis queue before shutdown", "pending_count", len(r.queue))
			for {
				select {
				case e := <-r.queue:
					r.write(e)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(e *analysis.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := r.storage.Store(ctx, e)
	r.observe(err)
	if err != nil {
		r.logger.Error("failed to store analysis",
			"id", e.ID,
			"correlation_id", e.CorrelationID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)
	r.logger.Debug("analysis recorded",
		"id", e.ID,
		"overall_match", e.Match,
		"duration_ms", duration.Milliseconds(),
	)
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow analysis write",
			"id", e.ID,
			"duration_ms", duration.Milliseconds(),
		)
	}
}

func (r *Recorder) observe(err error) {
	if r.observer != nil {
		r.observer.ObservePersistence(err)
	}
}
