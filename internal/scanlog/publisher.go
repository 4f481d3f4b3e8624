package scanlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"permis/internal/scanlog/metrics"
	id "permis/pkg/domain"
)

const (
	defaultFlushInterval    = 100 * time.Millisecond
	defaultFlushBatch       = 64
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = time.Minute
)

// Publisher is the write front of the scan audit pipeline. Synchronous by
// default; with WithAsyncBuffer the store write moves to a background worker
// behind a bounded drop-oldest ring buffer, so a slow or down store can never
// block a live verification. A circuit breaker stops the worker from
// hammering the store during an outage.
type Publisher struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics

	buffer  *RingBuffer
	breaker *CircuitBreaker

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for persistence error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithAsyncBuffer switches Record to non-blocking mode: events are staged in
// a ring buffer of the given capacity and persisted by a background worker.
func WithAsyncBuffer(capacity int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(capacity)
	}
}

// NewPublisher creates a publisher over the given store and, in async mode,
// starts the background worker.
func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		breaker: NewCircuitBreaker(defaultBreakerThreshold, defaultBreakerCooldown),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.stop = make(chan struct{})
		p.done = make(chan struct{})
		go p.run()
	}
	return p
}

// Record accepts one scan event. A zero ID and timestamp are filled in. In
// async mode Record never blocks and never fails: when the buffer is full the
// oldest staged event is dropped to make room. In sync mode the store error
// is returned so the caller can log it; callers must not fail verification on
// a Record error.
func (p *Publisher) Record(ctx context.Context, event Event) error {
	if event.ID.IsNil() {
		event.ID = id.NewScanID()
	}
	if event.ScannedAt.IsZero() {
		event.ScannedAt = time.Now()
	}

	if p.buffer != nil {
		if !p.buffer.TryEnqueue(event) {
			p.buffer.DropOldest()
			p.buffer.TryEnqueue(event)
			if p.metrics != nil {
				p.metrics.IncBufferDropped()
			}
			if p.logger != nil {
				p.logger.WarnContext(ctx, "scan buffer full, dropped oldest event")
			}
		}
		if p.metrics != nil {
			p.metrics.IncRecorded()
		}
		return nil
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		return err
	}
	if p.metrics != nil {
		p.metrics.IncRecorded()
	}
	return nil
}

// ListRecent returns up to limit events, newest first.
func (p *Publisher) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	return p.store.ListRecent(ctx, limit)
}

// ListByPermit returns the scan history of one permit, newest first.
func (p *Publisher) ListByPermit(ctx context.Context, permitID id.PermitID) ([]Event, error) {
	return p.store.ListByPermit(ctx, permitID)
}

// Close stops the worker and drains staged events into the store. A no-op in
// sync mode.
func (p *Publisher) Close() error {
	if p.buffer == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done
	})
	return nil
}

func (p *Publisher) run() {
	defer close(p.done)

	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			p.flush(context.Background())
			return
		case <-ticker.C:
			p.flush(context.Background())
		}
	}
}

// flush drains the buffer completely, one batch at a time.
func (p *Publisher) flush(ctx context.Context) {
	for {
		batch := p.buffer.DequeueBatch(defaultFlushBatch)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			p.persist(ctx, event)
		}
	}
}

func (p *Publisher) persist(ctx context.Context, event Event) {
	if !p.breaker.Allow() {
		if p.metrics != nil {
			p.metrics.IncBreakerDropped()
		}
		return
	}

	if err := p.store.Append(ctx, event); err != nil {
		p.breaker.RecordFailure()
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
			p.metrics.SetBreakerState(p.breaker.IsOpen())
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "scan event persist failed",
				"scan_id", event.ID,
				"error", err,
			)
		}
		return
	}

	p.breaker.RecordSuccess()
	if p.metrics != nil {
		p.metrics.SetBreakerState(false)
	}
}
