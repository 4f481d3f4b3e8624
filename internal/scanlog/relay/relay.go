// Package relay publishes unpublished outbox rows to Kafka. It is the second
// leg of the transactional outbox: the store appends, the relay ships, the
// consumer materializes. Rows are marked published only after the broker
// acknowledges them, so a crash between produce and mark re-publishes the
// row; consumers are idempotent on the event ID carried in the message key.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"permis/internal/scanlog"
	"permis/internal/scanlog/metrics"
)

// Store is the outbox slice of the scan store the relay needs.
type Store interface {
	ListUnpublished(ctx context.Context, limit int) ([]scanlog.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Producer publishes one record and confirms broker acknowledgement.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// Relay drains the outbox on a fixed interval. Run one instance per process;
// overlapping relays would publish duplicates (harmless, but noisy).
type Relay struct {
	store    Store
	producer Producer
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures the Relay.
type Option func(*Relay)

// WithLogger sets a logger for publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// WithInterval overrides how often the outbox is drained.
func WithInterval(interval time.Duration) Option {
	return func(r *Relay) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithBatchSize overrides how many rows one pass publishes at most.
func WithBatchSize(batch int) Option {
	return func(r *Relay) {
		if batch > 0 {
			r.batch = batch
		}
	}
}

// New creates a relay publishing to the given topic.
func New(store Store, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		store:    store,
		producer: producer,
		topic:    topic,
		interval: 2 * time.Second,
		batch:    100,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox on each tick until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && r.logger != nil {
				r.logger.ErrorContext(ctx, "outbox flush failed", "error", err)
			}
		}
	}
}

// Flush publishes one batch of unpublished rows and returns how many were
// published. Publishing stops at the first broker failure so outbox order is
// preserved; rows already acknowledged are still marked published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	entries, err := r.store.ListUnpublished(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var (
		published  []uuid.UUID
		produceErr error
	)
	for _, entry := range entries {
		if err := r.producer.Produce(ctx, r.topic, []byte(entry.ID.String()), entry.Payload); err != nil {
			if r.metrics != nil {
				r.metrics.IncRelayFailures()
			}
			if r.logger != nil {
				r.logger.ErrorContext(ctx, "outbox publish failed",
					"entry_id", entry.ID,
					"event_type", entry.EventType,
					"error", err,
				)
			}
			produceErr = err
			break
		}
		published = append(published, entry.ID)
		if r.metrics != nil {
			r.metrics.IncRelayPublished()
		}
	}

	if len(published) > 0 {
		if err := r.store.MarkPublished(ctx, published); err != nil {
			// Rows stay unpublished and will be produced again next pass;
			// the consumer deduplicates on the event ID.
			return len(published), err
		}
	}
	return len(published), produceErr
}
