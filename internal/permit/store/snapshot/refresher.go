package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"permis/internal/permit/models"
)

const defaultRefreshInterval = 15 * time.Minute

// Source yields the current unexpired permit set.
type Source interface {
	Snapshot(ctx context.Context) ([]models.Permit, error)
}

// Sink stores a refreshed snapshot.
type Sink interface {
	Put(ctx context.Context, snap Snapshot) error
}

// Refresher rebuilds the cached snapshot on an interval. While the
// authoritative store is healthy this keeps degraded-mode data at most one
// interval old; when a refresh fails the previous snapshot keeps serving
// until its TTL lapses.
type Refresher struct {
	source   Source
	sink     Sink
	interval time.Duration
	logger   *slog.Logger
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshInterval overrides the default 15m refresh interval.
func WithRefreshInterval(interval time.Duration) RefresherOption {
	return func(r *Refresher) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

// WithRefresherLogger sets a logger for refresh failures.
func WithRefresherLogger(logger *slog.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = logger
	}
}

// NewRefresher constructs a Refresher over the given source and sink.
func NewRefresher(source Source, sink Sink, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		source:   source,
		sink:     sink,
		interval: defaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RefreshOnce takes one snapshot and stores it.
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	permits, err := r.source.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("take snapshot: %w", err)
	}
	if err := r.sink.Put(ctx, Snapshot{TakenAt: time.Now().UTC(), Permits: permits}); err != nil {
		return fmt.Errorf("cache snapshot: %w", err)
	}
	return nil
}

// Run refreshes immediately, then on every interval tick until the context
// is cancelled. Individual refresh failures are logged, not fatal.
func (r *Refresher) Run(ctx context.Context) error {
	if err := r.RefreshOnce(ctx); err != nil {
		r.logError(ctx, err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.RefreshOnce(ctx); err != nil {
				r.logError(ctx, err)
			}
		}
	}
}

func (r *Refresher) logError(ctx context.Context, err error) {
	if r.logger != nil {
		r.logger.ErrorContext(ctx, "snapshot refresh failed", "error", err)
	}
}
