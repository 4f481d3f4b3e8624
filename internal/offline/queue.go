// Package offline queues permit writes made while a field device cannot
// reach the issuing server, and drains them once connectivity returns.
// Every operation is durably stored before Enqueue acknowledges, and each
// carries a server-side idempotency key, so replaying an interrupted
// submission cannot apply twice.
package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	dErrors "permis/pkg/domain-errors"
	"permis/pkg/platform/sentinel"
)

var tracer trace.Tracer = otel.Tracer("permis/internal/offline")

const (
	// KindCreatePermit routes an operation to the permit issuance endpoint.
	KindCreatePermit = "permit.create"

	// DefaultCapacity bounds how many undrained operations the queue holds.
	DefaultCapacity = 256
	// DefaultMaxAttempts bounds transient retries before an operation is
	// parked as failed.
	DefaultMaxAttempts = 5

	defaultRetryInitial = 500 * time.Millisecond
	defaultRetryMax     = 30 * time.Second
)

// Status is the lifecycle state of a queued operation. Committed operations
// leave the queue entirely; the server's record is the durable outcome.
type Status string

const (
	// StatusPending means the operation waits for the next drain.
	StatusPending Status = "pending"
	// StatusInFlight means a drain is submitting the operation right now.
	// A row still in flight at load time belongs to an interrupted drain
	// and is reverted to pending before anything is replayed.
	StatusInFlight Status = "in_flight"
	// StatusFailed means the server rejected the operation permanently or
	// retries ran out. Failed operations are kept for inspection and only
	// re-enter the queue through Requeue.
	StatusFailed Status = "failed"
)

// Operation is one queued write. Payload is the JSON body the server expects;
// the queue never interprets it.
type Operation struct {
	IdempotencyKey uuid.UUID       `json:"idempotency_key"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	AttemptCount   int             `json:"attempt_count"`
	LastError      string          `json:"last_error,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Store persists queued operations. List returns them in enqueue order.
// Idempotency keys are generated fresh by the queue, so Append never sees a
// duplicate; Update and Delete return sentinel.ErrNotFound for unknown keys.
type Store interface {
	Append(ctx context.Context, op Operation) error
	List(ctx context.Context) ([]Operation, error)
	Update(ctx context.Context, op Operation) error
	Delete(ctx context.Context, key uuid.UUID) error
	CountActive(ctx context.Context) (int, error)
}

// Submitter pushes one operation to the issuing server.
//
// A nil return means the server applied the operation. sentinel.ErrDuplicateKey
// means the server had already applied it under the same idempotency key;
// the queue treats that as committed. Domain errors carrying a request-shaped
// code (bad request, invalid input, validation, conflict) are permanent;
// everything else is transient and retried.
type Submitter interface {
	Submit(ctx context.Context, op Operation) error
}

// DrainReport summarizes one drain pass. Committed and Duplicates both left
// the queue successfully; Duplicates were already known to the server.
type DrainReport struct {
	Committed  int
	Duplicates int
	Failed     int
	// Remaining counts pending operations left behind when the pass was
	// cancelled. Zero after a completed pass.
	Remaining int
}

// Drained reports how many operations left the queue successfully.
func (r DrainReport) Drained() int { return r.Committed + r.Duplicates }

// Queue is the device-side write-ahead queue. Enqueue and Drain serialize on
// one mutex: a drain in progress delays enqueues rather than interleaving
// with them.
type Queue struct {
	mu        sync.Mutex
	store     Store
	submitter Submitter

	capacity     int
	maxAttempts  int
	retryInitial time.Duration
	retryMax     time.Duration
	logger       *slog.Logger
}

type Option func(*Queue)

// WithCapacity overrides the queue depth at which Enqueue starts rejecting.
func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithMaxAttempts overrides how many transient failures park an operation.
func WithMaxAttempts(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithRetryBackoff overrides the exponential wait between transient retries.
func WithRetryBackoff(initial, max time.Duration) Option {
	return func(q *Queue) {
		if initial > 0 {
			q.retryInitial = initial
		}
		if max > 0 {
			q.retryMax = max
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

func New(store Store, submitter Submitter, opts ...Option) *Queue {
	q := &Queue{
		store:        store,
		submitter:    submitter,
		capacity:     DefaultCapacity,
		maxAttempts:  DefaultMaxAttempts,
		retryInitial: defaultRetryInitial,
		retryMax:     defaultRetryMax,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue stores one operation and returns its fresh idempotency key. The
// operation is durable before Enqueue returns; the only refusal is
// sentinel.ErrQueueFull when the queue is at capacity.
func (q *Queue) Enqueue(ctx context.Context, kind string, payload any) (uuid.UUID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode operation payload: %w", err)
	}

	active, err := q.store.CountActive(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("count queued operations: %w", err)
	}
	if active >= q.capacity {
		return uuid.Nil, sentinel.ErrQueueFull
	}

	now := time.Now().UTC()
	op := Operation{
		IdempotencyKey: uuid.New(),
		Kind:           kind,
		Payload:        data,
		Status:         StatusPending,
		EnqueuedAt:     now,
		UpdatedAt:      now,
	}
	if err := q.store.Append(ctx, op); err != nil {
		return uuid.Nil, fmt.Errorf("persist queued operation: %w", err)
	}
	return op.IdempotencyKey, nil
}

// List returns every stored operation in enqueue order, failed ones included.
func (q *Queue) List(ctx context.Context) ([]Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.List(ctx)
}

// Requeue returns a failed operation to pending with a cleared attempt
// budget. Operations in any other state return sentinel.ErrInvalidState.
func (q *Queue) Requeue(ctx context.Context, key uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load queued operations: %w", err)
	}
	for _, op := range ops {
		if op.IdempotencyKey != key {
			continue
		}
		if op.Status != StatusFailed {
			return sentinel.ErrInvalidState
		}
		op.Status = StatusPending
		op.AttemptCount = 0
		op.LastError = ""
		op.UpdatedAt = time.Now().UTC()
		return q.store.Update(ctx, op)
	}
	return sentinel.ErrNotFound
}

// Drain replays pending operations in enqueue order until the queue is empty
// or ctx is cancelled. A transient failure keeps its operation at the head
// and backs off before retrying, so ordering is preserved; cancellation
// reverts the in-flight operation to pending and returns ctx's error.
func (q *Queue) Drain(ctx context.Context) (DrainReport, error) {
	ctx, span := tracer.Start(ctx, "offline.Drain")
	defer span.End()

	q.mu.Lock()
	defer q.mu.Unlock()

	var report DrainReport
	defer func() {
		span.SetAttributes(
			attribute.Int("drain.committed", report.Committed),
			attribute.Int("drain.duplicates", report.Duplicates),
			attribute.Int("drain.failed", report.Failed),
			attribute.Int("drain.remaining", report.Remaining),
		)
	}()

	ops, err := q.store.List(ctx)
	if err != nil {
		return report, fmt.Errorf("load queued operations: %w", err)
	}

	// Rows still in flight belong to a drain that died mid-submission.
	// The server-side idempotency key makes replaying them safe.
	for i := range ops {
		if ops[i].Status != StatusInFlight {
			continue
		}
		ops[i].Status = StatusPending
		ops[i].UpdatedAt = time.Now().UTC()
		if err := q.store.Update(ctx, ops[i]); err != nil {
			return report, fmt.Errorf("recover interrupted operation: %w", err)
		}
	}

	pending := 0
	for _, op := range ops {
		if op.Status == StatusPending {
			pending++
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = q.retryInitial
	bo.MaxInterval = q.retryMax
	bo.MaxElapsedTime = 0

	for _, op := range ops {
		if op.Status != StatusPending {
			continue
		}
		if ctx.Err() != nil {
			report.Remaining = pending
			return report, ctx.Err()
		}

		bo.Reset()
		outcome, err := q.drainOne(ctx, op, bo)
		if err != nil {
			report.Remaining = pending
			return report, err
		}

		pending--
		switch outcome {
		case outcomeCommitted:
			report.Committed++
		case outcomeDuplicate:
			report.Duplicates++
		case outcomeFailed:
			report.Failed++
		}
	}
	return report, nil
}

type drainOutcome int

const (
	outcomeCommitted drainOutcome = iota
	outcomeDuplicate
	outcomeFailed
)

// drainOne submits a single operation, retrying transient failures in place.
// Attempt counts and status transitions are persisted before every wait, so
// a crash at any point resumes without losing progress.
func (q *Queue) drainOne(ctx context.Context, op Operation, bo backoff.BackOff) (drainOutcome, error) {
	op.Status = StatusInFlight
	op.UpdatedAt = time.Now().UTC()
	if err := q.store.Update(ctx, op); err != nil {
		return 0, fmt.Errorf("mark operation in flight: %w", err)
	}

	for {
		err := q.submitter.Submit(ctx, op)

		if err != nil && ctx.Err() != nil {
			if revertErr := q.revert(ctx, op); revertErr != nil {
				return 0, revertErr
			}
			return 0, ctx.Err()
		}

		switch {
		case err == nil:
			if err := q.store.Delete(ctx, op.IdempotencyKey); err != nil {
				return 0, fmt.Errorf("remove committed operation: %w", err)
			}
			return outcomeCommitted, nil

		case errors.Is(err, sentinel.ErrDuplicateKey):
			// The server already applied this operation under the same
			// key; an earlier drain committed it before dying.
			if err := q.store.Delete(ctx, op.IdempotencyKey); err != nil {
				return 0, fmt.Errorf("remove committed operation: %w", err)
			}
			return outcomeDuplicate, nil

		case isPermanent(err):
			op.Status = StatusFailed
			op.LastError = err.Error()
			op.UpdatedAt = time.Now().UTC()
			if updateErr := q.store.Update(ctx, op); updateErr != nil {
				return 0, fmt.Errorf("park rejected operation: %w", updateErr)
			}
			q.logWarn(ctx, "server rejected queued operation",
				"idempotency_key", op.IdempotencyKey.String(),
				"kind", op.Kind,
				"error", err,
			)
			return outcomeFailed, nil
		}

		op.AttemptCount++
		op.LastError = err.Error()
		op.UpdatedAt = time.Now().UTC()

		if op.AttemptCount >= q.maxAttempts {
			op.Status = StatusFailed
			if updateErr := q.store.Update(ctx, op); updateErr != nil {
				return 0, fmt.Errorf("park exhausted operation: %w", updateErr)
			}
			q.logWarn(ctx, "queued operation exhausted its retries",
				"idempotency_key", op.IdempotencyKey.String(),
				"attempts", op.AttemptCount,
				"error", err,
			)
			return outcomeFailed, nil
		}

		op.Status = StatusPending
		if updateErr := q.store.Update(ctx, op); updateErr != nil {
			return 0, fmt.Errorf("record retry attempt: %w", updateErr)
		}

		wait := bo.NextBackOff()
		q.logWarn(ctx, "transient submit failure, backing off",
			"idempotency_key", op.IdempotencyKey.String(),
			"attempt", op.AttemptCount,
			"wait", wait,
			"error", err,
		)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return 0, ctx.Err()
		}

		op.Status = StatusInFlight
		op.UpdatedAt = time.Now().UTC()
		if err := q.store.Update(ctx, op); err != nil {
			return 0, fmt.Errorf("mark operation in flight: %w", err)
		}
	}
}

// revert returns an interrupted operation to pending. The write runs on a
// detached context because the caller's is already cancelled.
func (q *Queue) revert(ctx context.Context, op Operation) error {
	op.Status = StatusPending
	op.UpdatedAt = time.Now().UTC()
	if err := q.store.Update(context.WithoutCancel(ctx), op); err != nil {
		return fmt.Errorf("revert interrupted operation: %w", err)
	}
	return nil
}

// isPermanent reports whether the server's answer can never change for this
// payload. Everything else, including auth failures a fresh login could fix,
// stays retryable.
func isPermanent(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeBadRequest) ||
		dErrors.HasCode(err, dErrors.CodeInvalidInput) ||
		dErrors.HasCode(err, dErrors.CodeValidation) ||
		dErrors.HasCode(err, dErrors.CodeConflict)
}

func (q *Queue) logWarn(ctx context.Context, msg string, args ...any) {
	if q.logger != nil {
		q.logger.WarnContext(ctx, msg, args...)
	}
}
