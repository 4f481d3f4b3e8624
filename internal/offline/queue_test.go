package offline_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permis/internal/offline"
	"permis/internal/offline/store/memory"
	dErrors "permis/pkg/domain-errors"
	"permis/pkg/platform/sentinel"
)

type fakeSubmitter struct {
	mu    sync.Mutex
	calls []offline.Operation
	fn    func(ctx context.Context, op offline.Operation) error
}

func (f *fakeSubmitter) Submit(ctx context.Context, op offline.Operation) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	f.mu.Unlock()
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx, op)
}

func (f *fakeSubmitter) submitted() []offline.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]offline.Operation(nil), f.calls...)
}

type permitRequest struct {
	HolderName string `json:"holder_name"`
}

func newQueue(store *memory.Store, sub offline.Submitter, opts ...offline.Option) *offline.Queue {
	opts = append([]offline.Option{
		offline.WithRetryBackoff(time.Millisecond, 2*time.Millisecond),
		offline.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return offline.New(store, sub, opts...)
}

func waitFor(t *testing.T, ch <-chan struct{}, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal(msg)
	}
}

func TestEnqueueAssignsFreshKeys(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := newQueue(store, &fakeSubmitter{})

	first, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Marie Dubois"})
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, first)

	// Identical content is still a distinct operation with its own key.
	second, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Marie Dubois"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	ops, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, first, ops[0].IdempotencyKey)
	assert.Equal(t, second, ops[1].IdempotencyKey)
	assert.Equal(t, offline.StatusPending, ops[0].Status)
	assert.JSONEq(t, `{"holder_name":"Marie Dubois"}`, string(ops[0].Payload))
	assert.WithinDuration(t, time.Now(), ops[0].EnqueuedAt, time.Minute)
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	q := newQueue(store, &fakeSubmitter{}, offline.WithCapacity(2))

	for i := 0; i < 2; i++ {
		_, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Marie Dubois"})
		require.NoError(t, err)
	}

	_, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Jean Moreau"})
	require.ErrorIs(t, err, sentinel.ErrQueueFull)

	ops, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, ops, 2)

	// Draining frees capacity.
	_, err = q.Drain(ctx)
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Jean Moreau"})
	require.NoError(t, err)
}

func TestDrainCommitsInEnqueueOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sub := &fakeSubmitter{}
	q := newQueue(store, sub)

	holders := []string{"Marie Dubois", "Jean Moreau", "Claire Petit"}
	keys := make([]uuid.UUID, len(holders))
	for i, holder := range holders {
		key, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: holder})
		require.NoError(t, err)
		keys[i] = key
	}

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Committed)
	assert.Equal(t, 3, report.Drained())
	assert.Zero(t, report.Failed)
	assert.Zero(t, report.Remaining)

	calls := sub.submitted()
	require.Len(t, calls, 3)
	for i, key := range keys {
		assert.Equal(t, key, calls[i].IdempotencyKey)
	}

	ops, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops, "committed operations leave the queue")
}

func TestDrainTreatsDuplicateAckAsCommitted(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sub := &fakeSubmitter{
		fn: func(context.Context, offline.Operation) error {
			return sentinel.ErrDuplicateKey
		},
	}
	q := newQueue(store, sub)

	_, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Marie Dubois"})
	require.NoError(t, err)

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Duplicates)
	assert.Zero(t, report.Committed)
	assert.Equal(t, 1, report.Drained())

	ops, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDrainParksValidationRejections(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	var rejectKey uuid.UUID
	sub := &fakeSubmitter{}
	sub.fn = func(_ context.Context, op offline.Operation) error {
		if op.IdempotencyKey == rejectKey {
			return dErrors.New(dErrors.CodeValidation, "holder name is required")
		}
		return nil
	}
	q := newQueue(store, sub)

	var err error
	rejectKey, err = q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Jean Moreau"})
	require.NoError(t, err)

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)
	assert.Equal(t, 1, report.Failed)

	// A permanent rejection is parked immediately, without retries.
	assert.Len(t, sub.submitted(), 2)

	ops, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, rejectKey, ops[0].IdempotencyKey)
	assert.Equal(t, offline.StatusFailed, ops[0].Status)
	assert.Contains(t, ops[0].LastError, "holder name is required")
	assert.Zero(t, ops[0].AttemptCount)

	// Failed operations stay parked on later passes.
	report, err = q.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Drained())
	assert.Zero(t, report.Failed)
	assert.Len(t, sub.submitted(), 2)
}

func TestDrainRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	attempts := 0
	sub := &fakeSubmitter{
		fn: func(context.Context, offline.Operation) error {
			attempts++
			if attempts <= 2 {
				return errors.New("connection refused")
			}
			return nil
		},
	}
	q := newQueue(store, sub)

	_, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Marie Dubois"})
	require.NoError(t, err)

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)
	assert.Equal(t, 3, attempts)

	ops, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestDrainParksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sub := &fakeSubmitter{
		fn: func(context.Context, offline.Operation) error {
			return errors.New("connection refused")
		},
	}
	q := newQueue(store, sub, offline.WithMaxAttempts(3))

	key, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Marie Dubois"})
	require.NoError(t, err)

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, sub.submitted(), 3)

	ops, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, key, ops[0].IdempotencyKey)
	assert.Equal(t, offline.StatusFailed, ops[0].Status)
	assert.Equal(t, 3, ops[0].AttemptCount)
	assert.Contains(t, ops[0].LastError, "connection refused")
}

func TestDrainCancelRevertsInFlightToPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.New()
	entered := make(chan struct{})
	sub := &fakeSubmitter{
		fn: func(ctx context.Context, _ offline.Operation) error {
			close(entered)
			<-ctx.Done()
			return ctx.Err()
		},
	}
	q := newQueue(store, sub)

	_, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Marie Dubois"})
	require.NoError(t, err)

	var (
		report   offline.DrainReport
		drainErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		report, drainErr = q.Drain(ctx)
	}()

	waitFor(t, entered, "drain never reached the submitter")
	cancel()
	waitFor(t, done, "drain did not return after cancellation")

	require.ErrorIs(t, drainErr, context.Canceled)
	assert.Equal(t, 1, report.Remaining)

	ops, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, offline.StatusPending, ops[0].Status)
}

func TestDrainReplaysInterruptedInFlight(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	// A row parked in flight is what a drain that died mid-submission
	// leaves behind.
	orphan := offline.Operation{
		IdempotencyKey: uuid.New(),
		Kind:           offline.KindCreatePermit,
		Payload:        json.RawMessage(`{"holder_name":"Jean Moreau"}`),
		Status:         offline.StatusInFlight,
		EnqueuedAt:     time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.Append(ctx, orphan))

	sub := &fakeSubmitter{}
	q := newQueue(store, sub)

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)

	calls := sub.submitted()
	require.Len(t, calls, 1)
	assert.Equal(t, orphan.IdempotencyKey, calls[0].IdempotencyKey)

	ops, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestEnqueueWaitsForRunningDrain(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	release := make(chan struct{})
	entered := make(chan struct{})
	var enteredOnce sync.Once
	sub := &fakeSubmitter{
		fn: func(context.Context, offline.Operation) error {
			enteredOnce.Do(func() { close(entered) })
			<-release
			return nil
		},
	}
	q := newQueue(store, sub)

	_, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Marie Dubois"})
	require.NoError(t, err)

	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		_, _ = q.Drain(ctx)
	}()
	waitFor(t, entered, "drain never reached the submitter")

	enqueued := make(chan struct{})
	go func() {
		defer close(enqueued)
		_, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{HolderName: "Jean Moreau"})
		assert.NoError(t, err)
	}()

	select {
	case <-enqueued:
		t.Fatal("enqueue completed while a drain held the queue")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	waitFor(t, drainDone, "drain did not finish")
	waitFor(t, enqueued, "enqueue did not complete after the drain released the queue")

	ops, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, offline.StatusPending, ops[0].Status)
}

func TestRequeueReturnsFailedToPending(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sub := &fakeSubmitter{
		fn: func(context.Context, offline.Operation) error {
			return dErrors.New(dErrors.CodeValidation, "holder name is required")
		},
	}
	q := newQueue(store, sub)

	key, err := q.Enqueue(ctx, offline.KindCreatePermit, permitRequest{})
	require.NoError(t, err)
	_, err = q.Drain(ctx)
	require.NoError(t, err)

	require.NoError(t, q.Requeue(ctx, key))

	ops, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, offline.StatusPending, ops[0].Status)
	assert.Zero(t, ops[0].AttemptCount)
	assert.Empty(t, ops[0].LastError)

	// Only failed operations can be requeued.
	require.ErrorIs(t, q.Requeue(ctx, key), sentinel.ErrInvalidState)
	require.ErrorIs(t, q.Requeue(ctx, uuid.New()), sentinel.ErrNotFound)

	sub.fn = nil
	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Committed)
}

func TestDrainEmptyQueue(t *testing.T) {
	ctx := context.Background()
	sub := &fakeSubmitter{}
	q := newQueue(memory.New(), sub)

	report, err := q.Drain(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Drained())
	assert.Empty(t, sub.submitted())
}
