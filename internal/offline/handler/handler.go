// Package handler exposes the device-side write queue over HTTP for the
// kiosk UI: enqueue a permit while offline, inspect what is waiting, trigger
// a drain when connectivity returns, and requeue operations the server
// rejected.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"permis/internal/offline"
	permithandler "permis/internal/permit/handler"
	"permis/internal/permit/store/snapshot"
	dErrors "permis/pkg/domain-errors"
	"permis/pkg/platform/httputil"
	"permis/pkg/platform/sentinel"
	"permis/pkg/requestcontext"
)

// defaultDrainBudget bounds one HTTP-triggered drain pass. With default
// retry settings a stubbornly unreachable server costs a few seconds per
// operation, so this covers a full queue while staying under the router's
// request timeout. Operations left behind stay pending for the next pass.
const defaultDrainBudget = 90 * time.Second

// Queue is the slice of the offline queue the HTTP surface needs.
type Queue interface {
	Enqueue(ctx context.Context, kind string, payload any) (uuid.UUID, error)
	List(ctx context.Context) ([]offline.Operation, error)
	Requeue(ctx context.Context, key uuid.UUID) error
	Drain(ctx context.Context) (offline.DrainReport, error)
}

// SnapshotReader reports the locally cached permit set for the status view.
type SnapshotReader interface {
	Get(ctx context.Context) (*snapshot.Snapshot, error)
}

// Handler wires queue endpoints to the device's offline queue.
type Handler struct {
	queue       Queue
	snapshots   SnapshotReader
	logger      *slog.Logger
	drainBudget time.Duration
}

type Option func(*Handler)

// WithSnapshotReader adds cached-snapshot details to GET /status.
func WithSnapshotReader(snapshots SnapshotReader) Option {
	return func(h *Handler) {
		h.snapshots = snapshots
	}
}

// WithDrainBudget overrides how long one HTTP-triggered drain pass may run.
func WithDrainBudget(budget time.Duration) Option {
	return func(h *Handler) {
		if budget > 0 {
			h.drainBudget = budget
		}
	}
}

// New constructs a queue handler.
func New(queue Queue, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		queue:       queue,
		logger:      logger,
		drainBudget: defaultDrainBudget,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts queue endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/permits", h.HandleEnqueuePermit)
	r.Get("/queue", h.HandleListQueue)
	r.Post("/queue/drain", h.HandleDrain)
	r.Post("/queue/{key}/requeue", h.HandleRequeue)
	r.Get("/status", h.HandleStatus)
}

// HandleEnqueuePermit handles POST /permits on the device. The submission is
// validated with the same rules the server applies, then stored for the next
// drain; 202 acknowledges durable acceptance, not issuance. The returned
// idempotency key is what the server will eventually deduplicate on.
func (h *Handler) HandleEnqueuePermit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[permithandler.CreatePermitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	key, err := h.queue.Enqueue(ctx, offline.KindCreatePermit, req)
	if err != nil {
		if errors.Is(err, sentinel.ErrQueueFull) {
			err = dErrors.Wrap(err, dErrors.CodeUnavailable, "offline queue is full, drain before submitting more permits")
		}
		h.logger.ErrorContext(ctx, "permit enqueue failed",
			"request_id", requestID,
			"serial_number", req.SerialNumber,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "permit submission queued",
		"request_id", requestID,
		"idempotency_key", key.String(),
		"serial_number", req.SerialNumber,
	)
	httputil.WriteJSON(w, http.StatusAccepted, EnqueuedResponse{
		IdempotencyKey: key.String(),
		Status:         string(offline.StatusPending),
	})
}

// HandleListQueue handles GET /queue: every stored operation in enqueue
// order, failed ones included.
func (h *Handler) HandleListQueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ops, err := h.queue.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "queue listing failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromOperations(ops))
}

// HandleDrain handles POST /queue/drain: one synchronous drain pass. The
// response reports the pass even when the budget ran out mid-queue; a
// non-zero remaining count tells the operator to trigger another pass.
func (h *Handler) HandleDrain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	dctx, cancel := context.WithTimeout(ctx, h.drainBudget)
	defer cancel()

	report, err := h.queue.Drain(dctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		h.logger.ErrorContext(ctx, "queue drain failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if err != nil {
		h.logger.WarnContext(ctx, "queue drain ran out of time",
			"request_id", requestID,
			"remaining", report.Remaining,
		)
	}

	h.logger.InfoContext(ctx, "queue drain finished",
		"request_id", requestID,
		"committed", report.Committed,
		"duplicates", report.Duplicates,
		"failed", report.Failed,
		"remaining", report.Remaining,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, FromDrainReport(report))
}

// HandleRequeue handles POST /queue/{key}/requeue: return one failed
// operation to pending after the operator fixed whatever the server
// objected to.
func (h *Handler) HandleRequeue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	key, err := uuid.Parse(chi.URLParam(r, "key"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "idempotency key must be a UUID"))
		return
	}

	if err := h.queue.Requeue(ctx, key); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			err = dErrors.Wrap(err, dErrors.CodeNotFound, "no queued operation under that key")
		case errors.Is(err, sentinel.ErrInvalidState):
			err = dErrors.Wrap(err, dErrors.CodeConflict, "only failed operations can be requeued")
		}
		h.logger.ErrorContext(ctx, "requeue failed",
			"request_id", requestcontext.RequestID(ctx),
			"idempotency_key", key.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "failed operation requeued",
		"request_id", requestcontext.RequestID(ctx),
		"idempotency_key", key.String(),
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus handles GET /status: queue depth plus the age of the cached
// permit snapshot, the two numbers an operator checks before going into the
// field.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ops, err := h.queue.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "queue status failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := StatusResponse{}
	for _, op := range ops {
		if op.Status == offline.StatusFailed {
			resp.QueueFailed++
		} else {
			resp.QueueActive++
		}
	}

	if h.snapshots != nil {
		snap, err := h.snapshots.Get(ctx)
		switch {
		case err == nil:
			takenAt := snap.TakenAt
			resp.SnapshotTakenAt = &takenAt
			resp.SnapshotPermits = len(snap.Permits)
		case errors.Is(err, sentinel.ErrNotFound):
			// No snapshot downloaded yet; the zero fields say so.
		default:
			h.logger.WarnContext(ctx, "snapshot status unavailable",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}
