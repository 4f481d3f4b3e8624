package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"permis/internal/permit/models"
	"permis/internal/permit/service"
	snapshotstore "permis/internal/permit/store/snapshot"
	"permis/internal/signedcode"
	id "permis/pkg/domain"
	dErrors "permis/pkg/domain-errors"
	"permis/pkg/platform/httputil"
	"permis/pkg/requestcontext"
)

// Service defines the interface for permit operations.
type Service interface {
	CreatePermit(ctx context.Context, key string, params models.CreateParams) (service.CreateResult, error)
	GetPermit(ctx context.Context, permitID id.PermitID) (*models.Permit, error)
	Snapshot(ctx context.Context) ([]models.Permit, error)
}

// Handler wires permit endpoints to the permit service.
type Handler struct {
	service Service
	signer  signedcode.Signer
	logger  *slog.Logger
}

// New constructs a permit handler with its dependencies.
func New(service Service, signer signedcode.Signer, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		signer:  signer,
		logger:  logger,
	}
}

// Register mounts permit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/permits", h.HandleCreatePermit)
	r.Get("/permits/snapshot", h.HandleSnapshot)
	r.Get("/permits/{permitID}", h.HandleGetPermit)
}

// HandleCreatePermit handles POST /permits requests. A repeated submission
// under an already committed idempotency key is acknowledged with 200 and
// the original permit; only fresh commits answer 201.
func (h *Handler) HandleCreatePermit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	agentID := requestcontext.AgentID(ctx)
	if agentID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Idempotency-Key header is required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[CreatePermitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.CreatePermit(ctx, key, req.Params(agentID))
	if err != nil {
		h.logger.ErrorContext(ctx, "permit submission failed",
			"request_id", requestID,
			"serial_number", req.SerialNumber,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	code, err := h.issueCode(ctx, result.Permit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	status := http.StatusCreated
	event := "permit issued"
	if !result.Created {
		status = http.StatusOK
		event = "permit submission acknowledged as duplicate"
	}

	h.logger.InfoContext(ctx, event,
		"request_id", requestID,
		"permit_id", result.Permit.ID.String(),
		"serial_number", string(result.Permit.SerialNumber),
		"created", result.Created,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	resp := FromPermit(result.Permit, code)
	resp.Duplicate = !result.Created
	httputil.WriteJSON(w, status, resp)
}

// HandleGetPermit handles GET /permits/{permitID} requests. The response
// carries a freshly signed code so a lost card can be re-printed.
func (h *Handler) HandleGetPermit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if requestcontext.AgentID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	permitID, err := id.ParsePermitID(chi.URLParam(r, "permitID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	p, err := h.service.GetPermit(ctx, permitID)
	if err != nil {
		h.logger.ErrorContext(ctx, "permit lookup failed",
			"request_id", requestID,
			"permit_id", permitID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	code, err := h.issueCode(ctx, p)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromPermit(p, code))
}

// HandleSnapshot handles GET /permits/snapshot requests: the full unexpired
// permit set for agent-side caching. A client that already holds a snapshot
// passes its taken_at as ?since= and receives 304 when nothing changed.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	if requestcontext.AgentID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "since must be an RFC 3339 timestamp"))
			return
		}
		since = parsed
	}

	permits, err := h.service.Snapshot(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "snapshot build failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	if !since.IsZero() && !changedSince(permits, since) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	h.logger.InfoContext(ctx, "snapshot served",
		"request_id", requestID,
		"permit_count", len(permits),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, snapshotstore.Snapshot{
		TakenAt: requestcontext.Now(ctx),
		Permits: permits,
	})
}

// changedSince reports whether any permit was written after the client's
// snapshot was taken. Expiration alone never counts as a change: verifiers
// re-check the validity window on every scan, so an expired entry in a stale
// client snapshot still classifies correctly.
func changedSince(permits []models.Permit, since time.Time) bool {
	for i := range permits {
		if permits[i].UpdatedAt.After(since) {
			return true
		}
	}
	return false
}

func (h *Handler) issueCode(ctx context.Context, p *models.Permit) (string, error) {
	code, err := signedcode.Issue(h.signer, p.ID.String(), requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "code signing failed",
			"request_id", requestcontext.RequestID(ctx),
			"permit_id", p.ID.String(),
			"error", err,
		)
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign permit code")
	}
	return code, nil
}
