package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"permis/internal/scanlog"
	id "permis/pkg/domain"
	dErrors "permis/pkg/domain-errors"
	"permis/pkg/platform/httputil"
	"permis/pkg/requestcontext"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// Store defines the read surface the scan endpoints need. The full scanlog
// store also appends; handlers never write.
type Store interface {
	ListRecent(ctx context.Context, limit int) ([]scanlog.Event, error)
	ListByPermit(ctx context.Context, permitID id.PermitID) ([]scanlog.Event, error)
}

// Handler wires the scan history endpoints to the scan event store.
type Handler struct {
	scans  Store
	logger *slog.Logger
}

// New constructs a scan history handler with its dependencies.
func New(scans Store, logger *slog.Logger) *Handler {
	return &Handler{
		scans:  scans,
		logger: logger,
	}
}

// Register mounts the scan history endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/scans/recent", h.HandleRecentScans)
	r.Get("/permits/{permitID}/scans", h.HandlePermitScans)
}

// HandleRecentScans handles GET /scans/recent requests. Events come back
// newest first; limit defaults to 50 and caps at 500.
func (h *Handler) HandleRecentScans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	if requestcontext.AgentID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be a positive integer"))
			return
		}
		limit = min(parsed, maxRecentLimit)
	}

	events, err := h.scans.ListRecent(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list recent scans",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list recent scans"))
		return
	}

	h.logger.InfoContext(ctx, "recent scans listed",
		"request_id", requestID,
		"count", len(events),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromEvents(events))
}

// HandlePermitScans handles GET /permits/{permitID}/scans requests, returning
// the full scan history of one permit, newest first.
func (h *Handler) HandlePermitScans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	if requestcontext.AgentID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	permitID, err := id.ParsePermitID(chi.URLParam(r, "permitID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.scans.ListByPermit(ctx, permitID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list permit scans",
			"request_id", requestID,
			"permit_id", permitID.String(),
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list permit scans"))
		return
	}

	h.logger.InfoContext(ctx, "permit scans listed",
		"request_id", requestID,
		"permit_id", permitID.String(),
		"count", len(events),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromEvents(events))
}
