package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"permis/internal/verify"
	dErrors "permis/pkg/domain-errors"
	"permis/pkg/platform/httputil"
	"permis/pkg/requestcontext"
)

// Service defines the interface for verification.
type Service interface {
	Verify(ctx context.Context, rawCode string) verify.Result
}

// Handler wires the verification endpoint to the verification service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a verification handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the verification endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/verify", h.HandleVerify)
}

// VerifyRequest is the HTTP request body for POST /verify.
type VerifyRequest struct {
	Code string `json:"code"`
}

// Validate validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
//
// Only the envelope is validated here. The code's content is never a request
// error: garbage scans classify as invalid_signature in the result body.
func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Code == "" {
		return dErrors.New(dErrors.CodeValidation, "code is required")
	}
	if len(r.Code) > 8192 {
		return dErrors.New(dErrors.CodeValidation, "code is too long")
	}
	return nil
}

// HandleVerify handles POST /verify requests. The response is always 200
// with a classification; a scan that cannot be trusted is a result, not an
// HTTP failure.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	if requestcontext.AgentID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result := h.service.Verify(ctx, req.Code)

	h.logger.InfoContext(ctx, "code verified",
		"request_id", requestID,
		"status", string(result.Status),
		"mode", string(result.Mode),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, result)
}
