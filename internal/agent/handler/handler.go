// Package handler exposes agent accounts over HTTP. Login is public, profile
// and password endpoints require an agent token, and account administration
// sits behind the admin token middleware.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"permis/internal/agent/models"
	"permis/internal/agent/service"
	id "permis/pkg/domain"
	dErrors "permis/pkg/domain-errors"
	"permis/pkg/platform/httputil"
	"permis/pkg/requestcontext"
)

// Service defines the interface for agent account operations.
type Service interface {
	Login(ctx context.Context, email, password string) (*service.LoginResult, error)
	CreateAgent(ctx context.Context, email, displayName string) (*models.Agent, string, error)
	GetAgent(ctx context.Context, agentID id.AgentID) (*models.Agent, error)
	DisableAgent(ctx context.Context, agentID id.AgentID) (*models.Agent, error)
	EnableAgent(ctx context.Context, agentID id.AgentID) (*models.Agent, error)
	ChangePassword(ctx context.Context, agentID id.AgentID, current, next string) error
}

// Handler wires the agent account endpoints to the agent service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs an agent handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the public endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/agents/login", h.HandleLogin)
}

// RegisterProtected mounts the endpoints that require an agent token.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Get("/agents/me", h.HandleMe)
	r.Post("/agents/me/password", h.HandleChangePassword)
}

// RegisterAdmin mounts the account administration endpoints. The caller is
// responsible for wrapping the router with the admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/agents", h.HandleCreateAgent)
	r.Post("/agents/{agentID}/disable", h.HandleDisableAgent)
	r.Post("/agents/{agentID}/enable", h.HandleEnableAgent)
}

// HandleLogin handles POST /agents/login requests.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		h.logger.WarnContext(ctx, "login rejected",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "agent logged in",
		"request_id", requestID,
		"agent_id", result.Agent.ID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromLoginResult(result))
}

// HandleMe handles GET /agents/me requests.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID := requestcontext.AgentID(ctx)
	if agentID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	agent, err := h.service.GetAgent(ctx, agentID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load agent profile",
			"request_id", requestcontext.RequestID(ctx),
			"agent_id", agentID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, FromAgent(agent))
}

// HandleChangePassword handles POST /agents/me/password requests.
func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	agentID := requestcontext.AgentID(ctx)
	if agentID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ChangePasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.ChangePassword(ctx, agentID, req.CurrentPassword, req.NewPassword); err != nil {
		h.logger.WarnContext(ctx, "password change rejected",
			"request_id", requestID,
			"agent_id", agentID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "agent password changed",
		"request_id", requestID,
		"agent_id", agentID.String(),
	)

	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateAgent handles POST /agents requests. The response carries the
// generated initial password; it is shown exactly once.
func (h *Handler) HandleCreateAgent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[CreateAgentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	agent, initialPassword, err := h.service.CreateAgent(ctx, req.Email, req.DisplayName)
	if err != nil {
		h.logger.ErrorContext(ctx, "agent creation failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "agent created",
		"request_id", requestID,
		"agent_id", agent.ID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	httputil.WriteJSON(w, http.StatusCreated, CreateAgentResponse{
		AgentResponse:   FromAgent(agent),
		InitialPassword: initialPassword,
	})
}

// HandleDisableAgent handles POST /agents/{agentID}/disable requests.
func (h *Handler) HandleDisableAgent(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "agent disabled", h.service.DisableAgent)
}

// HandleEnableAgent handles POST /agents/{agentID}/enable requests.
func (h *Handler) HandleEnableAgent(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "agent enabled", h.service.EnableAgent)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, event string, apply func(context.Context, id.AgentID) (*models.Agent, error)) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	agentID, err := id.ParseAgentID(chi.URLParam(r, "agentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	agent, err := apply(ctx, agentID)
	if err != nil {
		h.logger.WarnContext(ctx, "agent status change rejected",
			"request_id", requestID,
			"agent_id", agentID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, event,
		"request_id", requestID,
		"agent_id", agent.ID.String(),
	)

	httputil.WriteJSON(w, http.StatusOK, FromAgent(agent))
}
