package handler

import (
	"time"

	"permis/internal/agent/models"
	"permis/internal/agent/service"
)

// AgentResponse is the HTTP representation of an agent account. The password
// hash never crosses this boundary.
type AgentResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FromAgent converts an agent model into the HTTP response shape.
func FromAgent(a *models.Agent) AgentResponse {
	return AgentResponse{
		ID:          a.ID.String(),
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// LoginResponse is the HTTP response body for POST /agents/login, shaped like
// an OAuth token response.
type LoginResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int64         `json:"expires_in"`
	Agent       AgentResponse `json:"agent"`
}

// FromLoginResult converts a login result into the HTTP response shape.
func FromLoginResult(result *service.LoginResult) LoginResponse {
	return LoginResponse{
		AccessToken: result.AccessToken,
		TokenType:   result.TokenType,
		ExpiresIn:   result.ExpiresIn,
		Agent:       FromAgent(result.Agent),
	}
}

// CreateAgentResponse is the HTTP response body for POST /agents.
// InitialPassword is returned exactly once; it is never stored or logged.
type CreateAgentResponse struct {
	AgentResponse
	InitialPassword string `json:"initial_password"`
}
