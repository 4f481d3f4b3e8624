package handler

import (
	dErrors "permis/pkg/domain-errors"
)

// LoginRequest is the HTTP request body for POST /agents/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
//
// Only presence is checked here. Email normalization and credential checks
// happen in the service so every rejection reads identically to the caller.
func (r *LoginRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	return nil
}

// CreateAgentRequest is the HTTP request body for POST /agents.
// DisplayName is optional; an empty value derives a name from the email.
type CreateAgentRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// Validate validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreateAgentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}

// ChangePasswordRequest is the HTTP request body for POST /agents/me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate validates the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ChangePasswordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.CurrentPassword == "" {
		return dErrors.New(dErrors.CodeValidation, "current_password is required")
	}
	if r.NewPassword == "" {
		return dErrors.New(dErrors.CodeValidation, "new_password is required")
	}
	return nil
}
