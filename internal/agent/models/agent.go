package models

import (
	"net/mail"
	"strings"
	"time"

	id "permis/pkg/domain"
	dErrors "permis/pkg/domain-errors"
	"permis/pkg/email"
)

// Agent is the aggregate root for a field agent account. Agents issue
// permits at the counter and verify them in the field; every permit carries
// the ID of the agent that issued it.
//
// Invariants:
//   - Email is non-empty, well formed, and unique across all agents
//   - PasswordHash is non-empty (never the cleartext password)
//   - DisplayName is non-empty and at most 128 characters
//   - Status is either active or disabled
//   - Status transitions: active ↔ disabled only
type Agent struct {
	ID           id.AgentID `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never serialize - contains bcrypt hash
	DisplayName  string     `json:"display_name"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Status is the lifecycle state of an agent account.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusDisabled
}

// CanTransitionTo reports whether the move to next is an allowed lifecycle
// transition. Only active ↔ disabled is permitted.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusDisabled
	case StatusDisabled:
		return next == StatusActive
	default:
		return false
	}
}

// NewAgent constructs an active agent. The caller hashes the password; the
// constructor never sees cleartext. An empty display name is derived from
// the email's local part.
func NewAgent(agentID id.AgentID, emailAddr, passwordHash, displayName string, now time.Time) (*Agent, error) {
	normalized, err := NormalizeEmail(emailAddr)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash cannot be empty")
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email.DisplayName(normalized)
	}
	if len(displayName) > 128 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "display name must be 128 characters or less")
	}
	return &Agent{
		ID:           agentID,
		Email:        normalized,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail trims, lowercases, and validates an email address. The
// normalized form is the identity agents log in with, so normalization must
// happen before any store lookup.
func NormalizeEmail(emailAddr string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(emailAddr))
	if normalized == "" {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "email cannot be empty")
	}
	parsed, err := mail.ParseAddress(normalized)
	if err != nil || parsed.Address != normalized {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "email is not well formed")
	}
	return normalized, nil
}

func (a *Agent) IsActive() bool {
	return a.Status == StatusActive
}

// CanDisable checks if the agent can transition to disabled status.
// Returns nil if the transition is valid, or an error if not allowed.
func (a *Agent) CanDisable() error {
	if !a.Status.CanTransitionTo(StatusDisabled) {
		return dErrors.New(dErrors.CodeInvariantViolation, "agent is already disabled")
	}
	return nil
}

// ApplyDisable transitions the agent to disabled status.
// Must only be called after CanDisable returns nil.
func (a *Agent) ApplyDisable(now time.Time) {
	a.Status = StatusDisabled
	a.UpdatedAt = now
}

// Disable validates and applies deactivation in one call.
func (a *Agent) Disable(now time.Time) error {
	if err := a.CanDisable(); err != nil {
		return err
	}
	a.ApplyDisable(now)
	return nil
}

// CanEnable checks if the agent can transition back to active status.
// Returns nil if the transition is valid, or an error if not allowed.
func (a *Agent) CanEnable() error {
	if !a.Status.CanTransitionTo(StatusActive) {
		return dErrors.New(dErrors.CodeInvariantViolation, "agent is already active")
	}
	return nil
}

// ApplyEnable transitions the agent to active status.
// Must only be called after CanEnable returns nil.
func (a *Agent) ApplyEnable(now time.Time) {
	a.Status = StatusActive
	a.UpdatedAt = now
}

// Enable validates and applies reactivation in one call.
func (a *Agent) Enable(now time.Time) error {
	if err := a.CanEnable(); err != nil {
		return err
	}
	a.ApplyEnable(now)
	return nil
}
