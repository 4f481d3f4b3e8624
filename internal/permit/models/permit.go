package models

import (
	"strings"
	"time"

	id "permis/pkg/domain"
	dErrors "permis/pkg/domain-errors"
	pstrings "permis/pkg/platform/strings"
)

// Permit is the aggregate root for an issued fishing permit.
//
// Invariants:
//   - SerialNumber is unique across all permits
//   - HolderName is non-empty and at most 256 characters
//   - DateExpiration is not before DateIssued
//   - At least one species is listed
//
// Expiration here is the permit's business validity end, independent of any
// scannable code's freshness window. A permit can be expired while its code
// still carries a valid signature; verification reports that as Expired, not
// as a signature failure.
type Permit struct {
	ID             id.PermitID      `json:"id"`
	SerialNumber   id.SerialNumber  `json:"serial_number"`
	HolderName     string           `json:"holder_name"`
	Type           id.PermitType    `json:"permit_type"`
	Zone           id.Zone          `json:"zone"`
	Species        []string         `json:"species"`
	IssuedBy       id.AgentID       `json:"issued_by"`
	DateIssued     time.Time        `json:"date_issued"`
	DateExpiration time.Time        `json:"date_expiration"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// IsExpired reports whether the permit's validity window has closed at the
// given instant. The expiration instant itself is still valid.
func (p *Permit) IsExpired(now time.Time) bool {
	return now.After(p.DateExpiration)
}

func NewPermit(permitID id.PermitID, params CreateParams, now time.Time) (*Permit, error) {
	holder := strings.TrimSpace(params.HolderName)
	if holder == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "holder name cannot be empty")
	}
	if len(holder) > 256 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "holder name must be 256 characters or less")
	}
	if !params.SerialNumber.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "serial number is not well formed")
	}
	species := pstrings.DedupeAndTrimLower(params.Species)
	if len(species) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "at least one species is required")
	}
	if params.DateExpiration.Before(params.DateIssued) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expiration date cannot precede issue date")
	}
	return &Permit{
		ID:             permitID,
		SerialNumber:   params.SerialNumber,
		HolderName:     holder,
		Type:           params.Type,
		Zone:           params.Zone,
		Species:        species,
		IssuedBy:       params.IssuedBy,
		DateIssued:     params.DateIssued,
		DateExpiration: params.DateExpiration,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CreateParams carries the validated fields of a permit submission. The
// idempotency key travels alongside, never inside, the logical content:
// two submissions with different keys but equal params are the same permit.
type CreateParams struct {
	SerialNumber   id.SerialNumber
	HolderName     string
	Type           id.PermitType
	Zone           id.Zone
	Species        []string
	IssuedBy       id.AgentID
	DateIssued     time.Time
	DateExpiration time.Time
}
