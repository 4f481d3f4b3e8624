// Package verify classifies scanned permit codes. Every call resolves to a
// definite status; per-request failures become classifications, never errors
// surfaced to the scanner.
package verify

import (
	"time"

	"permis/internal/permit/models"
	id "permis/pkg/domain"
)

// Status is the terminal classification of one verification attempt.
type Status string

const (
	// StatusValid means the code is authentic, fresh, and references a
	// permit inside its validity window.
	StatusValid Status = "valid"
	// StatusExpired means the code is authentic and fresh but the permit's
	// own validity window has closed.
	StatusExpired Status = "expired"
	// StatusInvalidSignature covers everything that prevents trusting the
	// payload: unrecognized code shape, signature mismatch, malformed or
	// unsupported payload.
	StatusInvalidSignature Status = "invalid_signature"
	// StatusRecordNotFound means the payload is trusted but no reachable
	// store knows the referenced permit.
	StatusRecordNotFound Status = "record_not_found"
	// StatusStale means the signed code is older than the trust window,
	// independent of the permit's own expiration.
	StatusStale Status = "stale"
)

// Summary is the minimal permit view released to scanners. Never the full
// record.
type Summary struct {
	SerialNumber   id.SerialNumber `json:"serial_number"`
	HolderName     string          `json:"holder_name"`
	Type           id.PermitType   `json:"permit_type"`
	Zone           id.Zone         `json:"zone"`
	DateExpiration time.Time       `json:"date_expiration"`
}

// Result is produced fresh per verification call and never cached.
type Result struct {
	Status Status `json:"status"`
	// Reason is a short operator-facing explanation for non-valid statuses.
	Reason string `json:"reason,omitempty"`
	// Mode reports which lookup path answered: online when the
	// authoritative store was reachable, offline when the local snapshot
	// served or no lookup ran on a disconnected verifier.
	Mode id.VerificationMode `json:"mode"`
	// Permit is set when the referenced record was resolved, so expired
	// permits still show who they belong to.
	Permit    *Summary  `json:"permit,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

func summarize(p *models.Permit) *Summary {
	return &Summary{
		SerialNumber:   p.SerialNumber,
		HolderName:     p.HolderName,
		Type:           p.Type,
		Zone:           p.Zone,
		DateExpiration: p.DateExpiration,
	}
}

// scanResult collapses a Status to the coarse audit vocabulary: anything that
// is not valid or expired is recorded as invalid.
func scanResult(status Status) id.ScanResult {
	switch status {
	case StatusValid:
		return id.ScanResultValid
	case StatusExpired:
		return id.ScanResultExpired
	default:
		return id.ScanResultInvalid
	}
}
