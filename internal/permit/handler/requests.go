package handler

import (
	"strings"
	"time"

	"permis/internal/permit/models"
	id "permis/pkg/domain"
	dErrors "permis/pkg/domain-errors"
)

// dateLayout is the wire format for permit validity dates. Validity is
// day-granular; the freshness of scannable codes is what carries
// millisecond precision, not the permit window.
const dateLayout = "2006-01-02"

// CreatePermitRequest is the HTTP request body for POST /permits.
type CreatePermitRequest struct {
	SerialNumber   string   `json:"serial_number"`
	HolderName     string   `json:"holder_name"`
	PermitType     string   `json:"permit_type"`
	Zone           string   `json:"zone"`
	Species        []string `json:"species"`
	DateIssued     string   `json:"date_issued"`
	DateExpiration string   `json:"date_expiration"`

	// Parsed values (populated by Validate)
	parsedSerial     id.SerialNumber
	parsedType       id.PermitType
	parsedZone       id.Zone
	parsedIssued     time.Time
	parsedExpiration time.Time
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *CreatePermitRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.HolderName = strings.TrimSpace(r.HolderName)
	if r.HolderName == "" {
		return dErrors.New(dErrors.CodeValidation, "holder_name is required")
	}
	if len(r.HolderName) > 256 {
		return dErrors.New(dErrors.CodeValidation, "holder_name must be at most 256 characters")
	}

	serial, err := id.ParseSerialNumber(r.SerialNumber)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "serial_number is not well formed")
	}
	r.parsedSerial = serial

	permitType, err := id.ParsePermitType(r.PermitType)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "permit_type is not recognized")
	}
	r.parsedType = permitType

	zone, err := id.ParseZone(r.Zone)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "zone is not recognized")
	}
	r.parsedZone = zone

	if len(r.Species) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one species is required")
	}
	if len(r.Species) > 32 {
		return dErrors.New(dErrors.CodeValidation, "species list is too long")
	}

	issued, err := time.Parse(dateLayout, r.DateIssued)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "date_issued must be formatted YYYY-MM-DD")
	}
	r.parsedIssued = issued

	expiration, err := time.Parse(dateLayout, r.DateExpiration)
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "date_expiration must be formatted YYYY-MM-DD")
	}
	if expiration.Before(issued) {
		return dErrors.New(dErrors.CodeValidation, "date_expiration cannot precede date_issued")
	}
	r.parsedExpiration = expiration

	return nil
}

// Params assembles the domain submission for the authenticated issuing agent.
func (r *CreatePermitRequest) Params(issuedBy id.AgentID) models.CreateParams {
	return models.CreateParams{
		SerialNumber:   r.parsedSerial,
		HolderName:     r.HolderName,
		Type:           r.parsedType,
		Zone:           r.parsedZone,
		Species:        r.Species,
		IssuedBy:       issuedBy,
		DateIssued:     r.parsedIssued,
		DateExpiration: r.parsedExpiration,
	}
}
