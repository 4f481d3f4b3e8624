package handler

import (
	"time"

	"permis/internal/permit/models"
)

// PermitResponse is the HTTP representation of an issued permit. Code is the
// scannable string for printing; it is freshly signed per response, so a
// re-fetched permit yields a re-dated code.
type PermitResponse struct {
	ID             string    `json:"id"`
	SerialNumber   string    `json:"serial_number"`
	HolderName     string    `json:"holder_name"`
	PermitType     string    `json:"permit_type"`
	Zone           string    `json:"zone"`
	Species        []string  `json:"species"`
	IssuedBy       string    `json:"issued_by"`
	DateIssued     string    `json:"date_issued"`
	DateExpiration string    `json:"date_expiration"`
	CreatedAt      time.Time `json:"created_at"`
	Code           string    `json:"code,omitempty"`
	Duplicate      bool      `json:"duplicate,omitempty"`
}

// FromPermit converts a domain permit to an HTTP response.
func FromPermit(p *models.Permit, code string) *PermitResponse {
	return &PermitResponse{
		ID:             p.ID.String(),
		SerialNumber:   p.SerialNumber.String(),
		HolderName:     p.HolderName,
		PermitType:     p.Type.String(),
		Zone:           p.Zone.String(),
		Species:        p.Species,
		IssuedBy:       p.IssuedBy.String(),
		DateIssued:     p.DateIssued.UTC().Format(dateLayout),
		DateExpiration: p.DateExpiration.UTC().Format(dateLayout),
		CreatedAt:      p.CreatedAt,
		Code:           code,
	}
}
