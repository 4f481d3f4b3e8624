package handler

import (
	"time"

	"permis/internal/scanlog"
)

// ScanResponse is the HTTP representation of one recorded verification
// attempt. PermitID and AgentID stay optional: tampered codes resolve to no
// permit and kiosk scans carry no agent.
type ScanResponse struct {
	ID        string    `json:"id"`
	PermitID  *string   `json:"permit_id,omitempty"`
	AgentID   *string   `json:"agent_id,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
	Result    string    `json:"result"`
	Mode      string    `json:"mode"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Device    string    `json:"device,omitempty"`
}

// ScanListResponse wraps a page of scan events.
type ScanListResponse struct {
	Scans []ScanResponse `json:"scans"`
}

// FromEvents converts store events into the HTTP response shape, preserving
// order.
func FromEvents(events []scanlog.Event) ScanListResponse {
	scans := make([]ScanResponse, 0, len(events))
	for _, event := range events {
		scans = append(scans, fromEvent(event))
	}
	return ScanListResponse{Scans: scans}
}

func fromEvent(event scanlog.Event) ScanResponse {
	resp := ScanResponse{
		ID:        event.ID.String(),
		ScannedAt: event.ScannedAt,
		Result:    string(event.Result),
		Mode:      string(event.Mode),
		Reason:    event.Reason,
		RequestID: event.RequestID,
		Device:    event.Device,
	}
	if event.PermitID != nil {
		permitID := event.PermitID.String()
		resp.PermitID = &permitID
	}
	if event.AgentID != nil {
		agentID := event.AgentID.String()
		resp.AgentID = &agentID
	}
	return resp
}
