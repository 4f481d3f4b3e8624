package handler

import (
	"encoding/json"
	"time"

	"permis/internal/offline"
)

// EnqueuedResponse acknowledges a queued submission. Status is always
// pending at this point; issuance happens on drain.
type EnqueuedResponse struct {
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
}

// OperationResponse is the HTTP representation of one queued operation.
// Payload is echoed verbatim so the kiosk can re-render what was submitted.
type OperationResponse struct {
	IdempotencyKey string          `json:"idempotency_key"`
	Kind           string          `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	Status         string          `json:"status"`
	AttemptCount   int             `json:"attempt_count"`
	LastError      string          `json:"last_error,omitempty"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// QueueListResponse wraps the queue contents in enqueue order.
type QueueListResponse struct {
	Operations []OperationResponse `json:"operations"`
}

// FromOperations converts queued operations into the HTTP response shape,
// preserving order.
func FromOperations(ops []offline.Operation) QueueListResponse {
	operations := make([]OperationResponse, 0, len(ops))
	for _, op := range ops {
		operations = append(operations, OperationResponse{
			IdempotencyKey: op.IdempotencyKey.String(),
			Kind:           op.Kind,
			Payload:        op.Payload,
			Status:         string(op.Status),
			AttemptCount:   op.AttemptCount,
			LastError:      op.LastError,
			EnqueuedAt:     op.EnqueuedAt,
			UpdatedAt:      op.UpdatedAt,
		})
	}
	return QueueListResponse{Operations: operations}
}

// DrainReportResponse summarizes one drain pass. Drained repeats
// committed+duplicates so the kiosk can show a single success figure.
type DrainReportResponse struct {
	Committed  int `json:"committed"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
	Remaining  int `json:"remaining"`
	Drained    int `json:"drained"`
}

func FromDrainReport(report offline.DrainReport) DrainReportResponse {
	return DrainReportResponse{
		Committed:  report.Committed,
		Duplicates: report.Duplicates,
		Failed:     report.Failed,
		Remaining:  report.Remaining,
		Drained:    report.Drained(),
	}
}

// StatusResponse is the device health view: how much is waiting to sync and
// how stale the verification snapshot is. SnapshotTakenAt stays null until
// the first successful pull.
type StatusResponse struct {
	QueueActive     int        `json:"queue_active"`
	QueueFailed     int        `json:"queue_failed"`
	SnapshotTakenAt *time.Time `json:"snapshot_taken_at,omitempty"`
	SnapshotPermits int        `json:"snapshot_permits"`
}
