// Package consumer materializes scan events from Kafka into the scan_events
// table. At-least-once delivery is expected; materialization is idempotent on
// the event ID carried in the message key.
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"permis/internal/platform/kafka/consumer"
	"permis/internal/scanlog"
	scanmetrics "permis/internal/scanlog/metrics"
	id "permis/pkg/domain"
)

// Store defines the storage interface for materializing scan events.
type Store interface {
	AppendWithID(ctx context.Context, eventID uuid.UUID, event scanlog.Event) error
}

// ScanHandler processes scan events from Kafka.
type ScanHandler struct {
	store   Store
	logger  *slog.Logger
	metrics *scanmetrics.Metrics
}

// NewScanHandler creates a scan event handler.
func NewScanHandler(store Store, logger *slog.Logger, metrics *scanmetrics.Metrics) *ScanHandler {
	return &ScanHandler{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// scanPayload matches the JSON structure the outbox store publishes.
type scanPayload struct {
	ID        string `json:"ID"`
	PermitID  string `json:"PermitID"`
	AgentID   string `json:"AgentID"`
	ScannedAt string `json:"ScannedAt"`
	Result    string `json:"Result"`
	Mode      string `json:"Mode"`
	Reason    string `json:"Reason"`
	RequestID string `json:"RequestID"`
	Device    string `json:"Device"`
}

// Handle processes one scan event. Malformed messages are logged and skipped
// so a poison message can never wedge the partition; store failures are
// returned for redelivery.
func (h *ScanHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	eventID, err := uuid.Parse(string(msg.Key))
	if err != nil {
		h.logger.Warn("failed to parse scan event ID",
			"key", string(msg.Key),
			"error", err,
		)
		return nil
	}

	var payload scanPayload
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		h.logger.Warn("failed to unmarshal scan payload",
			"event_id", eventID,
			"error", err,
		)
		return nil
	}

	result, err := id.ParseScanResult(payload.Result)
	if err != nil {
		h.logger.Warn("scan event carries unknown result, skipping",
			"event_id", eventID,
			"result", payload.Result,
		)
		return nil
	}
	mode, err := id.ParseVerificationMode(payload.Mode)
	if err != nil {
		h.logger.Warn("scan event carries unknown mode, skipping",
			"event_id", eventID,
			"mode", payload.Mode,
		)
		return nil
	}

	event := scanlog.Event{
		ID:        id.ScanID(eventID),
		Result:    result,
		Mode:      mode,
		Reason:    payload.Reason,
		RequestID: payload.RequestID,
		Device:    payload.Device,
	}

	if payload.ScannedAt != "" {
		if ts, err := time.Parse(time.RFC3339Nano, payload.ScannedAt); err == nil {
			event.ScannedAt = ts
		} else {
			event.ScannedAt = time.Now()
		}
	} else {
		event.ScannedAt = time.Now()
	}

	if payload.PermitID != "" {
		if permitID, err := id.ParsePermitID(payload.PermitID); err == nil {
			event.PermitID = &permitID
		}
	}
	if payload.AgentID != "" {
		if agentID, err := id.ParseAgentID(payload.AgentID); err == nil {
			event.AgentID = &agentID
		}
	}

	if err := h.store.AppendWithID(ctx, eventID, event); err != nil {
		h.logger.Error("failed to materialize scan event",
			"event_id", eventID,
			"error", err,
		)
		return fmt.Errorf("store scan event: %w", err)
	}

	if h.metrics != nil {
		h.metrics.IncMaterialized()
	}
	h.logger.Debug("materialized scan event",
		"event_id", eventID,
		"result", event.Result,
		"mode", event.Mode,
	)

	return nil
}
