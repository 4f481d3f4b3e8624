package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"permis/internal/scanlog"
	id "permis/pkg/domain"
	txcontext "permis/pkg/platform/tx"
)

// Store implements scanlog.Store using the transactional outbox pattern.
// Append writes to the outbox table; the relay publishes rows to Kafka and
// the consumer materializes them into scan_events. Kafka is the source of
// truth for scan history.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL scan store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// scanlog.Event for deserialization by the consumer.
type outboxPayload struct {
	ID        string `json:"ID"`
	PermitID  string `json:"PermitID,omitempty"`
	AgentID   string `json:"AgentID,omitempty"`
	ScannedAt string `json:"ScannedAt"`
	Result    string `json:"Result"`
	Mode      string `json:"Mode"`
	Reason    string `json:"Reason,omitempty"`
	RequestID string `json:"RequestID,omitempty"`
	Device    string `json:"Device,omitempty"`
}

// Append writes a scan event to the outbox table for Kafka publishing. The
// outbox row ID is the scan event ID, so the same ID travels from publisher
// through the Kafka message key to the materialized row.
func (s *Store) Append(ctx context.Context, event scanlog.Event) error {
	eventID := uuid.UUID(event.ID)
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}

	payload := outboxPayload{
		ID:        eventID.String(),
		ScannedAt: event.ScannedAt.Format(time.RFC3339Nano),
		Result:    string(event.Result),
		Mode:      string(event.Mode),
		Reason:    event.Reason,
		RequestID: event.RequestID,
		Device:    event.Device,
	}

	// A scan that resolved a permit aggregates under it; anything else
	// (tampered, unknown) stands alone under the event ID.
	aggregateType := "scan"
	aggregateID := eventID.String()
	if event.PermitID != nil {
		payload.PermitID = event.PermitID.String()
		aggregateType = "permit"
		aggregateID = event.PermitID.String()
	}
	if event.AgentID != nil {
		payload.AgentID = event.AgentID.String()
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal scan payload: %w", err)
	}

	query := `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		eventID,
		aggregateType,
		aggregateID,
		scanlog.EventTypePermitScanned,
		payloadBytes,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// AppendWithID inserts a scan event into the scan_events table under the
// given ID. Used by the Kafka consumer to materialize events for querying.
// Idempotent: duplicate inserts are ignored via ON CONFLICT DO NOTHING.
func (s *Store) AppendWithID(ctx context.Context, eventID uuid.UUID, event scanlog.Event) error {
	query := `
		INSERT INTO scan_events (
			id, permit_id, agent_id, scanned_at,
			result, mode, reason, request_id, device
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`

	var permitID, agentID *uuid.UUID
	if event.PermitID != nil {
		pid := uuid.UUID(*event.PermitID)
		permitID = &pid
	}
	if event.AgentID != nil {
		aid := uuid.UUID(*event.AgentID)
		agentID = &aid
	}

	_, err := s.db.ExecContext(ctx, query,
		eventID,
		permitID,
		agentID,
		event.ScannedAt,
		string(event.Result),
		string(event.Mode),
		event.Reason,
		event.RequestID,
		event.Device,
	)
	if err != nil {
		return fmt.Errorf("insert scan event: %w", err)
	}
	return nil
}

// ListRecent returns the N most recent materialized events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]scanlog.Event, error) {
	query := `
		SELECT id, permit_id, agent_id, scanned_at,
			   result, mode, reason, request_id, device
		FROM scan_events
		ORDER BY scanned_at DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query scan events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListByPermit returns the materialized scan history of one permit.
func (s *Store) ListByPermit(ctx context.Context, permitID id.PermitID) ([]scanlog.Event, error) {
	query := `
		SELECT id, permit_id, agent_id, scanned_at,
			   result, mode, reason, request_id, device
		FROM scan_events
		WHERE permit_id = $1
		ORDER BY scanned_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(permitID))
	if err != nil {
		return nil, fmt.Errorf("query scan events: %w", err)
	}
	defer rows.Close()

	return s.scanEvents(rows)
}

// ListUnpublished returns up to limit outbox rows awaiting publication,
// oldest first.
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]scanlog.OutboxEntry, error) {
	query := `
		SELECT id, event_type, payload, created_at
		FROM outbox
		WHERE published_at IS NULL
		ORDER BY created_at, id
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var entries []scanlog.OutboxEntry
	for rows.Next() {
		var entry scanlog.OutboxEntry
		if err := rows.Scan(&entry.ID, &entry.EventType, &entry.Payload, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

// MarkPublished stamps the given outbox rows as published.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	strs := make([]string, len(ids))
	for i, entryID := range ids {
		strs[i] = entryID.String()
	}

	query := `UPDATE outbox SET published_at = NOW() WHERE id = ANY($1::uuid[])`
	if _, err := s.db.ExecContext(ctx, query, pq.Array(strs)); err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

// scanEvents scans multiple rows into a scanlog.Event slice.
func (s *Store) scanEvents(rows *sql.Rows) ([]scanlog.Event, error) {
	var events []scanlog.Event

	for rows.Next() {
		var (
			eventID  uuid.UUID
			permitID *uuid.UUID
			agentID  *uuid.UUID
			event    scanlog.Event
			result   string
			mode     string
		)

		err := rows.Scan(
			&eventID,
			&permitID,
			&agentID,
			&event.ScannedAt,
			&result,
			&mode,
			&event.Reason,
			&event.RequestID,
			&event.Device,
		)
		if err != nil {
			return nil, fmt.Errorf("scan scan event: %w", err)
		}

		event.ID = id.ScanID(eventID)
		event.Result = id.ScanResult(result)
		event.Mode = id.VerificationMode(mode)
		if permitID != nil {
			pid := id.PermitID(*permitID)
			event.PermitID = &pid
		}
		if agentID != nil {
			aid := id.AgentID(*agentID)
			event.AgentID = &aid
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan events: %w", err)
	}

	return events, nil
}
