// Package scanlog records every verification attempt as an append-only audit
// trail. Writes go through the transactional outbox: stores append outbox
// rows, the relay publishes them to Kafka, and the consumer materializes
// scan_events rows for querying. Kafka is the source of truth for scan
// history; the materialized table is a queryable projection.
package scanlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	id "permis/pkg/domain"
)

// EventTypePermitScanned is the outbox event type and the only event this
// pipeline carries.
const EventTypePermitScanned = "permit_scanned"

// Event is one recorded verification attempt. PermitID and AgentID are
// pointers because both are optional: a tampered or unknown code resolves to
// no permit, and anonymous kiosk scans carry no agent.
type Event struct {
	ID        id.ScanID
	PermitID  *id.PermitID
	AgentID   *id.AgentID
	ScannedAt time.Time
	Result    id.ScanResult
	Mode      id.VerificationMode
	Reason    string
	RequestID string
	Device    string
}

// Store persists scan events.
type Store interface {
	// Append records a new event for publishing. Implementations must be safe
	// for concurrent use.
	Append(ctx context.Context, event Event) error
	// AppendWithID materializes an event consumed from the stream under the
	// given ID. Idempotent: replaying the same event ID is a no-op.
	AppendWithID(ctx context.Context, eventID uuid.UUID, event Event) error
	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]Event, error)
	// ListByPermit returns the scan history of one permit, newest first.
	ListByPermit(ctx context.Context, permitID id.PermitID) ([]Event, error)
}

// OutboxEntry is one unpublished outbox row, as handed to the relay. ID is
// the scan event ID end to end: it becomes the Kafka message key, which makes
// re-publishing after a relay crash idempotent on the consumer side.
type OutboxEntry struct {
	ID        uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
}
