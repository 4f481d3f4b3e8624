package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is the authoritative DDL, applied idempotently at startup and by the
// integration test harness. The uniqueness constraint on permits.serial_number
// and the primary key on permit_idempotency.idempotency_key are load-bearing:
// the offline queue's exactly-once guarantee rests on them.
const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id            UUID PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name  TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL DEFAULT 'active',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS permits (
	id              UUID PRIMARY KEY,
	serial_number   TEXT NOT NULL UNIQUE,
	holder_name     TEXT NOT NULL,
	permit_type     TEXT NOT NULL,
	zone            TEXT NOT NULL,
	species         TEXT[] NOT NULL DEFAULT '{}',
	issued_by       UUID NOT NULL REFERENCES agents(id),
	date_issued     TIMESTAMPTZ NOT NULL,
	date_expiration TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS permit_idempotency (
	idempotency_key TEXT PRIMARY KEY,
	permit_id       UUID NOT NULL REFERENCES permits(id),
	request_hash    TEXT NOT NULL,
	committed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   TEXT NOT NULL,
	event_type     TEXT NOT NULL,
	payload        JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	published_at   TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
	ON outbox (created_at) WHERE published_at IS NULL;

CREATE TABLE IF NOT EXISTS scan_events (
	id         UUID PRIMARY KEY,
	permit_id  UUID,
	agent_id   UUID,
	scanned_at TIMESTAMPTZ NOT NULL,
	result     TEXT NOT NULL,
	mode       TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	request_id TEXT NOT NULL DEFAULT '',
	device     TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_scan_events_permit
	ON scan_events (permit_id, scanned_at DESC);
`

// EnsureSchema applies the DDL. Safe to run on every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
