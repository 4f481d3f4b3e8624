// Package sqlite persists the device-side write queue and permit snapshot in
// a single local database file, so both survive restarts and power loss in
// the field.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"

	"permis/internal/offline"
	"permis/pkg/platform/sentinel"
)

// Open opens (creating if needed) the device database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open device database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("open device database: %w", err)
	}
	return db, nil
}

// Store keeps queued operations ordered by insertion. It implements
// offline.Store.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate queue schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS queued_operations (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		idempotency_key TEXT NOT NULL UNIQUE,
		kind            TEXT NOT NULL,
		payload         BLOB NOT NULL,
		status          TEXT NOT NULL,
		attempt_count   INTEGER NOT NULL DEFAULT 0,
		last_error      TEXT NOT NULL DEFAULT '',
		enqueued_at     TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *Store) Append(ctx context.Context, op offline.Operation) error {
	query := `
		INSERT INTO queued_operations
			(idempotency_key, kind, payload, status, attempt_count, last_error, enqueued_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		op.IdempotencyKey.String(),
		op.Kind,
		[]byte(op.Payload),
		string(op.Status),
		op.AttemptCount,
		op.LastError,
		formatTime(op.EnqueuedAt),
		formatTime(op.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("append queued operation: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]offline.Operation, error) {
	query := `
		SELECT idempotency_key, kind, payload, status, attempt_count, last_error, enqueued_at, updated_at
		FROM queued_operations
		ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list queued operations: %w", err)
	}
	defer rows.Close()

	var ops []offline.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queued operations: %w", err)
	}
	return ops, nil
}

func (s *Store) Update(ctx context.Context, op offline.Operation) error {
	query := `
		UPDATE queued_operations
		SET status = ?, attempt_count = ?, last_error = ?, updated_at = ?
		WHERE idempotency_key = ?`

	res, err := s.db.ExecContext(ctx, query,
		string(op.Status),
		op.AttemptCount,
		op.LastError,
		formatTime(op.UpdatedAt),
		op.IdempotencyKey.String(),
	)
	if err != nil {
		return fmt.Errorf("update queued operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update queued operation: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key uuid.UUID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM queued_operations WHERE idempotency_key = ?`, key.String())
	if err != nil {
		return fmt.Errorf("delete queued operation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete queued operation: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queued_operations WHERE status IN (?, ?)`,
		string(offline.StatusPending), string(offline.StatusInFlight),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count queued operations: %w", err)
	}
	return count, nil
}

func scanOperation(rows *sql.Rows) (offline.Operation, error) {
	var (
		op         offline.Operation
		key        string
		payload    []byte
		status     string
		enqueuedAt string
		updatedAt  string
	)
	if err := rows.Scan(&key, &op.Kind, &payload, &status, &op.AttemptCount, &op.LastError, &enqueuedAt, &updatedAt); err != nil {
		return offline.Operation{}, fmt.Errorf("scan queued operation: %w", err)
	}

	parsedKey, err := uuid.Parse(key)
	if err != nil {
		return offline.Operation{}, fmt.Errorf("parse idempotency key %q: %w", key, err)
	}
	op.IdempotencyKey = parsedKey
	op.Payload = payload
	op.Status = offline.Status(status)

	if op.EnqueuedAt, err = parseTime(enqueuedAt); err != nil {
		return offline.Operation{}, err
	}
	if op.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return offline.Operation{}, err
	}
	return op, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", value, err)
	}
	return t, nil
}
