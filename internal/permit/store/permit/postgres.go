// Package permit persists authoritative permit records. The Postgres store
// is the source of truth; the in-memory store mirrors its semantics for
// tests.
package permit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"permis/internal/permit/models"
	id "permis/pkg/domain"
	"permis/pkg/platform/sentinel"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const permitColumns = `id, serial_number, holder_name, permit_type, zone, species, issued_by, date_issued, date_expiration, created_at, updated_at`

// CreateWithKey inserts the permit and its idempotency key atomically.
//
// Errors: sentinel.ErrDuplicateKey when the key already committed (the row it
// points at is untouched), sentinel.ErrAlreadyUsed when the serial number is
// taken by another permit. Both leave the database unchanged.
func (s *PostgresStore) CreateWithKey(ctx context.Context, p *models.Permit, key, fingerprint string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create permit: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM permit_idempotency WHERE idempotency_key = $1)`, key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check idempotency key: %w", err)
	}
	if exists {
		return sentinel.ErrDuplicateKey
	}

	_, err = tx.Exec(ctx, `
INSERT INTO permits (`+permitColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(p.ID), string(p.SerialNumber), p.HolderName, string(p.Type), string(p.Zone),
		p.Species, uuid.UUID(p.IssuedBy), p.DateIssued, p.DateExpiration, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert permit: %w", err)
	}

	_, err = tx.Exec(ctx, `
INSERT INTO permit_idempotency (idempotency_key, permit_id, request_hash, committed_at)
VALUES ($1, $2, $3, $4)`,
		key, uuid.UUID(p.ID), fingerprint, p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrDuplicateKey
		}
		return fmt.Errorf("insert idempotency key: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create permit: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, permitID id.PermitID) (*models.Permit, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE id = $1`, uuid.UUID(permitID))
	return scanPermit(row)
}

func (s *PostgresStore) FindBySerial(ctx context.Context, serial id.SerialNumber) (*models.Permit, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE serial_number = $1`, string(serial))
	return scanPermit(row)
}

// FindByKey resolves a committed idempotency key to its permit and the
// fingerprint recorded at commit time.
func (s *PostgresStore) FindByKey(ctx context.Context, key string) (*models.Permit, string, error) {
	row := s.pool.QueryRow(ctx, `
SELECT p.id, p.serial_number, p.holder_name, p.permit_type, p.zone, p.species,
       p.issued_by, p.date_issued, p.date_expiration, p.created_at, p.updated_at,
       k.request_hash
FROM permit_idempotency k
JOIN permits p ON p.id = k.permit_id
WHERE k.idempotency_key = $1`, key)

	var (
		p           models.Permit
		rawID       uuid.UUID
		rawIssuedBy uuid.UUID
		serial      string
		permitType  string
		zone        string
		fingerprint string
	)
	err := row.Scan(&rawID, &serial, &p.HolderName, &permitType, &zone, &p.Species,
		&rawIssuedBy, &p.DateIssued, &p.DateExpiration, &p.CreatedAt, &p.UpdatedAt, &fingerprint)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", sentinel.ErrNotFound
		}
		return nil, "", fmt.Errorf("find permit by idempotency key: %w", err)
	}
	p.ID = id.PermitID(rawID)
	p.IssuedBy = id.AgentID(rawIssuedBy)
	p.SerialNumber = id.SerialNumber(serial)
	p.Type = id.PermitType(permitType)
	p.Zone = id.Zone(zone)
	return &p, fingerprint, nil
}

// ListUnexpired returns permits whose validity window is still open at asOf,
// ordered by serial number for deterministic snapshots.
func (s *PostgresStore) ListUnexpired(ctx context.Context, asOf time.Time) ([]models.Permit, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+permitColumns+` FROM permits WHERE date_expiration >= $1 ORDER BY serial_number`, asOf)
	if err != nil {
		return nil, fmt.Errorf("list unexpired permits: %w", err)
	}
	defer rows.Close()

	var out []models.Permit
	for rows.Next() {
		p, err := scanPermit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM permits`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count permits: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermit(row rowScanner) (*models.Permit, error) {
	var (
		p           models.Permit
		rawID       uuid.UUID
		rawIssuedBy uuid.UUID
		serial      string
		permitType  string
		zone        string
	)
	err := row.Scan(&rawID, &serial, &p.HolderName, &permitType, &zone, &p.Species,
		&rawIssuedBy, &p.DateIssued, &p.DateExpiration, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan permit: %w", err)
	}
	p.ID = id.PermitID(rawID)
	p.IssuedBy = id.AgentID(rawIssuedBy)
	p.SerialNumber = id.SerialNumber(serial)
	p.Type = id.PermitType(permitType)
	p.Zone = id.Zone(zone)
	return &p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
