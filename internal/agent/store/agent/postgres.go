// Package agent persists field agent accounts. The Postgres store is the
// source of truth; the in-memory store mirrors its semantics for tests.
package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"permis/internal/agent/models"
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

const agentColumns = `id, email, password_hash, display_name, status, created_at, updated_at`

// Create inserts a new agent.
//
// Errors: sentinel.ErrAlreadyUsed when the email is taken.
func (s *PostgresStore) Create(ctx context.Context, a *models.Agent) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO agents (`+agentColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(a.ID), a.Email, a.PasswordHash, a.DisplayName, string(a.Status),
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert agent: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, agentID id.AgentID) (*models.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`, uuid.UUID(agentID))
	return scanAgent(row)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*models.Agent, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE email = $1`, email)
	return scanAgent(row)
}

// Update persists mutable fields: status, display name, password hash.
// Email and creation time never change after insert.
func (s *PostgresStore) Update(ctx context.Context, a *models.Agent) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE agents
SET password_hash = $2, display_name = $3, status = $4, updated_at = $5
WHERE id = $1`,
		uuid.UUID(a.ID), a.PasswordHash, a.DisplayName, string(a.Status), a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var (
		a      models.Agent
		rawID  uuid.UUID
		status string
	)
	err := row.Scan(&rawID, &a.Email, &a.PasswordHash, &a.DisplayName, &status,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan agent: %w", err)
	}
	a.ID = id.AgentID(rawID)
	a.Status = models.Status(status)
	return &a, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
