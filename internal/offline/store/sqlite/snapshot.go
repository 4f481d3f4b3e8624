package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"permis/internal/permit/models"
	"permis/internal/permit/store/snapshot"
	id "permis/pkg/domain"
	"permis/pkg/platform/sentinel"
)

// SnapshotStore is the device-side counterpart of the server's Redis
// snapshot cache: one atomically replaced permit set, downloaded while
// connected and consulted by offline verification. It satisfies the same
// Put/Get/FindByID/Age surface.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) (*SnapshotStore, error) {
	s := &SnapshotStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate snapshot schema: %w", err)
	}
	return s, nil
}

func (s *SnapshotStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS permit_snapshot (
		id       INTEGER PRIMARY KEY CHECK (id = 1),
		taken_at TEXT NOT NULL,
		payload  BLOB NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Put replaces the stored snapshot wholesale.
func (s *SnapshotStore) Put(ctx context.Context, snap snapshot.Snapshot) error {
	data, err := json.Marshal(snap.Permits)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	query := `
		INSERT INTO permit_snapshot (id, taken_at, payload) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET taken_at = excluded.taken_at, payload = excluded.payload`
	if _, err := s.db.ExecContext(ctx, query, formatTime(snap.TakenAt), data); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Get returns the stored snapshot. sentinel.ErrNotFound means none has been
// downloaded yet.
func (s *SnapshotStore) Get(ctx context.Context) (*snapshot.Snapshot, error) {
	var (
		takenAt string
		payload []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT taken_at, payload FROM permit_snapshot WHERE id = 1`,
	).Scan(&takenAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	snap := snapshot.Snapshot{}
	if snap.TakenAt, err = parseTime(takenAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &snap.Permits); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// FindByID looks one permit up in the stored snapshot. sentinel.ErrNotFound
// covers both a missing snapshot and a permit it does not carry.
func (s *SnapshotStore) FindByID(ctx context.Context, permitID id.PermitID) (*models.Permit, error) {
	snap, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Permits {
		if snap.Permits[i].ID == permitID {
			p := snap.Permits[i]
			return &p, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Age reports how old the stored snapshot is at now.
func (s *SnapshotStore) Age(ctx context.Context, now time.Time) (time.Duration, error) {
	snap, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	return now.Sub(snap.TakenAt), nil
}
