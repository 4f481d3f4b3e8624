// Package snapshot caches the unexpired permit set in Redis so verification
// can keep answering lookups while the authoritative store is unreachable.
// The cache is a single atomically replaced blob: readers see a whole
// snapshot or none at all, never a partially refreshed one.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"permis/internal/permit/models"
	id "permis/pkg/domain"
	"permis/pkg/platform/sentinel"
)

// snapshotKey is versioned so a payload shape change can roll out without
// old readers choking on new blobs.
const snapshotKey = "permis:snapshot:v1"

const defaultTTL = 48 * time.Hour

// Snapshot is the cached permit set together with the instant it was taken.
// TakenAt lets callers report how stale a degraded-mode answer is.
type Snapshot struct {
	TakenAt time.Time       `json:"taken_at"`
	Permits []models.Permit `json:"permits"`
}

// Store is a Redis-backed snapshot cache. The TTL bounds how long a stale
// snapshot can keep serving after refreshes stop.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New constructs a snapshot store. A non-positive ttl falls back to 48h.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

// Put replaces the cached snapshot and resets its TTL.
func (s *Store) Put(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// Get returns the cached snapshot. sentinel.ErrNotFound means no snapshot
// has been taken yet or the TTL lapsed.
func (s *Store) Get(ctx context.Context) (*Snapshot, error) {
	data, err := s.client.Get(ctx, snapshotKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// FindByID looks one permit up in the cached snapshot. sentinel.ErrNotFound
// covers both a missing snapshot and a permit the snapshot does not carry;
// degraded-mode callers treat the two the same way.
func (s *Store) FindByID(ctx context.Context, permitID id.PermitID) (*models.Permit, error) {
	snap, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	for i := range snap.Permits {
		if snap.Permits[i].ID == permitID {
			p := snap.Permits[i]
			p.Species = append([]string(nil), p.Species...)
			return &p, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// Age reports how old the cached snapshot is at now. sentinel.ErrNotFound
// when there is no snapshot.
func (s *Store) Age(ctx context.Context, now time.Time) (time.Duration, error) {
	snap, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	return now.Sub(snap.TakenAt), nil
}
