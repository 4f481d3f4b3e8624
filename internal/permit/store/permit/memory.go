package permit

import (
	"context"
	"sort"
	"sync"
	"time"

	"permis/internal/permit/models"
	id "permis/pkg/domain"
	"permis/pkg/platform/sentinel"
)

// InMemoryStore mirrors the Postgres store's semantics for unit tests and
// single-process setups: same sentinels, same uniqueness rules.
type InMemoryStore struct {
	mu       sync.RWMutex
	permits  map[id.PermitID]*models.Permit
	bySerial map[id.SerialNumber]id.PermitID
	keys     map[string]idempotencyRecord
}

type idempotencyRecord struct {
	permitID    id.PermitID
	fingerprint string
	committedAt time.Time
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		permits:  make(map[id.PermitID]*models.Permit),
		bySerial: make(map[id.SerialNumber]id.PermitID),
		keys:     make(map[string]idempotencyRecord),
	}
}

// CreateWithKey persists the permit and records the idempotency key in one
// atomic step.
//
// Errors: sentinel.ErrDuplicateKey if the key was already committed,
// sentinel.ErrAlreadyUsed if the serial number belongs to another permit.
func (s *InMemoryStore) CreateWithKey(_ context.Context, p *models.Permit, key, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key]; exists {
		return sentinel.ErrDuplicateKey
	}
	if _, exists := s.bySerial[p.SerialNumber]; exists {
		return sentinel.ErrAlreadyUsed
	}

	cp := *p
	cp.Species = append([]string(nil), p.Species...)
	s.permits[p.ID] = &cp
	s.bySerial[p.SerialNumber] = p.ID
	s.keys[key] = idempotencyRecord{permitID: p.ID, fingerprint: fingerprint, committedAt: p.CreatedAt}
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, permitID id.PermitID) (*models.Permit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permits[permitID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.clone(p), nil
}

func (s *InMemoryStore) FindBySerial(_ context.Context, serial id.SerialNumber) (*models.Permit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	permitID, ok := s.bySerial[serial]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.clone(s.permits[permitID]), nil
}

// FindByKey returns the permit a committed idempotency key points at, plus
// the fingerprint recorded with it.
func (s *InMemoryStore) FindByKey(_ context.Context, key string) (*models.Permit, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.keys[key]
	if !ok {
		return nil, "", sentinel.ErrNotFound
	}
	return s.clone(s.permits[rec.permitID]), rec.fingerprint, nil
}

// ListUnexpired returns permits still inside their validity window at asOf,
// ordered by serial number. This is the offline snapshot source.
func (s *InMemoryStore) ListUnexpired(_ context.Context, asOf time.Time) ([]models.Permit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Permit, 0, len(s.permits))
	for _, p := range s.permits {
		if p.IsExpired(asOf) {
			continue
		}
		out = append(out, *s.clone(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialNumber < out[j].SerialNumber })
	return out, nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.permits), nil
}

func (s *InMemoryStore) clone(p *models.Permit) *models.Permit {
	cp := *p
	cp.Species = append([]string(nil), p.Species...)
	return &cp
}
