package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"permis/internal/scanlog"
	id "permis/pkg/domain"
)

// InMemoryStore keeps scan events in process memory. It mirrors the Postgres
// store's semantics, including AppendWithID idempotence, for tests and for
// running without a database.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []scanlog.Event
	seen   map[uuid.UUID]bool
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{seen: make(map[uuid.UUID]bool)}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	s.seen = make(map[uuid.UUID]bool)
}

func (s *InMemoryStore) Append(_ context.Context, event scanlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// AppendWithID materializes an event under the given ID. Replays are no-ops.
func (s *InMemoryStore) AppendWithID(_ context.Context, eventID uuid.UUID, event scanlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[eventID] {
		return nil
	}
	s.seen[eventID] = true
	event.ID = id.ScanID(eventID)
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListRecent(_ context.Context, limit int) ([]scanlog.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]scanlog.Event{}, s.events...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScannedAt.After(out[j].ScannedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) ListByPermit(_ context.Context, permitID id.PermitID) ([]scanlog.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []scanlog.Event
	for _, event := range s.events {
		if event.PermitID != nil && *event.PermitID == permitID {
			out = append(out, event)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ScannedAt.After(out[j].ScannedAt)
	})
	return out, nil
}
