package agent

import (
	"context"
	"sync"

	"permis/internal/agent/models"
	id "permis/pkg/domain"
	"permis/pkg/platform/sentinel"
)

// InMemoryStore mirrors the Postgres store's semantics for unit tests and
// single-process setups: same sentinels, same uniqueness rules.
type InMemoryStore struct {
	mu      sync.RWMutex
	agents  map[id.AgentID]*models.Agent
	byEmail map[string]id.AgentID
}

func NewMemory() *InMemoryStore {
	return &InMemoryStore{
		agents:  make(map[id.AgentID]*models.Agent),
		byEmail: make(map[string]id.AgentID),
	}
}

// Create inserts a new agent.
//
// Errors: sentinel.ErrAlreadyUsed when the email is taken.
func (s *InMemoryStore) Create(_ context.Context, a *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[a.Email]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *a
	s.agents[a.ID] = &cp
	s.byEmail[a.Email] = a.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, agentID id.AgentID) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[agentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*models.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agentID, ok := s.byEmail[email]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.agents[agentID]
	return &cp, nil
}

// Update persists mutable fields: status, display name, password hash.
func (s *InMemoryStore) Update(_ context.Context, a *models.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.agents[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.PasswordHash = a.PasswordHash
	existing.DisplayName = a.DisplayName
	existing.Status = a.Status
	existing.UpdatedAt = a.UpdatedAt
	return nil
}

func (s *InMemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.agents), nil
}
