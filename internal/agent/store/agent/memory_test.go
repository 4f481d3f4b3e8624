package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"permis/internal/agent/models"
	id "permis/pkg/domain"
	"permis/pkg/platform/sentinel"
)

type AgentStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *AgentStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func TestAgentStoreSuite(t *testing.T) {
	suite.Run(t, new(AgentStoreSuite))
}

func (s *AgentStoreSuite) newAgent(email string) *models.Agent {
	now := time.Now()
	return &models.Agent{
		ID:           id.NewAgentID(),
		Email:        email,
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuv",
		DisplayName:  "Marie Dubois",
		Status:       models.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *AgentStoreSuite) TestCreateAndLookups() {
	s.Run("creates and finds agent by ID", func() {
		a := s.newAgent("marie@peche.gouv.fr")
		s.Require().NoError(s.store.Create(s.ctx, a))

		found, err := s.store.FindByID(s.ctx, a.ID)
		s.Require().NoError(err)
		s.Equal(a.Email, found.Email)
		s.Equal(a.PasswordHash, found.PasswordHash)
	})

	s.Run("finds agent by email", func() {
		a := s.newAgent("jean@peche.gouv.fr")
		s.Require().NoError(s.store.Create(s.ctx, a))

		found, err := s.store.FindByEmail(s.ctx, "jean@peche.gouv.fr")
		s.Require().NoError(err)
		s.Equal(a.ID, found.ID)
	})
}

func (s *AgentStoreSuite) TestEmailUniqueness() {
	first := s.newAgent("marie@peche.gouv.fr")
	s.Require().NoError(s.store.Create(s.ctx, first))

	second := s.newAgent("marie@peche.gouv.fr")
	err := s.store.Create(s.ctx, second)
	s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)

	// The original row is untouched.
	found, err := s.store.FindByEmail(s.ctx, "marie@peche.gouv.fr")
	s.Require().NoError(err)
	s.Equal(first.ID, found.ID)
}

func (s *AgentStoreSuite) TestUpdate() {
	a := s.newAgent("marie@peche.gouv.fr")
	s.Require().NoError(s.store.Create(s.ctx, a))

	a.Status = models.StatusDisabled
	a.DisplayName = "Marie D."
	a.UpdatedAt = a.UpdatedAt.Add(time.Hour)
	s.Require().NoError(s.store.Update(s.ctx, a))

	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDisabled, found.Status)
	s.Equal("Marie D.", found.DisplayName)
}

func (s *AgentStoreSuite) TestUpdateUnknownAgent() {
	err := s.store.Update(s.ctx, s.newAgent("ghost@peche.gouv.fr"))
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *AgentStoreSuite) TestNotFound() {
	_, err := s.store.FindByID(s.ctx, id.NewAgentID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindByEmail(s.ctx, "nobody@peche.gouv.fr")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *AgentStoreSuite) TestLookupsReturnCopies() {
	a := s.newAgent("marie@peche.gouv.fr")
	s.Require().NoError(s.store.Create(s.ctx, a))

	found, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	found.Status = models.StatusDisabled

	again, err := s.store.FindByID(s.ctx, a.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, again.Status, "mutating a lookup result must not touch the stored row")
}

func (s *AgentStoreSuite) TestCount() {
	count, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)

	s.Require().NoError(s.store.Create(s.ctx, s.newAgent("a@peche.gouv.fr")))
	s.Require().NoError(s.store.Create(s.ctx, s.newAgent("b@peche.gouv.fr")))

	count, err = s.store.Count(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}
