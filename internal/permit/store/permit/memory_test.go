package permit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"permis/internal/permit/models"
	id "permis/pkg/domain"
	"permis/pkg/platform/sentinel"
)

type PermitStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
}

func (s *PermitStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func TestPermitStoreSuite(t *testing.T) {
	suite.Run(t, new(PermitStoreSuite))
}

func (s *PermitStoreSuite) newPermit(serial string) *models.Permit {
	now := time.Now()
	return &models.Permit{
		ID:             id.NewPermitID(),
		SerialNumber:   id.SerialNumber(serial),
		HolderName:     "Jordan Reyes",
		Type:           id.PermitTypeRecreational,
		Zone:           id.ZoneCoastal,
		Species:        []string{"trout", "bass"},
		IssuedBy:       id.NewAgentID(),
		DateIssued:     now,
		DateExpiration: now.Add(365 * 24 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TestCreationAndLookups verifies the store correctly creates and retrieves permits.
func (s *PermitStoreSuite) TestCreationAndLookups() {
	s.Run("creates and finds permit by ID", func() {
		p := s.newPermit("PF-2026-00100")
		s.Require().NoError(s.store.CreateWithKey(s.ctx, p, "key-1", "fp-1"))

		found, err := s.store.FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(p.SerialNumber, found.SerialNumber)
		s.Equal(p.Species, found.Species)
	})

	s.Run("finds permit by serial", func() {
		p := s.newPermit("PF-2026-00101")
		s.Require().NoError(s.store.CreateWithKey(s.ctx, p, "key-2", "fp-2"))

		found, err := s.store.FindBySerial(s.ctx, p.SerialNumber)
		s.Require().NoError(err)
		s.Equal(p.ID, found.ID)
	})

	s.Run("finds permit by idempotency key with its fingerprint", func() {
		p := s.newPermit("PF-2026-00102")
		s.Require().NoError(s.store.CreateWithKey(s.ctx, p, "key-3", "fp-3"))

		found, fingerprint, err := s.store.FindByKey(s.ctx, "key-3")
		s.Require().NoError(err)
		s.Equal(p.ID, found.ID)
		s.Equal("fp-3", fingerprint)
	})

	s.Run("returns ErrNotFound for unknown ID", func() {
		_, err := s.store.FindByID(s.ctx, id.NewPermitID())
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns ErrNotFound for unknown key", func() {
		_, _, err := s.store.FindByKey(s.ctx, "never-used")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestUniqueness verifies key and serial uniqueness sentinels.
func (s *PermitStoreSuite) TestUniqueness() {
	s.Run("rejects committed idempotency key", func() {
		p1 := s.newPermit("PF-2026-00110")
		s.Require().NoError(s.store.CreateWithKey(s.ctx, p1, "shared-key", "fp-a"))

		p2 := s.newPermit("PF-2026-00111")
		err := s.store.CreateWithKey(s.ctx, p2, "shared-key", "fp-b")
		s.Require().ErrorIs(err, sentinel.ErrDuplicateKey)
	})

	s.Run("rejects taken serial number", func() {
		p1 := s.newPermit("PF-2026-00112")
		s.Require().NoError(s.store.CreateWithKey(s.ctx, p1, "key-a", "fp-a"))

		p2 := s.newPermit("PF-2026-00112")
		err := s.store.CreateWithKey(s.ctx, p2, "key-b", "fp-b")
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("failed create does not commit the key", func() {
		p1 := s.newPermit("PF-2026-00113")
		s.Require().NoError(s.store.CreateWithKey(s.ctx, p1, "key-c", "fp-a"))

		p2 := s.newPermit("PF-2026-00113")
		s.Require().Error(s.store.CreateWithKey(s.ctx, p2, "key-d", "fp-b"))

		_, _, err := s.store.FindByKey(s.ctx, "key-d")
		s.Require().ErrorIs(err, sentinel.ErrNotFound)
	})
}

// TestListUnexpired verifies the snapshot source filters by validity window.
func (s *PermitStoreSuite) TestListUnexpired() {
	now := time.Now()

	current := s.newPermit("PF-2026-00121")
	s.Require().NoError(s.store.CreateWithKey(s.ctx, current, "key-current", "fp-1"))

	expired := s.newPermit("PF-2024-00120")
	expired.DateIssued = now.Add(-2 * 365 * 24 * time.Hour)
	expired.DateExpiration = now.Add(-365 * 24 * time.Hour)
	s.Require().NoError(s.store.CreateWithKey(s.ctx, expired, "key-expired", "fp-2"))

	atBoundary := s.newPermit("PF-2026-00122")
	atBoundary.DateExpiration = now
	s.Require().NoError(s.store.CreateWithKey(s.ctx, atBoundary, "key-boundary", "fp-3"))

	permits, err := s.store.ListUnexpired(s.ctx, now)
	s.Require().NoError(err)

	serials := make([]string, 0, len(permits))
	for _, p := range permits {
		serials = append(serials, string(p.SerialNumber))
	}
	s.Equal([]string{"PF-2026-00121", "PF-2026-00122"}, serials, "expired permits are excluded, expiring-now is kept, order is by serial")
}

// TestCloneIsolation verifies returned permits cannot mutate store state.
func (s *PermitStoreSuite) TestCloneIsolation() {
	p := s.newPermit("PF-2026-00130")
	s.Require().NoError(s.store.CreateWithKey(s.ctx, p, "key-iso", "fp"))

	found, err := s.store.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	found.HolderName = "mutated"
	found.Species[0] = "mutated"

	again, err := s.store.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("Jordan Reyes", again.HolderName)
	s.Equal("trout", again.Species[0])
}
