//go:build integration

package permit_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"permis/internal/permit/models"
	permitstore "permis/internal/permit/store/permit"
	id "permis/pkg/domain"
	"permis/pkg/platform/sentinel"
	"permis/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *permitstore.PostgresStore
}

// testAgentID satisfies the issued_by foreign key; the matching agent row is
// seeded once per suite.
var testAgentID = id.NewAgentID()

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = permitstore.NewPostgres(s.postgres.Pool)

	_, err := s.postgres.Exec(context.Background(),
		`INSERT INTO agents (id, email, password_hash, display_name)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		uuid.UUID(testAgentID),
		fmt.Sprintf("issuer-%s@permis.test", testAgentID),
		"not-a-real-hash",
		"Seeded Issuer",
	)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	// Truncate in dependency order
	err := s.postgres.TruncateTables(ctx, "permit_idempotency", "permits")
	s.Require().NoError(err)
}

func newTestPermit(serial string) *models.Permit {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Permit{
		ID:             id.NewPermitID(),
		SerialNumber:   id.SerialNumber(serial),
		HolderName:     "Jordan Reyes",
		Type:           id.PermitTypeRecreational,
		Zone:           id.ZoneCoastal,
		Species:        []string{"trout", "bass"},
		IssuedBy:       testAgentID,
		DateIssued:     now,
		DateExpiration: now.Add(365 * 24 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TestRoundTrip verifies a permit survives the store intact, including the
// species array and typed columns.
func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	p := newTestPermit("PF-2026-00300")
	s.Require().NoError(s.store.CreateWithKey(ctx, p, "rt-key", "rt-fp"))

	found, err := s.store.FindByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.SerialNumber, found.SerialNumber)
	s.Equal(p.HolderName, found.HolderName)
	s.Equal(p.Type, found.Type)
	s.Equal(p.Zone, found.Zone)
	s.Equal(p.Species, found.Species)
	s.Equal(p.IssuedBy, found.IssuedBy)
	s.WithinDuration(p.DateExpiration, found.DateExpiration, time.Millisecond)

	bySerial, err := s.store.FindBySerial(ctx, p.SerialNumber)
	s.Require().NoError(err)
	s.Equal(p.ID, bySerial.ID)

	byKey, fingerprint, err := s.store.FindByKey(ctx, "rt-key")
	s.Require().NoError(err)
	s.Equal(p.ID, byKey.ID)
	s.Equal("rt-fp", fingerprint)
}

// TestConcurrentSameSerial verifies that concurrent submissions of the same
// serial number commit exactly once.
func (s *PostgresStoreSuite) TestConcurrentSameSerial() {
	ctx := context.Background()
	serial := "PF-2026-00310"
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var conflictCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			p := newTestPermit(serial)
			err := s.store.CreateWithKey(ctx, p, fmt.Sprintf("concurrent-key-%d", idx), "same-content")
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrAlreadyUsed) {
				conflictCount.Add(1)
			}
		}(i)
	}

	wg.Wait()

	// Exactly one should succeed
	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), conflictCount.Load(), "all others should get the serial conflict sentinel")

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

// TestConcurrentSameKey verifies a shared idempotency key commits exactly once.
func (s *PostgresStoreSuite) TestConcurrentSameKey() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var successCount atomic.Int32
	var rejectedCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			p := newTestPermit(fmt.Sprintf("PF-2026-%05d", 400+idx))
			err := s.store.CreateWithKey(ctx, p, "shared-key", "fp")
			if err == nil {
				successCount.Add(1)
			} else if errors.Is(err, sentinel.ErrDuplicateKey) {
				rejectedCount.Add(1)
			}
		}(i)
	}

	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), rejectedCount.Load(), "all others should get the duplicate key sentinel")
}

// TestConcurrentDistinctPermits verifies independent submissions do not
// interfere.
func (s *PostgresStoreSuite) TestConcurrentDistinctPermits() {
	ctx := context.Background()
	const goroutines = 50

	var wg sync.WaitGroup
	var errCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			p := newTestPermit(fmt.Sprintf("PF-2026-%05d", 500+idx))
			if err := s.store.CreateWithKey(ctx, p, uuid.NewString(), "fp"); err != nil {
				errCount.Add(1)
			}
		}(i)
	}

	wg.Wait()

	s.Equal(int32(0), errCount.Load(), "no errors expected for distinct serials and keys")

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(goroutines, count)
}

// TestListUnexpired verifies snapshot filtering against real timestamps.
func (s *PostgresStoreSuite) TestListUnexpired() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	expired := newTestPermit("PF-2024-00600")
	expired.DateIssued = now.Add(-2 * 365 * 24 * time.Hour)
	expired.DateExpiration = now.Add(-365 * 24 * time.Hour)
	s.Require().NoError(s.store.CreateWithKey(ctx, expired, "lu-key-1", "fp"))

	current := newTestPermit("PF-2026-00601")
	s.Require().NoError(s.store.CreateWithKey(ctx, current, "lu-key-2", "fp"))

	permits, err := s.store.ListUnexpired(ctx, now)
	s.Require().NoError(err)
	s.Require().Len(permits, 1)
	s.Equal(current.ID, permits[0].ID)
}

// TestNotFound verifies sentinel translation for missing rows.
func (s *PostgresStoreSuite) TestNotFound() {
	ctx := context.Background()

	_, err := s.store.FindByID(ctx, id.NewPermitID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.FindBySerial(ctx, id.SerialNumber("PF-2099-99999"))
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, _, err = s.store.FindByKey(ctx, "never-committed")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
