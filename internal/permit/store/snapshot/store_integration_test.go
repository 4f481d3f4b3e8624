//go:build integration

package snapshot_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"permis/internal/permit/models"
	"permis/internal/permit/store/snapshot"
	id "permis/pkg/domain"
	"permis/pkg/platform/sentinel"
	"permis/pkg/testutil/containers"
)

type SnapshotStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *snapshot.Store
}

func TestSnapshotStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SnapshotStoreSuite))
}

func (s *SnapshotStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = snapshot.New(s.redis.Client, time.Hour)
}

func (s *SnapshotStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.redis.FlushAll(ctx)
	s.Require().NoError(err)
}

func cachedPermit(sequence int) models.Permit {
	now := time.Now().UTC().Truncate(time.Second)
	return models.Permit{
		ID:             id.NewPermitID(),
		SerialNumber:   id.FormatSerialNumber(2026, sequence),
		HolderName:     "Marie Dubois",
		Type:           id.PermitTypeRecreational,
		Zone:           id.ZoneCoastal,
		Species:        []string{"trout", "pike"},
		IssuedBy:       id.NewAgentID(),
		DateIssued:     now.AddDate(0, -1, 0),
		DateExpiration: now.AddDate(1, 0, 0),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (s *SnapshotStoreSuite) TestPutThenGetRoundTrip() {
	ctx := context.Background()
	takenAt := time.Now().UTC().Truncate(time.Second)
	permits := []models.Permit{cachedPermit(1), cachedPermit(2)}

	err := s.store.Put(ctx, snapshot.Snapshot{TakenAt: takenAt, Permits: permits})
	s.Require().NoError(err)

	got, err := s.store.Get(ctx)
	s.Require().NoError(err)
	s.True(takenAt.Equal(got.TakenAt))
	s.Require().Len(got.Permits, 2)
	s.Equal(permits[0].ID, got.Permits[0].ID)
	s.Equal(permits[0].SerialNumber, got.Permits[0].SerialNumber)
	s.Equal(permits[0].Species, got.Permits[0].Species)
	s.Equal(id.ZoneCoastal, got.Permits[0].Zone)
}

func (s *SnapshotStoreSuite) TestGetWithoutSnapshot() {
	ctx := context.Background()

	_, err := s.store.Get(ctx)

	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SnapshotStoreSuite) TestFindByID() {
	ctx := context.Background()
	target := cachedPermit(1)
	other := cachedPermit(2)
	err := s.store.Put(ctx, snapshot.Snapshot{
		TakenAt: time.Now().UTC(),
		Permits: []models.Permit{other, target},
	})
	s.Require().NoError(err)

	got, err := s.store.FindByID(ctx, target.ID)
	s.Require().NoError(err)
	s.Equal(target.ID, got.ID)
	s.Equal(target.HolderName, got.HolderName)

	_, err = s.store.FindByID(ctx, id.NewPermitID())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SnapshotStoreSuite) TestFindByIDWithoutSnapshot() {
	ctx := context.Background()

	_, err := s.store.FindByID(ctx, id.NewPermitID())

	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SnapshotStoreSuite) TestPutReplacesPreviousSnapshot() {
	ctx := context.Background()
	stale := cachedPermit(1)
	err := s.store.Put(ctx, snapshot.Snapshot{
		TakenAt: time.Now().UTC().Add(-time.Hour),
		Permits: []models.Permit{stale},
	})
	s.Require().NoError(err)

	fresh := cachedPermit(2)
	err = s.store.Put(ctx, snapshot.Snapshot{
		TakenAt: time.Now().UTC(),
		Permits: []models.Permit{fresh},
	})
	s.Require().NoError(err)

	got, err := s.store.Get(ctx)
	s.Require().NoError(err)
	s.Require().Len(got.Permits, 1)
	s.Equal(fresh.ID, got.Permits[0].ID)

	_, err = s.store.FindByID(ctx, stale.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SnapshotStoreSuite) TestTTLExpiresSnapshot() {
	ctx := context.Background()
	shortLived := snapshot.New(s.redis.Client, 100*time.Millisecond)

	err := shortLived.Put(ctx, snapshot.Snapshot{
		TakenAt: time.Now().UTC(),
		Permits: []models.Permit{cachedPermit(1)},
	})
	s.Require().NoError(err)

	_, err = shortLived.Get(ctx)
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		_, err := shortLived.Get(ctx)
		return err != nil
	}, 2*time.Second, 50*time.Millisecond, "snapshot should expire")

	_, err = shortLived.Get(ctx)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SnapshotStoreSuite) TestAge() {
	ctx := context.Background()
	takenAt := time.Now().UTC().Add(-30 * time.Minute)
	err := s.store.Put(ctx, snapshot.Snapshot{TakenAt: takenAt, Permits: nil})
	s.Require().NoError(err)

	age, err := s.store.Age(ctx, time.Now().UTC())
	s.Require().NoError(err)
	s.InDelta((30 * time.Minute).Seconds(), age.Seconds(), 5)
}

// TestRefresherFillsCache drives the refresher against the real store.
func (s *SnapshotStoreSuite) TestRefresherFillsCache() {
	ctx := context.Background()
	permits := []models.Permit{cachedPermit(1), cachedPermit(2), cachedPermit(3)}
	r := snapshot.NewRefresher(staticSource(permits), s.store)

	err := r.RefreshOnce(ctx)
	s.Require().NoError(err)

	got, err := s.store.Get(ctx)
	s.Require().NoError(err)
	s.Len(got.Permits, 3)
	s.WithinDuration(time.Now(), got.TakenAt, 5*time.Second)
}

type staticSource []models.Permit

func (s staticSource) Snapshot(context.Context) ([]models.Permit, error) {
	return s, nil
}
