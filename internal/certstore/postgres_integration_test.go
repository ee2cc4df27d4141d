//go:build integration

package certstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certgate/internal/certstore"
	"certgate/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *certstore.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = certstore.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "certificates", "certificate_serials")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) TestPersistRoundTrip() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := testRecord("98765", "fp-pg", now)

	s.Require().NoError(s.store.Persist(ctx, rec))

	found, err := s.store.BySerial(ctx, "98765")
	s.Require().NoError(err)
	s.Equal(rec.Fingerprint, found.Fingerprint)
	s.Equal(rec.Issuer, found.Issuer)
	s.Equal(rec.Policy, found.Policy)
	s.True(found.IssuedAt.Equal(rec.IssuedAt))
	s.Nil(found.RevokedAt)

	byFP, err := s.store.ByFingerprint(ctx, "fp-pg")
	s.Require().NoError(err)
	s.Equal(rec.Serial, byFP.Serial)
}

func (s *PostgresStoreSuite) TestDuplicateSerial() {
	ctx := context.Background()
	now := time.Now().UTC()

	s.Require().NoError(s.store.Persist(ctx, testRecord("1111", "fp-a", now)))
	err := s.store.Persist(ctx, testRecord("1111", "fp-b", now))
	s.ErrorIs(err, certstore.ErrDuplicateSerial)
}

func (s *PostgresStoreSuite) TestLookupMissing() {
	ctx := context.Background()
	_, err := s.store.BySerial(ctx, "absent")
	s.ErrorIs(err, certstore.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRevokeKeepsFirstTimestamp() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.Persist(ctx, testRecord("2222", "fp-rev", now)))

	first := now.Add(time.Hour)
	s.Require().NoError(s.store.Revoke(ctx, "2222", first))
	s.Require().NoError(s.store.Revoke(ctx, "2222", first.Add(time.Hour)))

	rec, err := s.store.BySerial(ctx, "2222")
	s.Require().NoError(err)
	s.Require().NotNil(rec.RevokedAt)
	s.True(rec.RevokedAt.Equal(first))
}

func (s *PostgresStoreSuite) TestRevokeMissing() {
	err := s.store.Revoke(context.Background(), "absent", time.Now())
	s.ErrorIs(err, certstore.ErrNotFound)
}

// TestConcurrentReserveSerial verifies the ON CONFLICT retry loop hands
// out distinct serials under contention.
func (s *PostgresStoreSuite) TestConcurrentReserveSerial() {
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serial, err := s.store.ReserveSerial(ctx)
			s.Require().NoError(err)
			mu.Lock()
			defer mu.Unlock()
			seen[serial.String()] = true
		}()
	}
	wg.Wait()
	s.Len(seen, goroutines)
}
