package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clientdeck/clientdeck/internal/database/testutil"
	"github.com/clientdeck/clientdeck/internal/models"
)

func createTestSpace(t *testing.T, db *gorm.DB, status models.SpaceStatus) *models.Space {
	t.Helper()

	space := models.Space{
		Name:       "Acme Onboarding",
		Status:     status,
		AccessMode: models.SpaceAccessPublic,
	}
	require.NoError(t, db.Create(&space).Error)
	return &space
}

func TestTokenServiceIssueAndRedeem(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	space := createTestSpace(t, db, models.SpaceStatusActive)

	svc, err := NewTokenService(db)
	require.NoError(t, err)

	ctx := context.Background()
	token, err := svc.Issue(ctx, space.ID, "Customer@Example.com", time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	// Only the digest is stored, never the raw token.
	var record models.PortalToken
	require.NoError(t, db.First(&record).Error)
	require.NotEqual(t, token, record.TokenDigest)
	require.Equal(t, "customer@example.com", record.Email)

	email, err := svc.Redeem(ctx, space.ID, token)
	require.NoError(t, err)
	require.Equal(t, "customer@example.com", email)

	// Single use: the second attempt observes the same failure as any other
	// invalid token.
	_, err = svc.Redeem(ctx, space.ID, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenServiceRedeemExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	space := createTestSpace(t, db, models.SpaceStatusActive)

	current := time.Now()
	svc, err := NewTokenService(db, WithTokenClock(func() time.Time { return current }))
	require.NoError(t, err)

	ctx := context.Background()
	token, err := svc.Issue(ctx, space.ID, "customer@example.com", time.Hour)
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)

	_, err = svc.Redeem(ctx, space.ID, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestTokenServiceRedeemWrongSpace(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	spaceA := createTestSpace(t, db, models.SpaceStatusActive)
	spaceB := createTestSpace(t, db, models.SpaceStatusActive)

	svc, err := NewTokenService(db)
	require.NoError(t, err)

	ctx := context.Background()
	token, err := svc.Issue(ctx, spaceA.ID, "customer@example.com", time.Hour)
	require.NoError(t, err)

	_, err = svc.Redeem(ctx, spaceB.ID, token)
	require.ErrorIs(t, err, ErrTokenInvalid)

	// The failed attempt on the wrong space must not consume the token.
	email, err := svc.Redeem(ctx, spaceA.ID, token)
	require.NoError(t, err)
	require.Equal(t, "customer@example.com", email)
}

func TestTokenServiceCoexistingTokens(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	space := createTestSpace(t, db, models.SpaceStatusActive)

	svc, err := NewTokenService(db)
	require.NoError(t, err)

	ctx := context.Background()
	first, err := svc.Issue(ctx, space.ID, "customer@example.com", time.Hour)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, space.ID, "customer@example.com", time.Hour)
	require.NoError(t, err)

	// A resend does not invalidate the earlier link.
	_, err = svc.Redeem(ctx, space.ID, first)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, space.ID, second)
	require.NoError(t, err)
}

func TestTokenServiceConcurrentRedeem(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	space := createTestSpace(t, db, models.SpaceStatusActive)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	svc, err := NewTokenService(db)
	require.NoError(t, err)

	ctx := context.Background()
	token, err := svc.Issue(ctx, space.ID, "customer@example.com", time.Hour)
	require.NoError(t, err)

	const attempts = 8

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Redeem(ctx, space.ID, token)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, invalid int
	for err := range results {
		switch {
		case err == nil:
			successes++
		default:
			require.ErrorIs(t, err, ErrTokenInvalid)
			invalid++
		}
	}

	require.Equal(t, 1, successes)
	require.Equal(t, attempts-1, invalid)
}

func TestTokenServiceCleanupExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	space := createTestSpace(t, db, models.SpaceStatusActive)

	current := time.Now()
	svc, err := NewTokenService(db, WithTokenClock(func() time.Time { return current }))
	require.NoError(t, err)

	ctx := context.Background()

	_, err = svc.Issue(ctx, space.ID, "expired@example.com", time.Minute)
	require.NoError(t, err)

	used, err := svc.Issue(ctx, space.ID, "used@example.com", time.Hour)
	require.NoError(t, err)
	_, err = svc.Redeem(ctx, space.ID, used)
	require.NoError(t, err)

	_, err = svc.Issue(ctx, space.ID, "live@example.com", time.Hour)
	require.NoError(t, err)

	current = current.Add(30 * time.Minute)

	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	var remaining int64
	require.NoError(t, db.Model(&models.PortalToken{}).Count(&remaining).Error)
	require.Equal(t, int64(1), remaining)
}
