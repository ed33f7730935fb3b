package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clientdeck/clientdeck/internal/database/testutil"
	"github.com/clientdeck/clientdeck/internal/models"
)

func TestMembershipServiceApproveNormalisesAndRejectsDuplicates(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	space := createTestSpace(t, db, models.SpaceStatusActive)

	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	ctx := context.Background()
	membership, err := svc.Approve(ctx, space.ID, "  Customer@Example.COM ", "staff-1")
	require.NoError(t, err)
	require.Equal(t, "customer@example.com", membership.Email)
	require.Equal(t, models.MembershipRoleCustomer, membership.Role)
	require.Nil(t, membership.JoinedAt)

	// Same email in any casing is the same membership.
	_, err = svc.Approve(ctx, space.ID, "customer@example.com", "staff-2")
	require.ErrorIs(t, err, ErrDuplicateMembership)

	// Different space is fine.
	other := createTestSpace(t, db, models.SpaceStatusActive)
	_, err = svc.Approve(ctx, other.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)
}

func TestMembershipServiceIsApproved(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	space := createTestSpace(t, db, models.SpaceStatusActive)

	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	ctx := context.Background()
	approved, err := svc.IsApproved(ctx, space.ID, "nobody@example.com")
	require.NoError(t, err)
	require.False(t, approved)

	_, err = svc.Approve(ctx, space.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)

	approved, err = svc.IsApproved(ctx, space.ID, "CUSTOMER@example.com")
	require.NoError(t, err)
	require.True(t, approved)
}

func TestMembershipServiceMarkJoinedIsIdempotent(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	space := createTestSpace(t, db, models.SpaceStatusActive)

	current := time.Now()
	svc, err := NewMembershipService(db, WithMembershipClock(func() time.Time { return current }))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Approve(ctx, space.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)

	require.NoError(t, svc.MarkJoined(ctx, space.ID, "customer@example.com"))

	var membership models.SpaceMembership
	require.NoError(t, db.Where("space_id = ?", space.ID).First(&membership).Error)
	require.NotNil(t, membership.JoinedAt)
	firstJoin := *membership.JoinedAt

	// Later redemptions must not move the original join timestamp.
	current = current.Add(time.Hour)
	require.NoError(t, svc.MarkJoined(ctx, space.ID, "customer@example.com"))

	require.NoError(t, db.Where("space_id = ?", space.ID).First(&membership).Error)
	require.NotNil(t, membership.JoinedAt)
	require.True(t, membership.JoinedAt.Equal(firstJoin))
}

func TestMembershipServiceRevoke(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	space := createTestSpace(t, db, models.SpaceStatusActive)

	svc, err := NewMembershipService(db)
	require.NoError(t, err)

	ctx := context.Background()
	membership, err := svc.Approve(ctx, space.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, space.ID, membership.ID))

	approved, err := svc.IsApproved(ctx, space.ID, "customer@example.com")
	require.NoError(t, err)
	require.False(t, approved)

	// Revoking again reports not found.
	require.ErrorIs(t, svc.Revoke(ctx, space.ID, membership.ID), ErrMembershipNotFound)

	// The delete frees the email for immediate re-invitation.
	_, err = svc.Approve(ctx, space.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)
}

func TestMembershipServiceList(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	space := createTestSpace(t, db, models.SpaceStatusActive)

	current := time.Now()
	svc, err := NewMembershipService(db, WithMembershipClock(func() time.Time { return current }))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Approve(ctx, space.ID, "first@example.com", "staff-1")
	require.NoError(t, err)

	current = current.Add(time.Minute)
	_, err = svc.Approve(ctx, space.ID, "second@example.com", "staff-1")
	require.NoError(t, err)

	memberships, err := svc.List(ctx, space.ID)
	require.NoError(t, err)
	require.Len(t, memberships, 2)
	require.Equal(t, "second@example.com", memberships[0].Email)
}
