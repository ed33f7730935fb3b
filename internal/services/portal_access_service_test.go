package services

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/clientdeck/clientdeck/internal/auth"
	"github.com/clientdeck/clientdeck/internal/database/testutil"
	"github.com/clientdeck/clientdeck/internal/models"
	"github.com/clientdeck/clientdeck/pkg/mail"
)

const testSessionSecret = "0123456789abcdef0123456789abcdef"

type recordingMailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *recordingMailer) sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

type portalFixture struct {
	db          *gorm.DB
	spaces      *SpaceService
	memberships *MembershipService
	tokens      *TokenService
	sessions    *auth.PortalSessionService
	mailer      *recordingMailer
	portal      *PortalAccessService
}

func newPortalFixture(t *testing.T, opts ...PortalAccessOption) *portalFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	spaces, err := NewSpaceService(db)
	require.NoError(t, err)
	memberships, err := NewMembershipService(db)
	require.NoError(t, err)
	tokens, err := NewTokenService(db)
	require.NoError(t, err)
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	sessions, err := auth.NewPortalSessionService(auth.PortalSessionConfig{
		Secret: testSessionSecret,
		Issuer: "clientdeck-test",
	})
	require.NoError(t, err)

	mailer := &recordingMailer{}

	base := []PortalAccessOption{
		WithAccessBaseURL("https://portal.example.com"),
		WithSynchronousDispatch(),
	}
	portal, err := NewPortalAccessService(
		spaces, memberships, tokens, sessions, audit, mailer,
		append(base, opts...)...,
	)
	require.NoError(t, err)

	return &portalFixture{
		db:          db,
		spaces:      spaces,
		memberships: memberships,
		tokens:      tokens,
		sessions:    sessions,
		mailer:      mailer,
		portal:      portal,
	}
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()

	parsed, err := url.Parse(link)
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)
	return token
}

func TestPortalAccessInviteAndRedeem(t *testing.T) {
	fx := newPortalFixture(t)
	ctx := context.Background()

	space, err := fx.spaces.Create(ctx, "Acme", "staff-1")
	require.NoError(t, err)
	_, err = fx.spaces.Transition(ctx, space.ID, models.SpaceStatusActive)
	require.NoError(t, err)

	result, err := fx.portal.Invite(ctx, space.ID, "Customer@Example.com", "staff-1")
	require.NoError(t, err)
	require.Equal(t, "customer@example.com", result.Membership.Email)
	require.Contains(t, result.Link, "https://portal.example.com/space/"+space.ID+"/access?token=")
	require.True(t, result.Dispatched)
	require.Len(t, fx.mailer.sent(), 1)
	require.Contains(t, fx.mailer.sent()[0].Body, result.Link)

	redemption, err := fx.portal.RedeemToken(ctx, space.ID, tokenFromLink(t, result.Link))
	require.NoError(t, err)
	require.Equal(t, "customer@example.com", redemption.Email)
	require.Equal(t, space.ID, redemption.SpaceID)

	claims, err := fx.sessions.Verify(redemption.Credential, space.ID)
	require.NoError(t, err)
	require.Equal(t, "customer@example.com", claims.Email)

	// Redemption stamps the join time.
	membership, err := fx.memberships.Get(ctx, space.ID, result.Membership.ID)
	require.NoError(t, err)
	require.NotNil(t, membership.JoinedAt)

	// The link is single use.
	_, err = fx.portal.RedeemToken(ctx, space.ID, tokenFromLink(t, result.Link))
	require.ErrorIs(t, err, ErrInvalidOrExpiredLink)
}

func TestPortalAccessInviteActivatesDraft(t *testing.T) {
	fx := newPortalFixture(t)
	ctx := context.Background()

	space, err := fx.spaces.Create(ctx, "Acme", "staff-1")
	require.NoError(t, err)
	require.Equal(t, models.SpaceStatusDraft, space.Status)

	_, err = fx.portal.Invite(ctx, space.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)

	space, err = fx.spaces.Get(ctx, space.ID)
	require.NoError(t, err)
	require.Equal(t, models.SpaceStatusActive, space.Status)
}

func TestPortalAccessInviteDuplicate(t *testing.T) {
	fx := newPortalFixture(t)
	ctx := context.Background()

	space, err := fx.spaces.Create(ctx, "Acme", "staff-1")
	require.NoError(t, err)

	_, err = fx.portal.Invite(ctx, space.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)

	_, err = fx.portal.Invite(ctx, space.ID, "customer@example.com", "staff-1")
	require.ErrorIs(t, err, ErrDuplicateMembership)
}

func TestPortalAccessRedeemDraftReportsNotReady(t *testing.T) {
	fx := newPortalFixture(t)
	ctx := context.Background()

	space, err := fx.spaces.Create(ctx, "Acme", "staff-1")
	require.NoError(t, err)

	// Token issued out of band while the space is still draft.
	token, err := fx.tokens.Issue(ctx, space.ID, "customer@example.com", time.Hour)
	require.NoError(t, err)

	_, err = fx.portal.RedeemToken(ctx, space.ID, token)
	require.ErrorIs(t, err, ErrPortalNotReady)
}

func TestPortalAccessRedeemArchivedDoesNotConsumeToken(t *testing.T) {
	fx := newPortalFixture(t)
	ctx := context.Background()

	space, err := fx.spaces.Create(ctx, "Acme", "staff-1")
	require.NoError(t, err)
	_, err = fx.spaces.Transition(ctx, space.ID, models.SpaceStatusActive)
	require.NoError(t, err)

	result, err := fx.portal.Invite(ctx, space.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)

	_, err = fx.spaces.Transition(ctx, space.ID, models.SpaceStatusArchived)
	require.NoError(t, err)

	// The archived gate runs before token validation and takes precedence
	// even over an expired token.
	_, err = fx.portal.RedeemToken(ctx, space.ID, tokenFromLink(t, result.Link))
	require.ErrorIs(t, err, ErrPortalArchived)

	var record models.PortalToken
	require.NoError(t, fx.db.Where("space_id = ?", space.ID).First(&record).Error)
	require.Nil(t, record.UsedAt)
}

func TestPortalAccessRedeemUnknownSpace(t *testing.T) {
	fx := newPortalFixture(t)

	_, err := fx.portal.RedeemToken(context.Background(),
		"00000000-0000-0000-0000-000000000000", "some-token")
	require.ErrorIs(t, err, ErrInvalidOrExpiredLink)
}

func TestPortalAccessResendCoexistsWithOriginal(t *testing.T) {
	fx := newPortalFixture(t)
	ctx := context.Background()

	space, err := fx.spaces.Create(ctx, "Acme", "staff-1")
	require.NoError(t, err)

	result, err := fx.portal.Invite(ctx, space.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)

	resent, err := fx.portal.ResendInvite(ctx, space.ID, result.Membership.ID)
	require.NoError(t, err)
	require.NotEqual(t, result.Link, resent)

	// The original link keeps working after the resend.
	_, err = fx.portal.RedeemToken(ctx, space.ID, tokenFromLink(t, result.Link))
	require.NoError(t, err)
	_, err = fx.portal.RedeemToken(ctx, space.ID, tokenFromLink(t, resent))
	require.NoError(t, err)
}

func TestPortalAccessRequestUnknownEmailIssuesNothing(t *testing.T) {
	fx := newPortalFixture(t)
	ctx := context.Background()

	space, err := fx.spaces.Create(ctx, "Acme", "staff-1")
	require.NoError(t, err)
	_, err = fx.spaces.Transition(ctx, space.ID, models.SpaceStatusActive)
	require.NoError(t, err)

	require.NoError(t, fx.portal.RequestAccess(ctx, space.ID, "stranger@example.com"))

	var count int64
	require.NoError(t, fx.db.Model(&models.PortalToken{}).Count(&count).Error)
	require.Zero(t, count)
	require.Empty(t, fx.mailer.sent())
}

func TestPortalAccessRequestApprovedEmailSendsFreshLink(t *testing.T) {
	fx := newPortalFixture(t)
	ctx := context.Background()

	space, err := fx.spaces.Create(ctx, "Acme", "staff-1")
	require.NoError(t, err)

	_, err = fx.portal.Invite(ctx, space.ID, "customer@example.com", "staff-1")
	require.NoError(t, err)

	require.NoError(t, fx.portal.RequestAccess(ctx, space.ID, "CUSTOMER@example.com"))

	var count int64
	require.NoError(t, fx.db.Model(&models.PortalToken{}).Count(&count).Error)
	require.Equal(t, int64(2), count)

	messages := fx.mailer.sent()
	require.Len(t, messages, 2)
	require.Equal(t, []string{"customer@example.com"}, messages[1].To)
	require.Contains(t, messages[1].Body, "https://portal.example.com/space/"+space.ID+"/access?token=")
}
