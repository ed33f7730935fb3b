package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/clientdeck/clientdeck/internal/auth"
	"github.com/clientdeck/clientdeck/internal/models"
	"github.com/clientdeck/clientdeck/pkg/logger"
	"github.com/clientdeck/clientdeck/pkg/mail"
	"github.com/clientdeck/clientdeck/pkg/metrics"
)

// Redemption failures surfaced to customers. The space-status errors take
// precedence over token validation: an archived space reports archived even
// when the presented token is long expired.
var (
	ErrPortalNotReady       = errors.New("portal: space not ready")
	ErrPortalArchived       = errors.New("portal: space archived")
	ErrInvalidOrExpiredLink = errors.New("portal: invalid or expired link")
)

// PortalAccessOption customises PortalAccessService behaviour.
type PortalAccessOption func(*PortalAccessService)

// WithAccessBaseURL configures the base URL used to build emailed access links.
func WithAccessBaseURL(base string) PortalAccessOption {
	return func(s *PortalAccessService) {
		s.baseURL = strings.TrimRight(base, "/")
	}
}

// WithAccessTokenTTL overrides the access-link lifetime.
func WithAccessTokenTTL(d time.Duration) PortalAccessOption {
	return func(s *PortalAccessService) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

// WithSynchronousDispatch makes RequestAccess issue and send inline instead of
// in the background. Used by tests that assert on issued tokens.
func WithSynchronousDispatch() PortalAccessOption {
	return func(s *PortalAccessService) {
		s.syncDispatch = true
	}
}

// PortalAccessService orchestrates the three customer-facing operations:
// staff invitation, token redemption, and self-service link re-request.
type PortalAccessService struct {
	spaces       *SpaceService
	memberships  *MembershipService
	tokens       *TokenService
	sessions     *auth.PortalSessionService
	audit        *AuditService
	mailer       mail.Mailer
	baseURL      string
	tokenTTL     time.Duration
	syncDispatch bool
	log          *zap.Logger
}

// NewPortalAccessService wires the coordinator from its collaborators.
// The mailer may be nil; dispatch is then skipped and the link is only
// returned to staff.
func NewPortalAccessService(
	spaces *SpaceService,
	memberships *MembershipService,
	tokens *TokenService,
	sessions *auth.PortalSessionService,
	audit *AuditService,
	mailer mail.Mailer,
	opts ...PortalAccessOption,
) (*PortalAccessService, error) {
	if spaces == nil || memberships == nil || tokens == nil || sessions == nil {
		return nil, errors.New("portal access service: spaces, memberships, tokens and sessions are required")
	}

	service := &PortalAccessService{
		spaces:      spaces,
		memberships: memberships,
		tokens:      tokens,
		sessions:    sessions,
		audit:       audit,
		mailer:      mailer,
		tokenTTL:    DefaultTokenTTL,
		log:         logger.WithModule("portal"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// InviteResult reports the outcome of a staff invitation.
type InviteResult struct {
	Membership *models.SpaceMembership
	Link       string
	Dispatched bool
}

// Invite approves an email for a space and issues its first access link.
// Membership approval and token issuance must both succeed; everything after
// that (draft activation, email dispatch) is best-effort and logged, never
// rolled back. The operator re-sends manually when dispatch fails.
func (s *PortalAccessService) Invite(ctx context.Context, spaceID, email, invitedBy string) (*InviteResult, error) {
	space, err := s.spaces.Get(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	membership, err := s.memberships.Approve(ctx, space.ID, email, invitedBy)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(ctx, space.ID, membership.Email, s.tokenTTL)
	if err != nil {
		return nil, err
	}

	if space.Status == models.SpaceStatusDraft {
		if err := s.spaces.ActivateIfDraft(ctx, space.ID); err != nil {
			s.log.Warn("draft activation failed",
				zap.String("space_id", space.ID),
				zap.Error(err),
			)
		}
	}

	link := s.accessLink(space.ID, token)
	dispatched := s.dispatchLink(ctx, space, membership.Email, link)

	metrics.InvitesIssued.Inc()
	if s.audit != nil {
		s.audit.Record(ctx, space.ID, invitedBy, AuditActionCustomerInvited, membership.Email)
	}

	return &InviteResult{
		Membership: membership,
		Link:       link,
		Dispatched: dispatched,
	}, nil
}

// Redemption is the outcome of a successful token exchange: a minted session
// credential the handler must place in the space-scoped cookie before
// redirecting to the portal.
type Redemption struct {
	Email      string
	SpaceID    string
	Credential string
}

// RedeemToken exchanges a single-use token for a portal session. The space
// lifecycle gate runs before token validation, so a dead space never reveals
// anything about the token, and the token is not consumed.
func (s *PortalAccessService) RedeemToken(ctx context.Context, spaceID, token string) (*Redemption, error) {
	space, err := s.spaces.Get(ctx, spaceID)
	if err != nil {
		if errors.Is(err, ErrSpaceNotFound) {
			metrics.TokenRedemptions.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidOrExpiredLink
		}
		return nil, err
	}

	switch space.Status {
	case models.SpaceStatusDraft:
		metrics.TokenRedemptions.WithLabelValues("not_ready").Inc()
		if s.audit != nil {
			s.audit.Record(ctx, space.ID, "", AuditActionAccessDenied, "space in draft")
		}
		return nil, ErrPortalNotReady
	case models.SpaceStatusArchived:
		metrics.TokenRedemptions.WithLabelValues("archived").Inc()
		if s.audit != nil {
			s.audit.Record(ctx, space.ID, "", AuditActionAccessDenied, "space archived")
		}
		return nil, ErrPortalArchived
	}

	email, err := s.tokens.Redeem(ctx, space.ID, token)
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			metrics.TokenRedemptions.WithLabelValues("invalid").Inc()
			return nil, ErrInvalidOrExpiredLink
		}
		return nil, err
	}

	if err := s.memberships.MarkJoined(ctx, space.ID, email); err != nil {
		// The token is already consumed; losing the join timestamp is
		// preferable to refusing a customer holding a valid link.
		s.log.Warn("mark joined failed",
			zap.String("space_id", space.ID),
			zap.Error(err),
		)
	}

	credential, err := s.sessions.Mint(space.ID, email)
	if err != nil {
		return nil, fmt.Errorf("portal access: mint session: %w", err)
	}

	metrics.TokenRedemptions.WithLabelValues("success").Inc()
	if s.audit != nil {
		s.audit.Record(ctx, space.ID, email, AuditActionCustomerJoined, "")
	}

	return &Redemption{
		Email:      email,
		SpaceID:    space.ID,
		Credential: credential,
	}, nil
}

// RequestAccess handles the self-service "resend my link" flow. The caller
// always observes the same nil outcome whether or not the email is approved;
// internal failures on the approved branch are logged, not returned, so
// response shape and status never become an enumeration oracle.
func (s *PortalAccessService) RequestAccess(ctx context.Context, spaceID, email string) error {
	metrics.AccessRequests.Inc()

	approved, err := s.memberships.IsApproved(ctx, spaceID, email)
	if err != nil {
		s.log.Error("access request lookup failed",
			zap.String("space_id", spaceID),
			zap.Error(err),
		)
		return nil
	}

	if !approved {
		return nil
	}

	// Issue and dispatch off the request path so the approved branch takes
	// no longer than the unapproved one.
	normalized := strings.ToLower(strings.TrimSpace(email))
	if s.syncDispatch {
		s.issueAndDispatch(ctx, spaceID, normalized)
	} else {
		go s.issueAndDispatch(context.WithoutCancel(ctx), spaceID, normalized)
	}

	return nil
}

func (s *PortalAccessService) issueAndDispatch(ctx context.Context, spaceID, email string) {
	space, err := s.spaces.Get(ctx, spaceID)
	if err != nil {
		s.log.Error("access request space lookup failed",
			zap.String("space_id", spaceID),
			zap.Error(err),
		)
		return
	}

	// A fresh token coexists with earlier unused ones; each expires
	// independently.
	token, err := s.tokens.Issue(ctx, space.ID, email, s.tokenTTL)
	if err != nil {
		s.log.Error("access request token issue failed",
			zap.String("space_id", spaceID),
			zap.Error(err),
		)
		return
	}

	s.dispatchLink(ctx, space, email, s.accessLink(space.ID, token))

	if s.audit != nil {
		s.audit.Record(ctx, space.ID, email, AuditActionAccessRequested, "")
	}
}

// ResendInvite issues a fresh link for an existing membership on behalf of staff.
func (s *PortalAccessService) ResendInvite(ctx context.Context, spaceID, membershipID string) (string, error) {
	space, err := s.spaces.Get(ctx, spaceID)
	if err != nil {
		return "", err
	}

	membership, err := s.memberships.Get(ctx, space.ID, membershipID)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.Issue(ctx, space.ID, membership.Email, s.tokenTTL)
	if err != nil {
		return "", err
	}

	link := s.accessLink(space.ID, token)
	s.dispatchLink(ctx, space, membership.Email, link)

	return link, nil
}

func (s *PortalAccessService) accessLink(spaceID, token string) string {
	path := fmt.Sprintf("/space/%s/access?token=%s", spaceID, url.QueryEscape(token))
	if s.baseURL == "" {
		return path
	}
	return s.baseURL + path
}

// dispatchLink emails the access link. Failures are logged and reported to
// staff via the return value; they never unwind membership or token state.
func (s *PortalAccessService) dispatchLink(ctx context.Context, space *models.Space, email, link string) bool {
	if s.mailer == nil {
		return false
	}

	message := mail.Message{
		To:      []string{email},
		Subject: fmt.Sprintf("Your access link for %s", space.Name),
		Body: fmt.Sprintf(
			"Hello,\n\nYou have been given access to the %s workspace. Open the link below to get started:\n%s\n\nThe link can be used once and expires automatically. If you did not expect this email, you can ignore it.\n",
			space.Name, link,
		),
	}

	if err := s.mailer.Send(ctx, message); err != nil {
		if !errors.Is(err, mail.ErrSMTPDisabled) {
			s.log.Warn("access link dispatch failed",
				zap.String("space_id", space.ID),
				zap.Error(err),
			)
		}
		return false
	}

	return true
}
