package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/clientdeck/clientdeck/internal/models"
)

var (
	// ErrDuplicateMembership indicates an active membership already exists
	// for the (space, email, role) triple. Surfaced to staff, never customers.
	ErrDuplicateMembership = errors.New("membership: email already invited")
	// ErrMembershipNotFound indicates no matching membership record.
	ErrMembershipNotFound = errors.New("membership: not found")
)

// MembershipOption customises MembershipService behaviour.
type MembershipOption func(*MembershipService)

// WithMembershipClock injects a custom clock, primarily for testing.
func WithMembershipClock(clock func() time.Time) MembershipOption {
	return func(s *MembershipService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// MembershipService tracks which emails are approved customers of a space and
// their join state. Duplicate protection is delegated to the store's composite
// uniqueness constraint rather than a check-then-insert.
type MembershipService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(db *gorm.DB, opts ...MembershipOption) (*MembershipService, error) {
	if db == nil {
		return nil, errors.New("membership service: db is required")
	}

	service := &MembershipService{
		db:  db,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Approve records an email as an approved customer of the space.
func (s *MembershipService) Approve(ctx context.Context, spaceID, email, invitedBy string) (*models.SpaceMembership, error) {
	spaceID = strings.TrimSpace(spaceID)
	email = strings.ToLower(strings.TrimSpace(email))
	if spaceID == "" || email == "" {
		return nil, errors.New("membership service: space id and email are required")
	}

	membership := models.SpaceMembership{
		SpaceID:   spaceID,
		Email:     email,
		Role:      models.MembershipRoleCustomer,
		InvitedBy: strings.TrimSpace(invitedBy),
		InvitedAt: s.now(),
	}

	if err := s.db.WithContext(ctx).Create(&membership).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateMembership
		}
		return nil, fmt.Errorf("membership service: create membership: %w", err)
	}

	return &membership, nil
}

// IsApproved reports whether the email holds a customer membership in the
// space. Unknown emails yield false, not an error; the self-service request
// flow depends on that.
func (s *MembershipService) IsApproved(ctx context.Context, spaceID, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if spaceID == "" || email == "" {
		return false, nil
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.SpaceMembership{}).
		Where("space_id = ? AND email = ? AND role = ?", spaceID, email, models.MembershipRoleCustomer).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("membership service: lookup: %w", err)
	}

	return count > 0, nil
}

// MarkJoined sets joined_at on the customer membership if it is still null.
// Later redemptions for the same email are a no-op, not an error.
func (s *MembershipService) MarkJoined(ctx context.Context, spaceID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if spaceID == "" || email == "" {
		return errors.New("membership service: space id and email are required")
	}

	err := s.db.WithContext(ctx).
		Model(&models.SpaceMembership{}).
		Where("space_id = ? AND email = ? AND role = ? AND joined_at IS NULL",
			spaceID, email, models.MembershipRoleCustomer).
		Update("joined_at", s.now()).Error
	if err != nil {
		return fmt.Errorf("membership service: mark joined: %w", err)
	}

	return nil
}

// Get returns one membership by id within a space.
func (s *MembershipService) Get(ctx context.Context, spaceID, membershipID string) (*models.SpaceMembership, error) {
	var membership models.SpaceMembership
	err := s.db.WithContext(ctx).
		Where("id = ? AND space_id = ?", membershipID, spaceID).
		First(&membership).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMembershipNotFound
		}
		return nil, fmt.Errorf("membership service: get: %w", err)
	}
	return &membership, nil
}

// List returns the memberships of a space, newest invitation first.
func (s *MembershipService) List(ctx context.Context, spaceID string) ([]models.SpaceMembership, error) {
	var memberships []models.SpaceMembership
	err := s.db.WithContext(ctx).
		Where("space_id = ?", spaceID).
		Order("invited_at DESC").
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("membership service: list: %w", err)
	}
	return memberships, nil
}

// Revoke removes a membership, cancelling the invitation. The delete frees the
// email for immediate re-invitation under the uniqueness constraint.
func (s *MembershipService) Revoke(ctx context.Context, spaceID, membershipID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND space_id = ?", membershipID, spaceID).
		Delete(&models.SpaceMembership{})
	if result.Error != nil {
		return fmt.Errorf("membership service: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMembershipNotFound
	}
	return nil
}
