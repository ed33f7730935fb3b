package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/clientdeck/clientdeck/internal/models"
	"github.com/clientdeck/clientdeck/pkg/crypto"
)

const (
	// DefaultTokenTTL is the validity window of an emailed access link.
	DefaultTokenTTL = 7 * 24 * time.Hour

	defaultTokenBytes = 32
)

// ErrTokenInvalid covers every redemption failure: unknown token, wrong space,
// expired, or already used. Callers must not be able to tell these apart.
var ErrTokenInvalid = errors.New("portal token: invalid")

// TokenOption customises TokenService behaviour.
type TokenOption func(*TokenService)

// WithTokenClock injects a custom clock, primarily for testing.
func WithTokenClock(clock func() time.Time) TokenOption {
	return func(s *TokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTokenSize adjusts the random token length in bytes.
func WithTokenSize(size int) TokenOption {
	return func(s *TokenService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// TokenService creates and redeems the single-use, expiring tokens carried in
// portal access links. Multiple unused tokens may coexist for one
// (space, email); a resend does not invalidate earlier links, each expires on
// its own clock.
type TokenService struct {
	db          *gorm.DB
	tokenLength int
	now         func() time.Time
}

// NewTokenService constructs a TokenService.
func NewTokenService(db *gorm.DB, opts ...TokenOption) (*TokenService, error) {
	if db == nil {
		return nil, errors.New("token service: db is required")
	}

	service := &TokenService{
		db:          db,
		tokenLength: defaultTokenBytes,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Issue generates a cryptographically random token bound to (space, email) and
// persists its digest with the given time-to-live. The raw token is returned
// exactly once, for embedding in the emailed link.
func (s *TokenService) Issue(ctx context.Context, spaceID, email string, ttl time.Duration) (string, error) {
	spaceID = strings.TrimSpace(spaceID)
	email = strings.ToLower(strings.TrimSpace(email))
	if spaceID == "" || email == "" {
		return "", errors.New("token service: space id and email are required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return "", fmt.Errorf("token service: generate token: %w", err)
	}

	record := models.PortalToken{
		SpaceID:     spaceID,
		Email:       email,
		TokenDigest: crypto.TokenDigest(rawToken),
		ExpiresAt:   s.now().Add(ttl),
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", fmt.Errorf("token service: create token: %w", err)
	}

	return rawToken, nil
}

// Redeem exchanges a raw token for the email it was issued to, consuming it.
// The unused check and the used_at stamp are one conditional UPDATE, so when
// two requests race on the same token exactly one wins; the loser, like every
// other failure mode, observes ErrTokenInvalid.
func (s *TokenService) Redeem(ctx context.Context, spaceID, token string) (string, error) {
	spaceID = strings.TrimSpace(spaceID)
	token = strings.TrimSpace(token)
	if spaceID == "" || token == "" {
		return "", ErrTokenInvalid
	}

	now := s.now()
	digest := crypto.TokenDigest(token)

	result := s.db.WithContext(ctx).
		Model(&models.PortalToken{}).
		Where("space_id = ? AND token_digest = ? AND used_at IS NULL AND expires_at > ?", spaceID, digest, now).
		Update("used_at", now)
	if result.Error != nil {
		return "", fmt.Errorf("token service: mark used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return "", ErrTokenInvalid
	}

	var record models.PortalToken
	if err := s.db.WithContext(ctx).
		Where("space_id = ? AND token_digest = ?", spaceID, digest).
		First(&record).Error; err != nil {
		return "", fmt.Errorf("token service: load token: %w", err)
	}

	return record.Email, nil
}

// CleanupExpired removes tokens that are consumed or past expiry. Invoked by
// the maintenance scheduler; live traffic never depends on it.
func (s *TokenService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR used_at IS NOT NULL", s.now()).
		Delete(&models.PortalToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("token service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}
