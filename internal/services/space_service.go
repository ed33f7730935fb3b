package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/clientdeck/clientdeck/internal/models"
	"github.com/clientdeck/clientdeck/pkg/crypto"
)

var (
	// ErrSpaceNotFound indicates no space matches the identifier.
	ErrSpaceNotFound = errors.New("space: not found")
	// ErrInvalidTransition indicates a lifecycle change the state machine forbids.
	ErrInvalidTransition = errors.New("space: invalid status transition")
)

// legalTransitions is the space lifecycle state machine. Archived is terminal.
var legalTransitions = map[models.SpaceStatus][]models.SpaceStatus{
	models.SpaceStatusDraft:     {models.SpaceStatusActive, models.SpaceStatusArchived},
	models.SpaceStatusActive:    {models.SpaceStatusCompleted, models.SpaceStatusArchived},
	models.SpaceStatusCompleted: {models.SpaceStatusActive, models.SpaceStatusArchived},
	models.SpaceStatusArchived:  {},
}

// SpaceService owns space CRUD, the status state machine, and the optional
// shared-password gate for restricted spaces.
type SpaceService struct {
	db *gorm.DB
}

// NewSpaceService constructs a SpaceService.
func NewSpaceService(db *gorm.DB) (*SpaceService, error) {
	if db == nil {
		return nil, errors.New("space service: db is required")
	}
	return &SpaceService{db: db}, nil
}

// Create persists a new space in draft status.
func (s *SpaceService) Create(ctx context.Context, name, createdBy string) (*models.Space, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("space service: name is required")
	}

	space := models.Space{
		Name:       name,
		Status:     models.SpaceStatusDraft,
		AccessMode: models.SpaceAccessPublic,
		CreatedBy:  strings.TrimSpace(createdBy),
	}

	if err := s.db.WithContext(ctx).Create(&space).Error; err != nil {
		return nil, fmt.Errorf("space service: create: %w", err)
	}

	return &space, nil
}

// Get returns a space by id.
func (s *SpaceService) Get(ctx context.Context, spaceID string) (*models.Space, error) {
	var space models.Space
	if err := s.db.WithContext(ctx).First(&space, "id = ?", spaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSpaceNotFound
		}
		return nil, fmt.Errorf("space service: get: %w", err)
	}
	return &space, nil
}

// List returns all spaces, newest first.
func (s *SpaceService) List(ctx context.Context) ([]models.Space, error) {
	var spaces []models.Space
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&spaces).Error; err != nil {
		return nil, fmt.Errorf("space service: list: %w", err)
	}
	return spaces, nil
}

// Update changes mutable space attributes (name, access mode, email capture).
func (s *SpaceService) Update(ctx context.Context, spaceID string, name *string, mode *models.SpaceAccessMode, requireEmailCapture *bool) (*models.Space, error) {
	space, err := s.Get(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if name != nil && strings.TrimSpace(*name) != "" {
		updates["name"] = strings.TrimSpace(*name)
	}
	if mode != nil {
		if *mode != models.SpaceAccessPublic && *mode != models.SpaceAccessRestricted {
			return nil, errors.New("space service: unknown access mode")
		}
		updates["access_mode"] = *mode
	}
	if requireEmailCapture != nil {
		updates["require_email_capture"] = *requireEmailCapture
	}

	if len(updates) == 0 {
		return space, nil
	}

	if err := s.db.WithContext(ctx).Model(space).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("space service: update: %w", err)
	}

	return s.Get(ctx, spaceID)
}

// Transition moves a space to a new lifecycle status, enforcing the state machine.
func (s *SpaceService) Transition(ctx context.Context, spaceID string, target models.SpaceStatus) (*models.Space, error) {
	if !target.Valid() {
		return nil, ErrInvalidTransition
	}

	space, err := s.Get(ctx, spaceID)
	if err != nil {
		return nil, err
	}

	allowed := false
	for _, next := range legalTransitions[space.Status] {
		if next == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrInvalidTransition
	}

	if err := s.db.WithContext(ctx).Model(space).Update("status", target).Error; err != nil {
		return nil, fmt.Errorf("space service: transition: %w", err)
	}

	space.Status = target
	return space, nil
}

// ActivateIfDraft promotes a draft space to active. Called when the first
// customer invitation lands; a no-op for any other status.
func (s *SpaceService) ActivateIfDraft(ctx context.Context, spaceID string) error {
	err := s.db.WithContext(ctx).
		Model(&models.Space{}).
		Where("id = ? AND status = ?", spaceID, models.SpaceStatusDraft).
		Update("status", models.SpaceStatusActive).Error
	if err != nil {
		return fmt.Errorf("space service: activate: %w", err)
	}
	return nil
}

// SetPassword installs or clears the shared password for restricted access.
// The plaintext is hashed with bcrypt and never persisted.
func (s *SpaceService) SetPassword(ctx context.Context, spaceID, plaintext string) error {
	space, err := s.Get(ctx, spaceID)
	if err != nil {
		return err
	}

	var hash *string
	if plaintext != "" {
		hashed, err := crypto.HashPassword(plaintext)
		if err != nil {
			return fmt.Errorf("space service: hash password: %w", err)
		}
		hash = &hashed
	}

	if err := s.db.WithContext(ctx).Model(space).Update("password_hash", hash).Error; err != nil {
		return fmt.Errorf("space service: set password: %w", err)
	}
	return nil
}

// CheckPassword verifies a candidate against the stored shared password.
// Spaces without a password configured always refuse the check.
func (s *SpaceService) CheckPassword(ctx context.Context, spaceID, candidate string) (bool, error) {
	space, err := s.Get(ctx, spaceID)
	if err != nil {
		return false, err
	}

	if space.PasswordHash == nil || *space.PasswordHash == "" {
		return false, nil
	}

	return crypto.VerifyPassword(*space.PasswordHash, candidate), nil
}
