package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/clientdeck/clientdeck/internal/models"
	"github.com/clientdeck/clientdeck/pkg/logger"
)

// Audit actions recorded for portal lifecycle events.
const (
	AuditActionCustomerInvited  = "portal.customer_invited"
	AuditActionCustomerJoined   = "portal.customer_joined"
	AuditActionCustomerRevoked  = "portal.customer_revoked"
	AuditActionAccessDenied     = "portal.access_denied"
	AuditActionAccessRequested  = "portal.access_requested"
	AuditActionSpaceTransition  = "space.status_changed"
	AuditActionPasswordModified = "space.password_changed"
)

// AuditService appends portal lifecycle events to the audit log. Recording is
// best-effort: failures are logged and never fail the calling operation.
type AuditService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{
		db:  db,
		log: logger.WithModule("audit"),
	}, nil
}

// Record appends one event.
func (s *AuditService) Record(ctx context.Context, spaceID, actor, action, detail string) {
	entry := models.AuditLog{
		SpaceID: spaceID,
		Actor:   actor,
		Action:  action,
		Detail:  detail,
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Warn("audit record failed",
			zap.String("action", action),
			zap.String("space_id", spaceID),
			zap.Error(err),
		)
	}
}

// List returns the newest events for a space.
func (s *AuditService) List(ctx context.Context, spaceID string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var entries []models.AuditLog
	err := s.db.WithContext(ctx).
		Where("space_id = ?", spaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("audit service: list: %w", err)
	}
	return entries, nil
}

// CleanupOlderThan removes audit rows older than the retention window.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}
