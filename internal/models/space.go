package models

// SpaceStatus tracks a space through its lifecycle. Portal access is only
// permitted while the status is active or completed.
type SpaceStatus string

const (
	SpaceStatusDraft     SpaceStatus = "draft"
	SpaceStatusActive    SpaceStatus = "active"
	SpaceStatusCompleted SpaceStatus = "completed"
	SpaceStatusArchived  SpaceStatus = "archived"
)

// AccessOpen reports whether customers may reach the portal at all in this status.
func (s SpaceStatus) AccessOpen() bool {
	return s == SpaceStatusActive || s == SpaceStatusCompleted
}

// Valid reports whether the value is one of the known lifecycle states.
func (s SpaceStatus) Valid() bool {
	switch s {
	case SpaceStatusDraft, SpaceStatusActive, SpaceStatusCompleted, SpaceStatusArchived:
		return true
	}
	return false
}

// SpaceAccessMode controls whether a valid session is sufficient (public) or
// a shared password is additionally required (restricted).
type SpaceAccessMode string

const (
	SpaceAccessPublic     SpaceAccessMode = "public"
	SpaceAccessRestricted SpaceAccessMode = "restricted"
)

// Space is the tenant-scoped shared workspace exposed to external customers.
type Space struct {
	BaseModel

	Name                string          `gorm:"not null" json:"name"`
	Status              SpaceStatus     `gorm:"not null;index;default:draft" json:"status"`
	AccessMode          SpaceAccessMode `gorm:"not null;default:public" json:"access_mode"`
	PasswordHash        *string         `json:"-"`
	RequireEmailCapture bool            `gorm:"not null;default:false" json:"require_email_capture"`
	CreatedBy           string          `gorm:"type:uuid" json:"created_by"`
}

// PasswordProtected reports whether the shared-password gate applies.
func (s *Space) PasswordProtected() bool {
	return s.AccessMode == SpaceAccessRestricted && s.PasswordHash != nil && *s.PasswordHash != ""
}
