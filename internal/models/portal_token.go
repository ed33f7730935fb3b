package models

import "time"

// PortalToken is a single-use capability exchanged for a portal session.
// Only the SHA-256 digest of the raw token is stored. A token is redeemable
// while used_at is null and expires_at lies in the future; used_at is stamped
// atomically with that check.
type PortalToken struct {
	BaseModel

	SpaceID     string     `gorm:"type:uuid;not null;index" json:"space_id"`
	Email       string     `gorm:"not null;index" json:"email"`
	TokenDigest string     `gorm:"not null;uniqueIndex" json:"-"`
	ExpiresAt   time.Time  `gorm:"not null;index" json:"expires_at"`
	UsedAt      *time.Time `json:"used_at"`

	Space *Space `gorm:"constraint:OnDelete:CASCADE" json:"space,omitempty"`
}
