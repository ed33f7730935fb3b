package models

import "time"

// MembershipRole distinguishes the capacity an email holds within a space.
// Customer rows carry join state; stakeholder rows are informational contacts
// and never grant portal access.
type MembershipRole string

const (
	MembershipRoleCustomer    MembershipRole = "customer"
	MembershipRoleStakeholder MembershipRole = "stakeholder"
)

// SpaceMembership records one email's approved relationship to a space.
// The composite unique index makes concurrent duplicate invitations fail
// deterministically at the store rather than via check-then-insert.
type SpaceMembership struct {
	BaseModel

	SpaceID   string         `gorm:"type:uuid;not null;uniqueIndex:idx_space_email_role" json:"space_id"`
	Email     string         `gorm:"not null;uniqueIndex:idx_space_email_role" json:"email"`
	Role      MembershipRole `gorm:"not null;default:customer;uniqueIndex:idx_space_email_role" json:"role"`
	InvitedBy string         `gorm:"type:uuid" json:"invited_by"`
	InvitedAt time.Time      `gorm:"not null" json:"invited_at"`
	JoinedAt  *time.Time     `json:"joined_at"`

	Space *Space `gorm:"constraint:OnDelete:CASCADE" json:"space,omitempty"`
}
