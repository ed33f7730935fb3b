package models

// AuditLog captures portal lifecycle events for staff review.
type AuditLog struct {
	BaseModel

	SpaceID string `gorm:"type:uuid;index" json:"space_id"`
	Actor   string `json:"actor"` // staff user id, or customer email for portal events
	Action  string `gorm:"not null;index" json:"action"`
	Detail  string `json:"detail"`
}
