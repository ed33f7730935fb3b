package models

// User is an internal staff account. Customers never hold a User row; they
// reach spaces exclusively through portal sessions.
type User struct {
	BaseModel

	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Name     string `json:"name"`
	Password string `gorm:"not null" json:"-"`
	IsActive bool   `gorm:"not null;default:true" json:"is_active"`
}
