package user

import (
	"time"
)

// User mirrors the identity supplied by the surrounding session layer.
// The id is the external auth subject, not a generated key.
type User struct {
	ID       string `gorm:"type:text;primaryKey" json:"id"`
	Username string `gorm:"not null;column:username" json:"username"`
	Email    string `gorm:"uniqueIndex;not null;column:email" json:"email"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string { return "user" }
