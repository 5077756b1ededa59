package models

import "time"

// User represents an API consumer account stored in the database.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Email    string `gorm:"type:text;not null;uniqueIndex"` // Email address.
	Password string `gorm:"type:text"`                      // Hashed password.

	RateLimit int `gorm:"not null;default:0"` // Requests per window override (0 uses the default policy).

	Active bool `gorm:"not null;default:true"` // Whether the user can authenticate.

	APIKeys []APIKey `gorm:"foreignKey:UserID"` // Related API keys.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
