package models

import "time"

// APIKey is a bearer credential owned by a user.
type APIKey struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64 `gorm:"not null;index"`                 // Owning user ID.
	Name   string `gorm:"type:text;not null"`             // Display name.
	Key    string `gorm:"type:text;not null;uniqueIndex"` // Token value presented by callers.

	Active     bool       `gorm:"not null;default:true"` // Whether the key authenticates.
	LastUsedAt *time.Time // Last successful authentication.
	RevokedAt  *time.Time // Revocation timestamp.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName pins the table name independent of gorm's naming strategy.
func (APIKey) TableName() string { return "api_keys" }
