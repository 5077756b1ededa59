package models

import "time"

// EmailTemplate stores a reusable subject/body pair with {{variable}} placeholders.
type EmailTemplate struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID  uint64 `gorm:"not null;index"`     // Owning user ID.
	Name    string `gorm:"type:text;not null"` // Display name.
	Subject string `gorm:"type:text;not null"` // Subject template.
	Body    string `gorm:"type:text;not null"` // Body template.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
