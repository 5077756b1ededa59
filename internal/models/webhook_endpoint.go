package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEndpoint is a user-registered subscriber for dispatched events.
type WebhookEndpoint struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	UserID uint64                      `gorm:"not null;index"`     // Owning user ID.
	Name   string                      `gorm:"type:text;not null"` // Display name.
	URL    string                      `gorm:"type:text;not null"` // Delivery URL.
	Secret *string                     `gorm:"type:text"`          // HMAC signing secret.
	Events datatypes.JSONSlice[string] `gorm:"not null"`           // Subscribed event names.

	Active bool `gorm:"not null;default:true"` // Whether dispatch targets this endpoint.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// Subscribes reports whether the endpoint listens for the event.
func (w WebhookEndpoint) Subscribes(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}
