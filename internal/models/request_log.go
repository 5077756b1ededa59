package models

import "time"

// RequestLog is an append-only audit row for one completed request.
type RequestLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Method       string    `gorm:"type:text;not null"`            // HTTP method.
	Endpoint     string    `gorm:"type:text;not null"`            // Request path.
	IPAddress    string    `gorm:"type:text"`                     // Caller IP.
	UserAgent    string    `gorm:"type:text"`                     // Caller user agent.
	UserID       *uint64   `gorm:"index"`                         // Resolved user, if any.
	StatusCode   int       `gorm:"not null"`                      // Response status.
	ResponseTime float64   `gorm:"not null"`                      // Latency in seconds.
	Timestamp    time.Time `gorm:"not null;index;autoCreateTime"` // Completion time.
}
