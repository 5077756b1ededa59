// Package requestlog persists one audit row per completed request.
package requestlog

import (
	"context"
	"fmt"
	"time"

	"github.com/router-for-me/APIGateway/internal/models"
	"gorm.io/gorm"
)

const (
	recordTimeout = 5 * time.Second

	// DefaultListLimit and MaxListLimit bound Recent queries.
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Entry is an immutable description of one completed request.
type Entry struct {
	Method     string
	Endpoint   string
	IPAddress  string
	UserAgent  string
	UserID     *uint64
	StatusCode int
	Latency    time.Duration
	Timestamp  time.Time
}

// Row converts the entry into its persisted form.
func (e Entry) Row() models.RequestLog {
	row := models.RequestLog{
		Method:       e.Method,
		Endpoint:     e.Endpoint,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		StatusCode:   e.StatusCode,
		ResponseTime: e.Latency.Seconds(),
		Timestamp:    e.Timestamp.UTC(),
	}
	if e.UserID != nil {
		id := *e.UserID
		row.UserID = &id
	}
	return row
}

// Recorder persists entries. Callers treat errors as non-fatal.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

// GormRecorder writes entries to the request_logs table.
type GormRecorder struct {
	db *gorm.DB
}

// NewGormRecorder constructs a GormRecorder backed by GORM.
func NewGormRecorder(db *gorm.DB) *GormRecorder { return &GormRecorder{db: db} }

// Record inserts entry. The insert outlives request cancellation but not its own timeout.
func (r *GormRecorder) Record(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	row := entry.Row()
	if errCreate := r.db.WithContext(dbCtx).Create(&row).Error; errCreate != nil {
		return fmt.Errorf("requestlog: insert: %w", errCreate)
	}
	return nil
}

// Recent returns the newest rows for userID, newest first.
func Recent(ctx context.Context, db *gorm.DB, userID uint64, limit int) ([]models.RequestLog, error) {
	if db == nil {
		return nil, fmt.Errorf("requestlog: nil db")
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	var rows []models.RequestLog
	if errFind := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("requestlog: list: %w", errFind)
	}
	return rows, nil
}
