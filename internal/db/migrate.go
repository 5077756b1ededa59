package db

import (
	"fmt"

	"github.com/router-for-me/APIGateway/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	switch DialectName(conn) {
	case DialectSQLite, DialectPostgres, "":
	default:
		return fmt.Errorf("db: unsupported dialect: %s", DialectName(conn))
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.APIKey{},
		&models.WebhookEndpoint{},
		&models.EmailTemplate{},
		&models.RequestLog{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}

	if errIndex := conn.Exec(`
		CREATE INDEX IF NOT EXISTS idx_request_logs_user_timestamp
		ON request_logs (user_id, timestamp)
	`).Error; errIndex != nil {
		return fmt.Errorf("db: create request log index: %w", errIndex)
	}
	return nil
}
