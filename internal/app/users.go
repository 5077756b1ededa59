package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/APIGateway/internal/models"
	"github.com/router-for-me/APIGateway/internal/security"
	"gorm.io/gorm"
)

// CreateUserParams holds inputs for seeding a user with its first API key.
type CreateUserParams struct {
	Username  string
	Email     string
	Password  string
	RateLimit int
	KeyName   string
}

// CreateUserWithConn creates a user and an initial API key in one transaction.
func CreateUserWithConn(conn *gorm.DB, params CreateUserParams) (models.User, models.APIKey, error) {
	if conn == nil {
		return models.User{}, models.APIKey{}, fmt.Errorf("open database: nil connection")
	}
	username := strings.TrimSpace(params.Username)
	if username == "" {
		return models.User{}, models.APIKey{}, fmt.Errorf("username is required")
	}
	emailAddr := strings.TrimSpace(params.Email)
	if emailAddr == "" {
		return models.User{}, models.APIKey{}, fmt.Errorf("email is required")
	}
	if params.RateLimit < 0 {
		return models.User{}, models.APIKey{}, fmt.Errorf("rate limit must not be negative")
	}
	keyName := strings.TrimSpace(params.KeyName)
	if keyName == "" {
		keyName = "default"
	}

	var hashedPassword string
	if strings.TrimSpace(params.Password) != "" {
		hashed, errHash := security.HashPassword(params.Password)
		if errHash != nil {
			return models.User{}, models.APIKey{}, errHash
		}
		hashedPassword = hashed
	}
	token, errGenerate := security.GenerateAPIKey()
	if errGenerate != nil {
		return models.User{}, models.APIKey{}, errGenerate
	}

	now := time.Now().UTC()
	user := models.User{
		Username:  username,
		Email:     emailAddr,
		Password:  hashedPassword,
		RateLimit: params.RateLimit,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	key := models.APIKey{
		Name:      keyName,
		Key:       token,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	errTx := conn.Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(&user).Error; errCreate != nil {
			return fmt.Errorf("create user: %w", errCreate)
		}
		key.UserID = user.ID
		if errCreate := tx.Create(&key).Error; errCreate != nil {
			return fmt.Errorf("create api key: %w", errCreate)
		}
		return nil
	})
	if errTx != nil {
		return models.User{}, models.APIKey{}, errTx
	}
	return user, key, nil
}

// HasUsers reports whether at least one user exists.
func HasUsers(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.User{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.User{}).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}
