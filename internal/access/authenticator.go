// Package access resolves API key credentials to gateway callers.
package access

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/APIGateway/internal/clock"
	"github.com/router-for-me/APIGateway/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// QueryParam is the query-string fallback for the API key.
	QueryParam = "api_key"

	touchTimeout = 5 * time.Second
)

// ExtractToken returns the bearer token, else the api_key query value.
func ExtractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")); token != "" {
			return token
		}
	}
	if r.URL != nil {
		return strings.TrimSpace(r.URL.Query().Get(QueryParam))
	}
	return ""
}

// Authenticator resolves API keys against the database.
type Authenticator struct {
	db    *gorm.DB
	clock clock.Clock

	touches sync.WaitGroup
}

// NewAuthenticator constructs an Authenticator. A nil clock uses the system clock.
func NewAuthenticator(db *gorm.DB, c clock.Clock) *Authenticator {
	return &Authenticator{db: db, clock: clock.OrSystem(c)}
}

// Resolve maps token to its active user. Unknown, inactive or revoked keys, inactive
// users and lookup failures all resolve to absent.
func (a *Authenticator) Resolve(ctx context.Context, token string) (Caller, bool) {
	token = strings.TrimSpace(token)
	if a == nil || a.db == nil || token == "" {
		return Caller{}, false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var key models.APIKey
	if errFind := a.db.WithContext(ctx).
		Where("key = ? AND active = ? AND revoked_at IS NULL", token, true).
		Take(&key).Error; errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).Warn("access: api key lookup failed")
		}
		return Caller{}, false
	}

	var user models.User
	if errFind := a.db.WithContext(ctx).
		Where("id = ? AND active = ?", key.UserID, true).
		Take(&user).Error; errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).Warn("access: user lookup failed")
		}
		return Caller{}, false
	}

	a.touchLastUsed(key.ID, a.clock.Now().UTC())

	return Caller{
		UserID:    user.ID,
		Username:  user.Username,
		APIKeyID:  key.ID,
		RateLimit: user.RateLimit,
	}, true
}

// Wait blocks until pending last-used updates finish.
func (a *Authenticator) Wait() {
	if a == nil {
		return
	}
	a.touches.Wait()
}

// touchLastUsed records the key's last use without holding up the request.
func (a *Authenticator) touchLastUsed(keyID uint64, now time.Time) {
	a.touches.Add(1)
	go func() {
		defer a.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if errUpdate := a.db.WithContext(ctx).
			Model(&models.APIKey{}).
			Where("id = ?", keyID).
			Update("last_used_at", now).Error; errUpdate != nil {
			log.WithError(errUpdate).WithField("api_key_id", keyID).Warn("access: update last used failed")
		}
	}()
}
