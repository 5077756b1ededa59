package access

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/APIGateway/internal/clock"
	"github.com/router-for-me/APIGateway/internal/db"
	"github.com/router-for-me/APIGateway/internal/models"
	"github.com/router-for-me/APIGateway/internal/ratelimit"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "access.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func seedKey(t *testing.T, conn *gorm.DB, username string, userActive bool, token string, keyActive bool) (models.User, models.APIKey) {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", Active: true, RateLimit: 7}
	if errCreate := conn.Create(&user).Error; errCreate != nil {
		t.Fatalf("create user: %v", errCreate)
	}
	if !userActive {
		if errUpdate := conn.Model(&user).Update("active", false).Error; errUpdate != nil {
			t.Fatalf("deactivate user: %v", errUpdate)
		}
	}
	key := models.APIKey{UserID: user.ID, Name: "default", Key: token, Active: true}
	if errCreate := conn.Create(&key).Error; errCreate != nil {
		t.Fatalf("create key: %v", errCreate)
	}
	if !keyActive {
		if errUpdate := conn.Model(&key).Update("active", false).Error; errUpdate != nil {
			t.Fatalf("deactivate key: %v", errUpdate)
		}
	}
	return user, key
}

func TestExtractTokenPrefersBearer(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/keys?api_key=query-token", nil)
	r.Header.Set("Authorization", "Bearer header-token")
	if got := ExtractToken(r); got != "header-token" {
		t.Fatalf("expected header token, got %q", got)
	}

	r = httptest.NewRequest("GET", "/api/keys?api_key=query-token", nil)
	r.Header.Set("Authorization", "Basic abc")
	if got := ExtractToken(r); got != "query-token" {
		t.Fatalf("expected query token, got %q", got)
	}

	r = httptest.NewRequest("GET", "/api/keys", nil)
	if got := ExtractToken(r); got != "" {
		t.Fatalf("expected empty token, got %q", got)
	}
}

func TestResolve(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	auth := NewAuthenticator(conn, clock.Func(func() time.Time { return now }))

	user, key := seedKey(t, conn, "alice", true, "good-token", true)
	seedKey(t, conn, "bob", true, "inactive-key", false)
	seedKey(t, conn, "carol", false, "inactive-user", true)
	_, revoked := seedKey(t, conn, "dave", true, "revoked-key", true)
	if errUpdate := conn.Model(&revoked).Update("revoked_at", now).Error; errUpdate != nil {
		t.Fatalf("revoke: %v", errUpdate)
	}

	caller, ok := auth.Resolve(context.Background(), "good-token")
	if !ok {
		t.Fatalf("expected token to resolve")
	}
	if caller.UserID != user.ID || caller.APIKeyID != key.ID || caller.RateLimit != 7 {
		t.Fatalf("unexpected caller: %+v", caller)
	}
	if caller.Identity() != ratelimit.UserIdentity(user.ID) {
		t.Fatalf("unexpected identity %q", caller.Identity())
	}

	for _, token := range []string{"", "unknown", "inactive-key", "inactive-user", "revoked-key"} {
		if _, ok := auth.Resolve(context.Background(), token); ok {
			t.Fatalf("expected %q to resolve absent", token)
		}
	}

	auth.Wait()
	var stored models.APIKey
	if errFind := conn.First(&stored, key.ID).Error; errFind != nil {
		t.Fatalf("reload key: %v", errFind)
	}
	if stored.LastUsedAt == nil || !stored.LastUsedAt.Equal(now) {
		t.Fatalf("expected last_used_at=%s, got %v", now, stored.LastUsedAt)
	}
}

func TestCallerContextRoundTrip(t *testing.T) {
	if _, ok := CallerFromContext(context.Background()); ok {
		t.Fatalf("expected no caller")
	}
	ctx := WithCaller(context.Background(), Caller{IP: "10.0.0.1"})
	caller, ok := CallerFromContext(ctx)
	if !ok || caller.Authenticated() {
		t.Fatalf("expected anonymous caller, got %+v", caller)
	}
	if caller.Identity() != ratelimit.IPIdentity("10.0.0.1") {
		t.Fatalf("unexpected identity %q", caller.Identity())
	}
}
