package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/APIGateway/internal/clock"
	"github.com/router-for-me/APIGateway/internal/config"
	"github.com/router-for-me/APIGateway/internal/http/middleware"
	"github.com/router-for-me/APIGateway/internal/models"
	log "github.com/sirupsen/logrus"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.DatabaseDSN = "file:" + filepath.Join(t.TempDir(), "app.db")
	cfg.RateLimit.Anonymous = config.Policy{MaxRequests: 2, WindowSeconds: 60}
	return cfg
}

func TestBuild_WiresPoliciesAndRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	conn, err := Migrate(cfg)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	gw, err := Build(context.Background(), cfg, conn, WithClock(clock.Func(func() time.Time { return now })))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })

	policies := gw.Limiter.Policies()
	if policies.Anonymous.Limit != 2 || policies.Anonymous.Window != time.Minute {
		t.Fatalf("unexpected anonymous policy: %+v", policies.Anonymous)
	}
	if policies.Authenticated.Limit != 100 {
		t.Fatalf("unexpected authenticated policy: %+v", policies.Authenticated)
	}

	rec := httptest.NewRecorder()
	gw.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/keys", nil)
		req.RemoteAddr = "198.51.100.7:4000"
		gw.Engine.ServeHTTP(last, req)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected third anonymous call to be limited, got %d", last.Code)
	}

	metricsRec := httptest.NewRecorder()
	gw.Engine.ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(metricsRec.Body.String(), "apigateway_ratelimit_decisions_total") {
		t.Fatalf("expected rate limit metrics, got %q", metricsRec.Body.String())
	}
}

func TestBuild_CORSExposesRateLimitHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	conn, err := Migrate(cfg)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gw, err := Build(context.Background(), cfg, conn)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	gw.Engine.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
	exposed := rec.Header().Get("Access-Control-Expose-Headers")
	for _, want := range []string{middleware.HeaderLimit, middleware.HeaderRemaining, middleware.HeaderReset, middleware.HeaderRetryAfter} {
		if !headerListContains(exposed, want) {
			t.Fatalf("expected %s in exposed headers, got %q", want, exposed)
		}
	}
}

// headerListContains matches header names case-insensitively; cors canonicalizes them.
func headerListContains(list, name string) bool {
	for _, part := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return true
		}
	}
	return false
}

func TestBuild_UnreachableRedisDisablesStats(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)
	cfg.RateLimit.RedisAddr = "127.0.0.1:1"
	conn, err := Migrate(cfg)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gw, err := Build(context.Background(), cfg, conn)
	if err != nil {
		t.Fatalf("expected build to succeed without redis, got %v", err)
	}
	t.Cleanup(func() { _ = gw.Close() })
	if gw.redisStats != nil {
		t.Fatalf("expected redis stats to be disabled")
	}
}

func TestBuild_NilConnection(t *testing.T) {
	if _, err := Build(context.Background(), config.Defaults(), nil); err == nil {
		t.Fatalf("expected error for nil connection")
	}
}

func TestConfigureLogging_UnknownLevelFallsBack(t *testing.T) {
	t.Cleanup(func() { log.SetLevel(log.InfoLevel) })
	ConfigureLogging(config.Config{LogLevel: "chatty"})
	if log.GetLevel() != log.InfoLevel {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
	ConfigureLogging(config.Config{LogLevel: "warn"})
	if log.GetLevel() != log.WarnLevel {
		t.Fatalf("expected warn level, got %s", log.GetLevel())
	}
	ConfigureLogging(config.Config{LogLevel: "warn", Debug: true})
	if log.GetLevel() != log.DebugLevel {
		t.Fatalf("expected debug level, got %s", log.GetLevel())
	}
}

func TestCreateUserWithConn(t *testing.T) {
	cfg := testConfig(t)
	conn, err := Migrate(cfg)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	has, err := HasUsers(conn)
	if err != nil {
		t.Fatalf("has users: %v", err)
	}
	if has {
		t.Fatalf("expected empty users table")
	}

	user, key, err := CreateUserWithConn(conn, CreateUserParams{
		Username:  " bob ",
		Email:     "bob@example.com",
		Password:  "s3cret",
		RateLimit: 5,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if user.Username != "bob" || user.RateLimit != 5 || !user.Active {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.Password == "" || user.Password == "s3cret" {
		t.Fatalf("expected hashed password")
	}
	if key.UserID != user.ID || key.Name != "default" || key.Key == "" {
		t.Fatalf("unexpected key: %+v", key)
	}

	var stored models.APIKey
	if errFind := conn.Where("key = ?", key.Key).First(&stored).Error; errFind != nil {
		t.Fatalf("find key: %v", errFind)
	}

	has, err = HasUsers(conn)
	if err != nil || !has {
		t.Fatalf("expected users to exist, has=%v err=%v", has, err)
	}

	if _, _, errDup := CreateUserWithConn(conn, CreateUserParams{Username: "bob", Email: "other@example.com"}); errDup == nil {
		t.Fatalf("expected duplicate username error")
	}
	var count int64
	conn.Model(&models.APIKey{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected rollback to leave one key, got %d", count)
	}
}

func TestCreateUserWithConn_Validation(t *testing.T) {
	cfg := testConfig(t)
	conn, err := Migrate(cfg)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cases := []CreateUserParams{
		{Email: "x@example.com"},
		{Username: "x"},
		{Username: "x", Email: "x@example.com", RateLimit: -1},
	}
	for _, params := range cases {
		if _, _, errCreate := CreateUserWithConn(conn, params); errCreate == nil {
			t.Fatalf("expected validation error for %+v", params)
		}
	}
	if _, _, errNil := CreateUserWithConn(nil, CreateUserParams{}); errNil == nil {
		t.Fatalf("expected nil connection error")
	}
}

func TestConfigExists(t *testing.T) {
	dir := t.TempDir()
	if ConfigExists(filepath.Join(dir, "missing.yaml")) {
		t.Fatalf("expected missing config")
	}
	if !ConfigExists(dir) {
		t.Fatalf("expected existing path")
	}
}
