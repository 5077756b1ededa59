package requestlog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/router-for-me/APIGateway/internal/db"
	"github.com/router-for-me/APIGateway/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "requestlog.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestGormRecorderRecord(t *testing.T) {
	conn := openTestDB(t)
	rec := NewGormRecorder(conn)
	userID := uint64(42)
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	if err := rec.Record(context.Background(), Entry{
		Method:     "GET",
		Endpoint:   "/api/keys",
		IPAddress:  "10.0.0.1",
		UserAgent:  "curl/8",
		UserID:     &userID,
		StatusCode: 200,
		Latency:    250 * time.Millisecond,
		Timestamp:  ts,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := rec.Record(context.Background(), Entry{Method: "GET", Endpoint: "/api/keys", StatusCode: 401, Timestamp: ts}); err != nil {
		t.Fatalf("record anonymous: %v", err)
	}

	var rows []models.RequestLog
	if errFind := conn.Order("id ASC").Find(&rows).Error; errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].UserID == nil || *rows[0].UserID != 42 {
		t.Fatalf("expected user id 42, got %v", rows[0].UserID)
	}
	if rows[0].ResponseTime != 0.25 {
		t.Fatalf("expected response time 0.25, got %v", rows[0].ResponseTime)
	}
	if rows[1].UserID != nil || rows[1].StatusCode != 401 {
		t.Fatalf("unexpected anonymous row: %+v", rows[1])
	}
}

func TestGormRecorderReportsFailure(t *testing.T) {
	conn := openTestDB(t)
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	_ = sqlDB.Close()

	if errRecord := NewGormRecorder(conn).Record(context.Background(), Entry{Method: "GET", Endpoint: "/"}); errRecord == nil {
		t.Fatalf("expected error from closed db")
	}
}

func TestGormRecorderSurvivesCanceledContext(t *testing.T) {
	conn := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewGormRecorder(conn).Record(ctx, Entry{Method: "GET", Endpoint: "/", StatusCode: 200, Timestamp: time.Now()}); err != nil {
		t.Fatalf("expected record despite canceled request, got %v", err)
	}
}

func TestRecentOrdersAndLimits(t *testing.T) {
	conn := openTestDB(t)
	rec := NewGormRecorder(conn)
	userID := uint64(7)
	other := uint64(8)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := rec.Record(context.Background(), Entry{Method: "GET", Endpoint: "/api/logs", UserID: &userID, StatusCode: 200, Timestamp: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := rec.Record(context.Background(), Entry{Method: "GET", Endpoint: "/api/logs", UserID: &other, StatusCode: 200, Timestamp: base}); err != nil {
		t.Fatalf("record other: %v", err)
	}

	rows, err := Recent(context.Background(), conn, userID, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if !rows[0].Timestamp.Equal(base.Add(4 * time.Minute)) {
		t.Fatalf("expected newest first, got %s", rows[0].Timestamp)
	}
	for _, row := range rows {
		if row.UserID == nil || *row.UserID != userID {
			t.Fatalf("unexpected row owner: %+v", row)
		}
	}
}
