package db

import (
	"strings"

	"gorm.io/gorm"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// DialectForDSN maps a DSN to the dialect Open will use.
// postgres:// and postgresql:// select PostgreSQL; anything else is a SQLite path or URI.
func DialectForDSN(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// DialectName returns the dialect of an open connection, or "" for nil.
func DialectName(conn *gorm.DB) string {
	if conn == nil || conn.Dialector == nil {
		return ""
	}
	return conn.Dialector.Name()
}

// IsSQLite reports whether conn talks to SQLite.
func IsSQLite(conn *gorm.DB) bool {
	return DialectName(conn) == DialectSQLite
}
