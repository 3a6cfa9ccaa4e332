// Package dbtest provides an in-memory SQLite database with the real
// migrations applied.
package dbtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/horecaops/backoffice/pkg/db"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

var dbSeq atomic.Int64

// NewSQLite opens a private in-memory SQLite database with every migration
// applied. The database is shared by all pooled connections and lives until
// the test ends.
func NewSQLite(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:accesstest%d?mode=memory&cache=shared&_busy_timeout=5000", dbSeq.Add(1))
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	conn.SetMaxIdleConns(4)

	if _, err := db.Migrate(context.Background(), conn, goose.DialectSQLite3); err != nil {
		conn.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// Exec runs fixture statements and fails the test on error
func Exec(t *testing.T, conn *sql.DB, query string, args ...interface{}) {
	t.Helper()
	if _, err := conn.Exec(query, args...); err != nil {
		t.Fatalf("Failed to exec fixture %q: %v", query, err)
	}
}
