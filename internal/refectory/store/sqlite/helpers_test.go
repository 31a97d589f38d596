package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/refectory/internal/db"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs,
// transaction mode and schema as production. The connection is closed
// automatically when the test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Each test gets a unique in-memory database. The shared-cache URI keeps
	// it alive for the lifetime of the pool.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name,
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed when the test
// finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func seedCard(t *testing.T, conn *sql.DB, identity, cardID, unit string, entitled bool) {
	t.Helper()

	e := 0
	if entitled {
		e = 1
	}
	_, err := conn.ExecContext(context.Background(), `
INSERT INTO cards(identity, card_id, unit, entitled, updated_at_ms)
VALUES (?, ?, ?, ?, ?);`, identity, cardID, unit, e, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	if err != nil {
		t.Fatalf("seedCard %s: %v", identity, err)
	}
}

func countRows(t *testing.T, conn *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := conn.QueryRowContext(context.Background(), query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func entitledOf(t *testing.T, conn *sql.DB, cardID string) bool {
	t.Helper()

	var e int
	if err := conn.QueryRowContext(context.Background(),
		`SELECT entitled FROM cards WHERE card_id = ?`, cardID).Scan(&e); err != nil {
		t.Fatalf("entitledOf %s: %v", cardID, err)
	}
	return e == 1
}
