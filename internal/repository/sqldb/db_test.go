package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TESTING WITH IN-MEMORY SQLITE:
// ":memory:" gives each test a fresh, isolated database that disappears when
// the pool closes. New runs the goose migrations, so the schema is real.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// newPostgresTestDB connects to PETADOPT_TEST_POSTGRES_DSN or skips.
func newPostgresTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("PETADOPT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PETADOPT_TEST_POSTGRES_DSN not set")
	}
	db, err := New(context.Background(), DriverPostgres, dsn)
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	t.Cleanup(func() {
		db.conn.Exec(`DELETE FROM users`)
		db.Close()
	})
	return db
}

// =========================================================================
// OPEN / MIGRATE TESTS
// =========================================================================

func TestNew_UnsupportedDriver(t *testing.T) {
	if _, err := New(context.Background(), "mysql", "x"); err == nil {
		t.Fatal("New() should reject an unsupported driver")
	}
}

func TestNew_MigratesSchema(t *testing.T) {
	db := newTestDB(t)

	var count int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
	if err != nil {
		t.Fatalf("users table missing after migrate: %v", err)
	}
	if count != 0 {
		t.Errorf("fresh users table has %d rows, want 0", count)
	}
}

func TestNew_FileDatabaseReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "petadopt.db")
	ctx := context.Background()

	db, err := New(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := db.Create(ctx, newUser("a@x.com")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	db.Close()

	// Re-opening runs migrations again; already-applied versions are skipped.
	db, err = New(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("second New() error = %v", err)
	}
	defer db.Close()

	if _, err := db.GetByEmail(ctx, "a@x.com"); err != nil {
		t.Fatalf("row lost across reopen: %v", err)
	}

	var mode string
	if err := db.conn.QueryRow(`PRAGMA journal_mode`).Scan(&mode); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
}

// =========================================================================
// TRANSACTION TESTS
// =========================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, created_at, updated_at) VALUES ('x', 'x@x.com', ?, ?)`,
			time.Now(), time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("withTx() error = %v, want boom", err)
	}

	if _, err := db.GetByEmail(ctx, "x@x.com"); err == nil {
		t.Error("row from a rolled-back transaction is visible")
	}
}

func TestWithTx_ReleasesConnectionAfterPanic(t *testing.T) {
	db := newTestDB(t) // one connection only: a leak would block the next query
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("withTx() swallowed the panic")
			}
		}()
		_ = db.withTx(ctx, func(tx *sql.Tx) error {
			panic("handler bug")
		})
	}()

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.Ping(ctx); err != nil {
		t.Fatalf("pool unusable after panic: %v", err)
	}
	if _, err := db.UsernameTaken(ctx, "anyone", ""); err != nil {
		t.Fatalf("query after panic: %v", err)
	}
}

// =========================================================================
// HELPER TESTS
// =========================================================================

func TestRebind(t *testing.T) {
	pg := &DB{driver: DriverPostgres}
	lite := &DB{driver: DriverSQLite}
	q := `UPDATE users SET username = ?, avatar_url = ? WHERE id = ?`

	if got, want := pg.rebind(q), `UPDATE users SET username = $1, avatar_url = $2 WHERE id = $3`; got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
	if got := lite.rebind(q); got != q {
		t.Errorf("sqlite rebind changed the query: %q", got)
	}
}

func TestSQLiteDSN(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{":memory:", ":memory:"},
		{"file:x.db?_pragma=foreign_keys(1)", "file:x.db?_pragma=foreign_keys(1)"},
		{"data/petadopt.db", "file:data/petadopt.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_txlock=immediate"},
	}
	for _, tt := range tests {
		if got := sqliteDSN(tt.in); got != tt.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSQLiteColumn(t *testing.T) {
	tests := []struct {
		msg, want string
	}{
		{"constraint failed: UNIQUE constraint failed: users.email (2067)", "email"},
		{"UNIQUE constraint failed: users.google_id", "google_id"},
		{"no such table: users", ""},
	}
	for _, tt := range tests {
		if got := sqliteColumn(tt.msg); got != tt.want {
			t.Errorf("sqliteColumn(%q) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}
