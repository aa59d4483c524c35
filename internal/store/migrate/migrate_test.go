package migrate

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"
)

var dialects = []struct {
	name   string
	driver string
	dsn    string
}{
	{name: "sqlite", driver: "sqlite", dsn: ":memory:"},
	{name: "duckdb", driver: "duckdb", dsn: ""},
}

func openTestDB(t *testing.T, driver, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open(driver, dsn)
	if err != nil {
		t.Fatalf("open %s: %v", driver, err)
	}
	// In-memory databases are per connection.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRunAppliesAllMigrations(t *testing.T) {
	for _, d := range dialects {
		t.Run(d.name, func(t *testing.T) {
			db := openTestDB(t, d.driver, d.dsn)
			r := NewRunner(db, d.name)

			if err := r.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}

			for _, table := range []string{"vehicles", "schema_migrations"} {
				var count int64
				if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
					t.Errorf("table %s not queryable: %v", table, err)
				}
			}
		})
	}
}

func TestRunIsIdempotent(t *testing.T) {
	for _, d := range dialects {
		t.Run(d.name, func(t *testing.T) {
			db := openTestDB(t, d.driver, d.dsn)
			r := NewRunner(db, d.name)
			ctx := context.Background()

			if err := r.Run(ctx); err != nil {
				t.Fatalf("first Run: %v", err)
			}
			if _, err := db.Exec("INSERT INTO vehicles (time, vehicle_number) VALUES ('2024-01-01 10:00:00', '1001')"); err != nil {
				t.Fatalf("insert: %v", err)
			}
			if err := r.Run(ctx); err != nil {
				t.Fatalf("second Run: %v", err)
			}

			var count int64
			if err := db.QueryRow("SELECT COUNT(*) FROM vehicles").Scan(&count); err != nil {
				t.Fatalf("count: %v", err)
			}
			if count != 1 {
				t.Errorf("rows after second Run = %d, want 1", count)
			}

			cur, pending, err := r.Status(ctx)
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if cur != 3 || pending != 0 {
				t.Errorf("expected version=3 pending=0, got version=%d pending=%d", cur, pending)
			}
		})
	}
}

func TestStatusReportsCorrectly(t *testing.T) {
	db := openTestDB(t, "sqlite", ":memory:")
	r := NewRunner(db, "sqlite")
	ctx := context.Background()

	cur, pending, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 0 || pending != 3 {
		t.Errorf("before run: expected version=0 pending=3, got version=%d pending=%d", cur, pending)
	}

	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	cur, pending, err = r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 3 || pending != 0 {
		t.Errorf("after run: expected version=3 pending=0, got version=%d pending=%d", cur, pending)
	}
}

func TestRunUnknownDialect(t *testing.T) {
	db := openTestDB(t, "sqlite", ":memory:")
	if err := NewRunner(db, "postgres").Run(context.Background()); err == nil {
		t.Fatal("expected error for dialect without migrations")
	}
}
