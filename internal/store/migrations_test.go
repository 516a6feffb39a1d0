package store

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"
	"testing"
	"time"

	"moodpad/db"
)

var migrationName = regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := fs.ReadDir(db.Migrations, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}

	byVersion := map[string]map[string]bool{}
	for _, entry := range entries {
		match := migrationName.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		if byVersion[match[1]] == nil {
			byVersion[match[1]] = map[string]bool{}
		}
		if byVersion[match[1]][match[2]] {
			t.Fatalf("duplicate %s migration for version %s", match[2], match[1])
		}
		byVersion[match[1]][match[2]] = true
	}
	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestUpMigrationsSorted(t *testing.T) {
	files, err := upMigrations(db.Migrations, "migrations")
	if err != nil {
		t.Fatalf("upMigrations() error = %v", err)
	}
	if len(files) < 2 || !sort.StringsAreSorted(files) || !strings.HasSuffix(files[0], "0001_documents.up.sql") {
		t.Fatalf("upMigrations() = %v", files)
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("MOODPAD_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("MOODPAD_TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if _, err := conn.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := ApplyMigrations(ctx, conn, db.Migrations, "migrations"); err != nil {
		t.Fatalf("ApplyMigrations() error = %v", err)
	}
	return conn
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()

	entries, err := fs.ReadDir(db.Migrations, "migrations")
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	var downs []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".down.sql") {
			downs = append(downs, path.Join("migrations", entry.Name()))
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(downs)))
	for _, file := range downs {
		contents, err := fs.ReadFile(db.Migrations, file)
		if err != nil {
			t.Fatalf("read %s: %v", file, err)
		}
		if _, err := conn.ExecContext(ctx, string(contents)); err != nil {
			t.Fatalf("apply %s: %v", file, err)
		}
	}
	if _, err := conn.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, conn, db.Migrations, "migrations"); err != nil {
		t.Fatalf("apply up migrations (pass 2): %v", err)
	}
}
