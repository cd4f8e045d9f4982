package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/angelmondragon/carbridge-backend/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Embedded()); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatal(err)
	}
	embedded, err := fs.Glob(migrate.Embedded(), "*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(onDisk) != len(embedded) {
		t.Fatalf("embedded %d migrations, %d on disk", len(embedded), len(onDisk))
	}
}

func TestValidateFSRejectsBrokenMigrations(t *testing.T) {
	upDown := "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"bad name":          {"2026_init.sql": {Data: []byte(upDown)}},
		"duplicate version": {"20260301120000_a.sql": {Data: []byte(upDown)}, "20260301120000_b.sql": {Data: []byte(upDown)}},
		"missing down":      {"20260301120000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}},
		"down before up":    {"20260301120000_a.sql": {Data: []byte("-- +goose Down\n-- +goose Up\n")}},
		"enum add value":    {"20260301120000_a.sql": {Data: []byte("-- +goose Up\nALTER TYPE refund_status ADD VALUE 'voided';\n-- +goose Down\n")}},
	}
	for name, fsys := range cases {
		if err := migrate.ValidateFS(fsys); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}

	ok := fstest.MapFS{"20260301120000_a.sql": {Data: []byte("-- +goose NO TRANSACTION\n-- +goose Up\nALTER TYPE refund_status ADD VALUE 'voided';\n-- +goose Down\n")}}
	if err := migrate.ValidateFS(ok); err != nil {
		t.Fatalf("NO TRANSACTION enum migration should validate: %v", err)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := migrate.ParseVersion("20260301120600"); err != nil || v != 20260301120600 {
		t.Fatalf("unexpected %d %v", v, err)
	}
	for _, raw := range []string{"", "2026", "2026030112060x", "-20260301120600"} {
		if _, err := migrate.ParseVersion(raw); err == nil {
			t.Errorf("%q: expected error", raw)
		}
	}
}

func TestSchemaMigrationsDeclareGuards(t *testing.T) {
	checks := map[string][]string{
		"*_create_transactions_and_escrows.sql": {
			"CREATE TABLE IF NOT EXISTS transactions",
			"CREATE UNIQUE INDEX IF NOT EXISTS idx_escrows_payment_intent_id",
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_tracking_escrow_stage",
			"DROP TABLE IF EXISTS escrows",
		},
		"*_create_deal_journey.sql": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_journey_listing_buyer",
			"CREATE TABLE IF NOT EXISTS deal_journey_events",
		},
		"*_create_enum_types.sql": {
			"'LEAD', 'QUALIFICATION', 'QUOTE', 'DEPOSIT', 'PAYMENT', 'SHIPPING', 'DELIVERED', 'LOST', 'REFUNDED'",
			"CREATE TYPE tracking_stage_type AS ENUM ('payment', 'documentation', 'shipping', 'customs', 'delivery')",
		},
		"*_create_outbox.sql": {
			"CREATE TABLE IF NOT EXISTS outbox_events",
			"CREATE TABLE IF NOT EXISTS outbox_dlq",
		},
	}

	for pattern, statements := range checks {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		if err != nil {
			t.Fatalf("glob %s: %v", pattern, err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", pattern, len(matches))
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read %s: %v", matches[0], err)
		}
		for _, sub := range statements {
			if !strings.Contains(string(data), sub) {
				t.Errorf("%s missing expected statement %q", matches[0], sub)
			}
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Escrow Notes!", now)
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if filepath.Base(path) != "20261018093000_add_escrow_notes.sql" {
		t.Fatalf("unexpected path %s", path)
	}
	if err := migrate.ValidateFS(os.DirFS(dir)); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
	if _, err := migrate.CreateSQLMigration(dir, "add escrow notes", now); err == nil {
		t.Fatal("expected an existing migration to be kept")
	}
}
