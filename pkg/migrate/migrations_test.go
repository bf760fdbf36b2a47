package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/storefront-checkout/pkg/migrate"
)

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	embedded, err := migrate.Migrations.ReadDir(migrate.EmbeddedDir)
	if err != nil {
		t.Fatalf("read embedded: %v", err)
	}
	if len(onDisk) != len(embedded) {
		t.Fatalf("expected %d embedded migrations, got %d", len(onDisk), len(embedded))
	}
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_orders.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS purchases",
		"CHECK (total_transaction_cents = price_cents + tax_cents + shipping_cents)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_purchases_submission_success ON purchases (submission_key)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_call_bookings_slot ON call_bookings (product_id, start_time)",
		"receiver_purchase_id uuid UNIQUE REFERENCES purchases(id)",
		"DROP TABLE IF EXISTS purchases",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationHasDedupeIndex(t *testing.T) {
	content := readMigration(t, "*_create_outbox.sql")
	if !strings.Contains(content, "ux_outbox_events_event_aggregate") {
		t.Fatal("outbox dedupe index missing")
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename error")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Refunds!")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_refunds.sql") {
		t.Fatalf("unexpected file name %q", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationBumpsCollidingVersion(t *testing.T) {
	dir := t.TempDir()
	first, err := migrate.CreateSQLMigration(dir, "one")
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := migrate.CreateSQLMigration(dir, "two")
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if filepath.Base(first)[:14] == filepath.Base(second)[:14] {
		t.Fatalf("expected distinct versions, got %s and %s", first, second)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateDirRejectsUnbalancedStatements(t *testing.T) {
	dir := t.TempDir()
	body := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n"
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_bad.sql"), []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected unbalanced statement error")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
