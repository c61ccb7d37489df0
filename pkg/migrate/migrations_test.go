package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/popcatch-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestPopupsMigrationEnforcesSingleActivePopup(t *testing.T) {
	content := readMigration(t, "create_popups")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS popups",
		"FOREIGN KEY (store_id) REFERENCES stores(id) ON DELETE CASCADE",
		"version integer NOT NULL DEFAULT 1",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_popups_one_active_per_store ON popups (store_id) WHERE is_active",
		"DROP TABLE IF EXISTS popups",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestStoresMigrationHasUniqueShop(t *testing.T) {
	content := readMigration(t, "create_stores")
	if !strings.Contains(content, "CREATE UNIQUE INDEX IF NOT EXISTS ux_stores_shop ON stores (shop)") {
		t.Errorf("stores migration must enforce unique shop")
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("ValidateDir: %v", err)
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Popup Index!")
	if err != nil {
		t.Fatalf("CreateSQLMigration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_popup_index.sql") {
		t.Fatalf("unexpected migration path %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}
