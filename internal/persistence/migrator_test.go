package persistence

import (
	"strings"
	"testing"
)

func TestOrderMigrations(t *testing.T) {
	got, err := orderMigrations([]string{
		"000002_projections.up.sql",
		"000001_margin_core.up.sql",
		"000010_indexes.up.sql",
	})
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	want := []string{
		"000001_margin_core.up.sql",
		"000002_projections.up.sql",
		"000010_indexes.up.sql",
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, mig := range got {
		if mig.file != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, mig.file, want[i])
		}
	}
}

func TestOrderMigrations_DuplicateVersion(t *testing.T) {
	_, err := orderMigrations([]string{
		"000001_margin_core.up.sql",
		"000001_other.up.sql",
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate migration version") {
		t.Errorf("err = %v, want duplicate version error", err)
	}
}

func TestMigrationVersion(t *testing.T) {
	v, err := migrationVersion("000042_add_column.up.sql")
	if err != nil || v != "000042" {
		t.Errorf("version = %q, %v, want 000042", v, err)
	}

	for _, bad := range []string{"no-version.up.sql", "_leading.up.sql", "v1_tagged.up.sql"} {
		if _, err := migrationVersion(bad); err == nil {
			t.Errorf("migrationVersion(%q) should be rejected", bad)
		}
	}
}
