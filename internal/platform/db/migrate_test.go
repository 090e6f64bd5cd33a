package db

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMigrations(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestLoadMigrations(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_shared.sql":  "CREATE TABLE facility (id UUID PRIMARY KEY);",
		"002_visit.sql":   "CREATE TABLE visit (id UUID PRIMARY KEY);",
		"003_billing.sql": "CREATE TABLE billable_item (id UUID PRIMARY KEY);",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "001_shared.sql" {
		t.Errorf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[0].SQL != "CREATE TABLE facility (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
	if migrations[1].Version != 2 || migrations[2].Version != 3 {
		t.Errorf("versions out of order: %d, %d", migrations[1].Version, migrations[2].Version)
	}
}

func TestLoadMigrations_SortedByVersionNotFilename(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"010_reporting.sql": "SELECT 10;",
		"002_visit.sql":     "SELECT 2;",
		"001_shared.sql":    "SELECT 1;",
		"005_orders.sql":    "SELECT 5;",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	want := []int{1, 2, 5, 10}
	if len(migrations) != len(want) {
		t.Fatalf("expected %d migrations, got %d", len(want), len(migrations))
	}
	for i, version := range want {
		if migrations[i].Version != version {
			t.Errorf("migration[%d]: expected version %d, got %d", i, version, migrations[i].Version)
		}
	}
}

func TestLoadMigrations_SkipsNonVersionedFiles(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_shared.sql":  "SELECT 1;",
		"readme.sql":      "-- no version prefix",
		"notes.txt":       "not sql at all",
		"abc_nope.sql":    "-- non-numeric prefix",
		"002_billing.sql": "SELECT 2;",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 versioned migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[1].Version != 2 {
		t.Errorf("unexpected versions: %d, %d", migrations[0].Version, migrations[1].Version)
	}
}

func TestLoadMigrations_EmptyDir(t *testing.T) {
	migrations, err := NewMigrator(nil, t.TempDir()).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}
	if len(migrations) != 0 {
		t.Errorf("expected no migrations, got %d", len(migrations))
	}
}

func TestLoadMigrations_MissingDir(t *testing.T) {
	if _, err := NewMigrator(nil, "/no/such/migrations/dir").LoadMigrations(); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestParseVersion(t *testing.T) {
	cases := []struct {
		name string
		want int
		ok   bool
	}{
		{"001_shared.sql", 1, true},
		{"042_late_addition.sql", 42, true},
		{"readme.sql", 0, false},
		{"abc_prefix.sql", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseVersion(tc.name)
		if got != tc.want || ok != tc.ok {
			t.Errorf("parseVersion(%q) = %d, %v; want %d, %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestMigrationStatus_PendingHasNoTimestamp(t *testing.T) {
	dir := t.TempDir()
	writeMigrations(t, dir, map[string]string{
		"001_shared.sql": "SELECT 1;",
		"002_visit.sql":  "SELECT 2;",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations: %v", err)
	}

	// Status derives its rows from the loaded set joined against the applied
	// map; a version absent from the map stays pending with no timestamp.
	applied := map[int]bool{1: true}
	var statuses []MigrationStatus
	for _, mig := range migrations {
		statuses = append(statuses, MigrationStatus{
			Version: mig.Version,
			Name:    mig.Name,
			Applied: applied[mig.Version],
		})
	}

	if !statuses[0].Applied {
		t.Error("expected version 1 applied")
	}
	if statuses[1].Applied || statuses[1].AppliedAt != nil {
		t.Errorf("expected version 2 pending with nil timestamp, got %+v", statuses[1])
	}
}
