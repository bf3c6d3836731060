package migrations

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsSortsAndPairsUpDown(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/postgres/000002_two.up.sql":   {Data: []byte("SELECT 2;")},
		"sql/postgres/000002_two.down.sql": {Data: []byte("SELECT -2;")},
		"sql/postgres/000001_one.up.sql":   {Data: []byte("SELECT 1;")},
		"sql/postgres/000001_one.down.sql": {Data: []byte("SELECT -1;")},
		"sql/postgres/README.md":           {Data: []byte("ignored")},
	}

	items, err := loadMigrations(fsys, "sql/postgres")
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d", len(items))
	}
	if items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected migration order: %+v", items)
	}
	if items[0].Name != "one" || items[1].DownSQL != "SELECT -2;" {
		t.Fatalf("unexpected migration content: %+v", items)
	}
}

func TestLoadMigrationsErrorsWhenDownMissing(t *testing.T) {
	fsys := fstest.MapFS{
		"sql/duckdb/000001_one.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadMigrations(fsys, "sql/duckdb")
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "missing down SQL") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewRunnerRejectsUnknownDialect(t *testing.T) {
	if _, err := NewRunner("sqlite"); err == nil {
		t.Fatal("expected error for unknown dialect")
	}
	runner, err := NewRunner(DialectDuckDB)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	if runner.dir != "sql/duckdb" {
		t.Fatalf("runner.dir = %q", runner.dir)
	}
}

func TestEmbeddedDialectsShipTheSameVersions(t *testing.T) {
	pg, err := loadMigrations(embeddedFS, "sql/postgres")
	if err != nil {
		t.Fatalf("load postgres migrations: %v", err)
	}
	duck, err := loadMigrations(embeddedFS, "sql/duckdb")
	if err != nil {
		t.Fatalf("load duckdb migrations: %v", err)
	}
	if len(pg) != len(duck) {
		t.Fatalf("postgres has %d migrations, duckdb has %d", len(pg), len(duck))
	}
	for i := range pg {
		if pg[i].Version != duck[i].Version || pg[i].Name != duck[i].Name {
			t.Fatalf("migration %d differs: %d_%s vs %d_%s", i, pg[i].Version, pg[i].Name, duck[i].Version, duck[i].Name)
		}
	}
}

func TestMigrationName(t *testing.T) {
	if got := migrationName("000001_demo_schema.up.sql"); got != "demo_schema" {
		t.Fatalf("migrationName() = %q", got)
	}
	if got := migrationName("000002_demo_seed.down.sql"); got != "demo_seed" {
		t.Fatalf("migrationName() = %q", got)
	}
}
