package store

import (
	"testing"
	"testing/fstest"
)

func TestParseUnit_SchemaBatch(t *testing.T) {
	u := ParseUnit("0001_tables.sql", `
		-- comment line
		CREATE TABLE a (id INTEGER PRIMARY KEY);
		CREATE INDEX idx_a ON a(id);
	`)

	if u.Kind != SchemaBatch {
		t.Fatalf("Kind = %v, want SchemaBatch", u.Kind)
	}
	if len(u.Statements) != 2 {
		t.Fatalf("Statements = %d, want 2", len(u.Statements))
	}
	if len(u.Columns) != 0 {
		t.Errorf("Columns = %d, want 0", len(u.Columns))
	}
}

func TestParseUnit_ColumnAddition(t *testing.T) {
	u := ParseUnit("0002_cols.sql", `
		ALTER TABLE users ADD COLUMN department VARCHAR(100);
		ALTER TABLE users ADD COLUMN must_change_password BOOLEAN DEFAULT 0;
		CREATE INDEX idx_users_department ON users(department);
	`)

	if u.Kind != ColumnAddition {
		t.Fatalf("Kind = %v, want ColumnAddition", u.Kind)
	}
	if len(u.Columns) != 2 {
		t.Fatalf("Columns = %d, want 2", len(u.Columns))
	}
	c := u.Columns[0]
	if c.Table != "users" || c.Column != "department" || c.Definition != "VARCHAR(100)" {
		t.Errorf("Columns[0] = %+v", c)
	}
	if len(u.Extra) != 1 {
		t.Errorf("Extra = %d, want 1", len(u.Extra))
	}
}

func TestParseUnit_AddWithoutColumnKeyword(t *testing.T) {
	u := ParseUnit("0003.sql", "ALTER TABLE records ADD notes TEXT;")
	if u.Kind != ColumnAddition {
		t.Fatalf("Kind = %v, want ColumnAddition", u.Kind)
	}
	if u.Columns[0].Column != "notes" {
		t.Errorf("Column = %q, want notes", u.Columns[0].Column)
	}
}

func TestLoadUnits_LexicographicOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_b.sql":  {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"migrations/0001_a.sql":  {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"migrations/0010_c.sql":  {Data: []byte("CREATE TABLE c (id INTEGER);")},
		"migrations/notes.txt":   {Data: []byte("ignored")},
		"migrations/sub/x.sql":   {Data: []byte("ignored")},
		"migrations/0001_a.sql~": {Data: []byte("ignored")},
	}

	units, err := LoadUnits(fsys, "migrations")
	if err != nil {
		t.Fatalf("LoadUnits: %v", err)
	}

	want := []string{"0001_a.sql", "0002_b.sql", "0010_c.sql"}
	if len(units) != len(want) {
		t.Fatalf("units = %d, want %d", len(units), len(want))
	}
	for i, name := range want {
		if units[i].Name != name {
			t.Errorf("units[%d].Name = %q, want %q", i, units[i].Name, name)
		}
	}
}

func TestLoadUnits_Embedded(t *testing.T) {
	units, err := LoadUnits(migrationFiles, "migrations")
	if err != nil {
		t.Fatalf("LoadUnits embedded: %v", err)
	}
	if len(units) == 0 {
		t.Fatal("no embedded migration units")
	}
}
