package store

import (
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
)

// UnitKind classifies a migration unit.
type UnitKind int

const (
	// SchemaBatch is a general statement batch executed as one script.
	SchemaBatch UnitKind = iota
	// ColumnAddition only adds columns; each column is applied
	// individually after introspecting the target table.
	ColumnAddition
)

// ColumnAdd describes one ADD COLUMN statement in a migration unit.
type ColumnAdd struct {
	Table      string
	Column     string
	Definition string
}

// Unit is the typed representation of one migration file. Parsing happens
// once at load time; the engine never re-scans SQL text while applying.
type Unit struct {
	Name       string
	Kind       UnitKind
	Statements []string    // SchemaBatch: all statements in order.
	Columns    []ColumnAdd // ColumnAddition: the columns to add.
	Extra      []string    // ColumnAddition: non-ALTER statements in the same unit.
}

var addColumnRe = regexp.MustCompile(`(?is)^ALTER\s+TABLE\s+(\w+)\s+ADD\s+(?:COLUMN\s+)?(\w+)\s+(.+)$`)

// ParseUnit turns raw migration SQL into a typed Unit. A unit containing
// at least one ADD COLUMN statement is classified as ColumnAddition;
// everything else is a SchemaBatch.
func ParseUnit(name, sqlText string) Unit {
	u := Unit{Name: name}

	for _, stmt := range splitStatements(sqlText) {
		m := addColumnRe.FindStringSubmatch(stmt)
		if m == nil {
			u.Statements = append(u.Statements, stmt)
			continue
		}
		u.Columns = append(u.Columns, ColumnAdd{
			Table:      m[1],
			Column:     m[2],
			Definition: strings.TrimSpace(m[3]),
		})
	}

	if len(u.Columns) > 0 {
		u.Kind = ColumnAddition
		u.Extra = u.Statements
		u.Statements = nil
	}
	return u
}

// LoadUnits reads every .sql file under dir in fsys and parses it into a
// Unit. Units are returned in lexicographic filename order, which is the
// order they are applied in.
func LoadUnits(fsys fs.FS, dir string) ([]Unit, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %q: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	units := make([]Unit, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", name, err)
		}
		units = append(units, ParseUnit(name, string(data)))
	}
	return units, nil
}

// splitStatements breaks a migration script into individual statements,
// dropping comment lines and empty fragments. Migration files are under
// our control and never contain semicolons inside string literals.
func splitStatements(sqlText string) []string {
	var kept []string
	for _, line := range strings.Split(sqlText, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, raw := range strings.Split(strings.Join(kept, "\n"), ";") {
		stmt := strings.TrimSpace(raw)
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
