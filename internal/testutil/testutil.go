package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/schema"
)

// TempDB creates a temporary SQLite database named test.db and runs ddl on it.
func TempDB(t *testing.T, ddl ...string) (*db.DB, string) {
	t.Helper()
	return NewDB(t, t.TempDir(), "test.db", ddl...)
}

// NewDB creates dir/name, runs ddl on it and closes it when the test ends.
func NewDB(t *testing.T, dir, name string, ddl ...string) (*db.DB, string) {
	t.Helper()

	dbPath := filepath.Join(dir, name)
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})

	Exec(t, database, ddl...)
	return database, dbPath
}

// Exec runs each statement, failing the test on the first error.
func Exec(t *testing.T, database *db.DB, stmts ...string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := database.Exec(stmt); err != nil {
			t.Fatalf("Failed to exec %q: %v", stmt, err)
		}
	}
}

// IDs returns the identifiers of table in ascending order.
func IDs(t *testing.T, database *db.DB, table string) []int64 {
	t.Helper()
	rows, err := database.Query(fmt.Sprintf("SELECT _id FROM %s ORDER BY _id", db.QuoteIdent(table)))
	if err != nil {
		t.Fatalf("Failed to query ids of %s: %v", table, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("Failed to scan id of %s: %v", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Failed to iterate ids of %s: %v", table, err)
	}
	return ids
}

// Count returns the number of rows of table.
func Count(t *testing.T, database *db.DB, table string) int64 {
	t.Helper()
	n, err := database.Count(table, "")
	if err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}

// SchemaDDL returns CREATE TABLE statements for a minimal store of s: the
// identifier, every reference, unique, excluded and timestamp column, and a
// free-form data column. Uniqueness constraints are declared so conflicting
// inserts fail the way they do on real stores.
func SchemaDDL(s *schema.Schema) []string {
	stmts := make([]string, 0, s.Len())
	for _, table := range s.Tables() {
		var cols []string
		seen := make(map[string]bool)
		add := func(name, decl string) {
			if seen[name] {
				return
			}
			seen[name] = true
			cols = append(cols, db.QuoteIdent(name)+" "+decl)
		}

		if table.HasIdentifier() {
			add(table.IDColumn(), "INTEGER PRIMARY KEY AUTOINCREMENT")
		}
		for _, ref := range table.References() {
			add(ref.Column, "INTEGER")
		}
		for _, unique := range table.UniqueConstraints() {
			for _, c := range unique {
				add(c, "TEXT")
			}
		}
		for _, c := range table.ExcludedColumns() {
			add(c, "TEXT")
		}
		if ts := table.TimestampColumn(); ts != "" {
			add(ts, "INTEGER")
		}
		add("data", "TEXT")

		for _, unique := range table.UniqueConstraints() {
			quoted := make([]string, len(unique))
			for i, c := range unique {
				quoted[i] = db.QuoteIdent(c)
			}
			cols = append(cols, "UNIQUE ("+strings.Join(quoted, ", ")+")")
		}

		stmts = append(stmts, fmt.Sprintf("CREATE TABLE %s (%s)", db.QuoteIdent(table.Name()), strings.Join(cols, ", ")))
	}
	return stmts
}

// WriteFile writes content to a file in a temporary directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}
