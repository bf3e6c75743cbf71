package db

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lherron/msgmerge/internal/schema"
	"github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite database connection
type DB struct {
	*sql.DB
	path     string
	readOnly bool

	// columns memoizes PRAGMA table_info per table for the life of the handle.
	columns map[string][]string
}

// Open opens a SQLite database for writing at the given path and applies pragmas
func Open(path string) (*DB, error) {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	return open(path, path, false)
}

// OpenReadOnly opens an existing SQLite database without write access.
func OpenReadOnly(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return open(path, readOnlyDSN(path), true)
}

func open(path, dsn string, readOnly bool) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Pragmas are per connection.
	conn.SetMaxOpenConns(1)

	// Apply pragmas. foreign_keys stays off: chat stores carry sentinel ids.
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
	}
	if readOnly {
		pragmas = append(pragmas, "PRAGMA query_only = ON")
	} else {
		pragmas = append(pragmas, "PRAGMA synchronous = NORMAL")
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply pragma %q: %w", pragma, err)
		}
	}

	return &DB{
		DB:       conn,
		path:     path,
		readOnly: readOnly,
		columns:  make(map[string][]string),
	}, nil
}

func readOnlyDSN(path string) string {
	escaped := strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23").Replace(filepath.ToSlash(path))
	return "file:" + escaped + "?mode=ro"
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// ReadOnly reports whether the handle was opened with OpenReadOnly.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}

// Tables lists the user tables of the database.
func (db *DB) Tables() ([]string, error) {
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables of %s: %w", db.path, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

// Columns returns the column names of table in declaration order.
func (db *DB) Columns(table string) ([]string, error) {
	if cols, ok := db.columns[table]; ok {
		return append([]string(nil), cols...), nil
	}

	rows, err := db.Query("PRAGMA table_info(" + QuoteIdent(table) + ")")
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var (
			cid     int
			name    string
			ctype   string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, &MissingTableError{Database: db.path, Table: table}
	}

	db.columns[table] = cols
	return append([]string(nil), cols...), nil
}

// Count returns the number of rows in table matching the optional where clause.
func (db *DB) Count(table, where string) (int64, error) {
	query := "SELECT COUNT(*) FROM " + QuoteIdent(table) + whereClause(where)
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return count, nil
}

// QueryAll loads every row of table matching the optional where clause. Rows are
// aligned to Columns(table).
func (db *DB) QueryAll(table, where string) ([]*Row, error) {
	cols, err := db.Columns(table)
	if err != nil {
		return nil, err
	}

	// +col is a value-preserving no-op without a declared type, so the driver
	// hands back the stored value untouched; typeof(col) gives its storage class.
	selects := make([]string, 0, 2*len(cols))
	for _, c := range cols {
		selects = append(selects, "+"+QuoteIdent(c))
	}
	for _, c := range cols {
		selects = append(selects, "typeof("+QuoteIdent(c)+")")
	}
	query := "SELECT " + strings.Join(selects, ", ") + " FROM " + QuoteIdent(table) + whereClause(where)

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var result []*Row
	for rows.Next() {
		values := make([]any, len(cols))
		kinds := make([]string, len(cols))
		ptrs := make([]any, 0, 2*len(cols))
		for i := range values {
			ptrs = append(ptrs, &values[i])
		}
		for i := range kinds {
			ptrs = append(ptrs, &kinds[i])
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}
		cells := make([]Cell, len(values))
		for i, v := range values {
			cells[i] = cellFromValue(kinds[i], v)
		}
		result = append(result, NewRow(cells...))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", table, err)
	}
	return result, nil
}

func cellFromValue(storageClass string, v any) Cell {
	switch storageClass {
	case "null":
		return Null()
	case "blob":
		return Cell{Kind: KindBlob, Value: valueString(v)}
	case "text":
		return Cell{Kind: KindText, Value: valueString(v)}
	case "real":
		if f, ok := v.(float64); ok {
			return Cell{Kind: KindReal, Value: strconv.FormatFloat(f, 'g', -1, 64)}
		}
		return Cell{Kind: KindReal, Value: valueString(v)}
	default:
		if n, ok := v.(int64); ok {
			return Integer(n)
		}
		return Cell{Kind: KindInteger, Value: valueString(v)}
	}
}

func valueString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

// Insert writes rows into table as one multi-row statement and returns the
// number of rows actually inserted. With schema.ConflictSkip, rows violating
// a uniqueness constraint are left out instead of failing the statement.
func (db *DB) Insert(table string, columns []string, rows []*Row, policy schema.ConflictPolicy) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("insert into %s: no columns", table)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(QuoteIdent(table))
	b.WriteString(" (")
	b.WriteString(quoteIdents(columns))
	b.WriteString(") VALUES ")
	for i, r := range rows {
		if r.Len() != len(columns) {
			return 0, fmt.Errorf("insert into %s: row %d has %d values for %d columns", table, i, r.Len(), len(columns))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(EncodeRow(r))
	}
	if policy == schema.ConflictSkip {
		b.WriteString(" ON CONFLICT DO NOTHING")
	}

	res, err := db.Exec(b.String())
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: failed to read affected rows: %w", table, err)
	}
	return n, nil
}

// Delete removes rows of table matching where and returns how many were removed.
func (db *DB) Delete(table, where string) (int64, error) {
	res, err := db.Exec("DELETE FROM " + QuoteIdent(table) + whereClause(where))
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read deleted rows of %s: %w", table, err)
	}
	return n, nil
}

// ClearColumn sets column to NULL on every row of table and returns how many
// rows changed.
func (db *DB) ClearColumn(table, column string) (int64, error) {
	col := QuoteIdent(column)
	res, err := db.Exec("UPDATE " + QuoteIdent(table) + " SET " + col + " = NULL WHERE " + col + " IS NOT NULL")
	if err != nil {
		return 0, fmt.Errorf("failed to clear %s.%s: %w", table, column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read cleared rows of %s: %w", table, err)
	}
	return n, nil
}

// CopyTo duplicates the database file to dest, replacing anything there.
func (db *DB) CopyTo(dest string) error {
	return CopyFile(db.path, dest)
}

// CopyFile copies a database file byte for byte. Stale journal files next to
// dest are removed so they cannot be replayed onto the copy.
func CopyFile(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		if err := os.Remove(dest + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove stale %s%s: %w", dest, suffix, err)
		}
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s to %s: %w", src, dest, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", dest, err)
	}
	return nil
}

// SamePath reports whether two paths name the same file location.
func SamePath(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return aa == bb
}

// IsConstraintError reports whether err is a SQLite constraint violation.
func IsConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}

func whereClause(where string) string {
	if strings.TrimSpace(where) == "" {
		return ""
	}
	return " WHERE " + where
}
