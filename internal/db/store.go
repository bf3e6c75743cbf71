package db

import (
	"fmt"

	"github.com/lherron/msgmerge/internal/schema"
)

// Reader is the read side of a database as seen by the merge engine and the
// consistency verifier.
type Reader interface {
	Path() string
	Tables() ([]string, error)
	Columns(table string) ([]string, error)
	Count(table, where string) (int64, error)
	QueryAll(table, where string) ([]*Row, error)
}

// Store is a Reader that also accepts batched inserts.
type Store interface {
	Reader
	Insert(table string, columns []string, rows []*Row, policy schema.ConflictPolicy) (int64, error)
}

// Deleter is a Reader that can delete rows.
type Deleter interface {
	Reader
	Delete(table, where string) (int64, error)
}

var (
	_ Store   = (*DB)(nil)
	_ Deleter = (*DB)(nil)
)

// MissingTableError reports an expected table that a database lacks. It
// usually means the database was written by an app version whose layout is
// not modeled.
type MissingTableError struct {
	Database string
	Table    string
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("%s does not contain expected table %s (unexpected app version?)", e.Database, e.Table)
}

// RequireTable returns a *MissingTableError when r has no table named table.
func RequireTable(r Reader, table string) error {
	tables, err := r.Tables()
	if err != nil {
		return err
	}
	for _, t := range tables {
		if t == table {
			return nil
		}
	}
	return &MissingTableError{Database: r.Path(), Table: table}
}

// ColumnIndex returns the position of name in columns, or -1.
func ColumnIndex(columns []string, name string) int {
	for i, c := range columns {
		if c == name {
			return i
		}
	}
	return -1
}
