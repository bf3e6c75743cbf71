// Package schema describes the tables msgmerge knows how to merge.
//
// A Schema is an ordered list of tables. The order is the processing order of
// the merge engine: every table a non-self reference points to is declared
// before the table holding the reference, so its identifier mapping exists
// by the time the referrer is rewritten.
package schema

import (
	"fmt"
	"strings"
)

// DefaultIDColumn is the identifier column of every modeled chat-store table.
const DefaultIDColumn = "_id"

// ConflictPolicy controls how an insert reacts to a uniqueness violation.
type ConflictPolicy int

const (
	// ConflictSkip omits rows that violate a uniqueness constraint.
	ConflictSkip ConflictPolicy = iota
	// ConflictAbort fails the whole insert statement.
	ConflictAbort
)

func (p ConflictPolicy) String() string {
	switch p {
	case ConflictAbort:
		return "abort"
	case ConflictSkip:
		return "skip"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}

// MarshalText renders the policy for JSON/YAML reports.
func (p ConflictPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Reference is a column whose integer value is another row's identifier.
type Reference struct {
	Column string
	Target *Table
	// IgnoreConsistency downgrades verification failures for this column to
	// warnings. Some columns are inconsistent even in untouched databases.
	IgnoreConsistency bool
}

// IsSelf reports whether the reference points back into its own table.
func (r Reference) IsSelf(owner *Table) bool {
	return r.Target == owner
}

// Table is an immutable table descriptor. Tables are only created through a
// Builder.
type Table struct {
	name               string
	hasID              bool
	idColumn           string
	refs               []Reference
	uniques            [][]string
	excludes           []string
	maxBatch           int
	dropFailingBatches bool
	policy             ConflictPolicy
	timestamp          string
}

func (t *Table) Name() string { return t.name }

// HasIdentifier reports whether rows carry their own integer identifier that
// the merge engine must remap.
func (t *Table) HasIdentifier() bool { return t.hasID }

func (t *Table) IDColumn() string { return t.idColumn }

// References returns the declared references in declaration order.
func (t *Table) References() []Reference {
	out := make([]Reference, len(t.refs))
	copy(out, t.refs)
	return out
}

// UniqueConstraints returns each constraint as its list of column names.
func (t *Table) UniqueConstraints() [][]string {
	out := make([][]string, len(t.uniques))
	for i, u := range t.uniques {
		out[i] = append([]string(nil), u...)
	}
	return out
}

func (t *Table) ExcludedColumns() []string {
	return append([]string(nil), t.excludes...)
}

// MaxBatchSize is the largest insert chunk for this table; 0 means no limit.
func (t *Table) MaxBatchSize() int { return t.maxBatch }

func (t *Table) DropFailingBatches() bool { return t.dropFailingBatches }

func (t *Table) ConflictPolicy() ConflictPolicy { return t.policy }

// TimestampColumn is the column used by the split utility, or "".
func (t *Table) TimestampColumn() string { return t.timestamp }

func (t *Table) String() string { return t.name }

// ConstraintName joins constraint columns for reporting.
func ConstraintName(columns []string) string {
	return strings.Join(columns, ",")
}

// Schema is an ordered, validated list of tables.
type Schema struct {
	name   string
	tables []*Table
	byName map[string]*Table
}

func (s *Schema) Name() string { return s.name }

// Tables returns the tables in processing order.
func (s *Schema) Tables() []*Table {
	return append([]*Table(nil), s.tables...)
}

// Table looks up a table by name.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Names returns the table names in processing order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.tables))
	for i, t := range s.tables {
		names[i] = t.name
	}
	return names
}

// Len returns the number of tables.
func (s *Schema) Len() int { return len(s.tables) }
