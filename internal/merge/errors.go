package merge

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// ConfigurationError reports unusable run parameters, such as an input set
// with fewer than two databases.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

// SchemaMismatchError reports a table whose columns cannot be aligned between
// source and destination.
type SchemaMismatchError struct {
	Table              string
	Source             string
	Destination        string
	SourceColumns      []string
	DestinationColumns []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("table %s mismatch between %s and %s (different app versions?)\n- %s columns: %s\n- %s columns: %s",
		e.Table,
		e.Source, e.Destination,
		e.Source, strings.Join(e.SourceColumns, ", "),
		e.Destination, strings.Join(e.DestinationColumns, ", "))
}

// Diff renders the two column lists as a unified diff, destination first.
func (e *SchemaMismatchError) Diff() string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        lines(e.DestinationColumns),
		B:        lines(e.SourceColumns),
		FromFile: e.Destination,
		ToFile:   e.Source,
		Context:  2,
	})
	if err != nil {
		return ""
	}
	return diff
}

func lines(items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s + "\n"
	}
	return out
}

// BatchInsertError reports a chunk that could not be inserted into a table
// that does not tolerate losing rows.
type BatchInsertError struct {
	Table string
	// Chunk is the zero-based index of the failing chunk.
	Chunk int
	Size  int
	// Rows holds the literal form of the failing rows.
	Rows []string
	Err  error
}

func (e *BatchInsertError) Error() string {
	return fmt.Sprintf("insert into %s failed for batch %d of %d rows: %v", e.Table, e.Chunk, e.Size, e.Err)
}

func (e *BatchInsertError) Unwrap() error { return e.Err }
