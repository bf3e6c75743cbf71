// Package split trims a chat store down to the rows newer than a cut-off.
package split

import (
	"fmt"
	"strconv"

	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/schema"
	"github.com/sirupsen/logrus"
)

// TableResult is the number of rows removed from one table.
type TableResult struct {
	Table           string `json:"table" yaml:"table"`
	TimestampColumn string `json:"timestamp_column,omitempty" yaml:"timestamp_column,omitempty"`
	Deleted         int64  `json:"deleted" yaml:"deleted"`
}

// Result summarizes a split.
type Result struct {
	Database string        `json:"database" yaml:"database"`
	Before   int64         `json:"before" yaml:"before"`
	Tables   []TableResult `json:"tables" yaml:"tables"`
}

// Deleted returns the total number of rows removed.
func (r *Result) Deleted() int64 {
	var n int64
	for _, t := range r.Tables {
		n += t.Deleted
	}
	return n
}

// Split deletes every row whose timestamp column is older than before, for
// each table of s that declares one. Tables without a timestamp are left
// alone.
func Split(s *schema.Schema, store db.Deleter, before int64, log logrus.FieldLogger) (*Result, error) {
	if log == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		log = logger
	}

	result := &Result{Database: store.Path(), Before: before}
	for _, table := range s.Tables() {
		ts := table.TimestampColumn()
		if ts == "" {
			continue
		}
		if err := db.RequireTable(store, table.Name()); err != nil {
			return result, err
		}

		where := db.QuoteIdent(ts) + " < " + strconv.FormatInt(before, 10)
		deleted, err := store.Delete(table.Name(), where)
		if err != nil {
			return result, fmt.Errorf("failed to split %s: %w", table.Name(), err)
		}
		result.Tables = append(result.Tables, TableResult{
			Table:           table.Name(),
			TimestampColumn: ts,
			Deleted:         deleted,
		})
		log.WithFields(logrus.Fields{"table": table.Name(), "deleted": deleted}).Info("deleted old rows")
	}
	return result, nil
}
