// Package verify checks that every declared reference of a chat store points
// at a row that exists.
package verify

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/schema"
	"github.com/sirupsen/logrus"
)

// Options configures Verify.
type Options struct {
	// Strict turns violations of non-ignorable references into errors.
	Strict bool
	Logger logrus.FieldLogger
}

// Result is the outcome of checking one reference column.
type Result struct {
	Table   string `json:"table" yaml:"table"`
	Column  string `json:"column" yaml:"column"`
	Target  string `json:"target" yaml:"target"`
	Ignored bool   `json:"ignored,omitempty" yaml:"ignored,omitempty"`
	// Rows is the number of rows of Table.
	Rows int `json:"rows" yaml:"rows"`
	// Expected is the number of distinct non-null, non-zero values in Column.
	Expected int `json:"expected" yaml:"expected"`
	// Found is how many of those values exist as identifiers of Target.
	Found   int64    `json:"found" yaml:"found"`
	Missing []string `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// Consistent reports whether every referenced value was found.
func (r Result) Consistent() bool {
	return r.Found == int64(r.Expected)
}

// Report collects the results for one database.
type Report struct {
	Database string   `json:"database" yaml:"database"`
	Strict   bool     `json:"strict" yaml:"strict"`
	Results  []Result `json:"results" yaml:"results"`
}

// Consistent reports whether every checked reference was consistent.
func (r *Report) Consistent() bool {
	for _, res := range r.Results {
		if !res.Consistent() {
			return false
		}
	}
	return true
}

// Violations returns the inconsistent results.
func (r *Report) Violations() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Consistent() {
			out = append(out, res)
		}
	}
	return out
}

// ConsistencyError reports a reference column whose values are missing from
// the referenced table.
type ConsistencyError struct {
	Database string
	Result   Result
	// TargetRows and TableRows are the total row counts of both tables.
	TargetRows int64
	TableRows  int64
}

func (e *ConsistencyError) Error() string {
	r := e.Result
	return fmt.Sprintf("database %s is not consistent: column %s.%s references table %s, where %d entries were expected but only %d were found (total rows: %s %d, %s %d); missing=[%s]",
		e.Database, r.Table, r.Column, r.Target, r.Expected, r.Found,
		r.Target, e.TargetRows, r.Table, e.TableRows,
		strings.Join(r.Missing, ", "))
}

// Verify checks every reference declared by s against database. Violations of
// references marked to ignore consistency, and every violation when
// opts.Strict is false, are logged as warnings. Otherwise the first violation
// stops the check with a *ConsistencyError; the partial report is returned
// alongside it.
func Verify(s *schema.Schema, database db.Reader, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		log = logger
	}
	log = log.WithField("database", database.Path())

	report := &Report{Database: database.Path(), Strict: opts.Strict}

	for _, table := range s.Tables() {
		refs := table.References()
		if len(refs) == 0 {
			continue
		}
		columns, err := database.Columns(table.Name())
		if err != nil {
			return report, err
		}
		rows, err := database.QueryAll(table.Name(), "")
		if err != nil {
			return report, err
		}

		for _, ref := range refs {
			res, err := checkReference(database, table, ref, columns, rows)
			if err != nil {
				return report, err
			}
			report.Results = append(report.Results, res)

			fields := logrus.Fields{
				"table":  res.Table,
				"column": res.Column,
				"target": res.Target,
			}
			if res.Consistent() {
				log.WithFields(fields).WithField("values", res.Expected).Debug("reference consistent")
				continue
			}

			targetRows, err := database.Count(res.Target, "")
			if err != nil {
				return report, err
			}
			cerr := &ConsistencyError{
				Database:   database.Path(),
				Result:     res,
				TargetRows: targetRows,
				TableRows:  int64(len(rows)),
			}
			if opts.Strict && !ref.IgnoreConsistency {
				return report, cerr
			}
			log.WithFields(fields).WithFields(logrus.Fields{
				"expected": res.Expected,
				"found":    res.Found,
				"ignored":  ref.IgnoreConsistency,
			}).Warn(cerr.Error())
		}
	}

	return report, nil
}

func checkReference(database db.Reader, table *schema.Table, ref schema.Reference, columns []string, rows []*db.Row) (Result, error) {
	res := Result{
		Table:   table.Name(),
		Column:  ref.Column,
		Target:  ref.Target.Name(),
		Ignored: ref.IgnoreConsistency,
		Rows:    len(rows),
	}

	idx := db.ColumnIndex(columns, ref.Column)
	if idx < 0 {
		return res, fmt.Errorf("table %s has no reference column %s", table.Name(), ref.Column)
	}

	values := distinctValues(rows, idx)
	res.Expected = len(values)
	if len(values) == 0 {
		return res, nil
	}

	idCol := ref.Target.IDColumn()
	where := db.QuoteIdent(idCol) + " IN (" + encodeList(values) + ")"
	found, err := database.Count(res.Target, where)
	if err != nil {
		return res, err
	}
	res.Found = found
	if res.Consistent() {
		return res, nil
	}

	targetCols, err := database.Columns(res.Target)
	if err != nil {
		return res, err
	}
	targetIdx := db.ColumnIndex(targetCols, idCol)
	existing, err := database.QueryAll(res.Target, where)
	if err != nil {
		return res, err
	}
	present := make(map[string]bool, len(existing))
	for _, r := range existing {
		present[r.Get(targetIdx).Value] = true
	}
	for _, v := range values {
		if !present[v.Value] {
			res.Missing = append(res.Missing, v.Value)
		}
	}
	sortNumeric(res.Missing)
	return res, nil
}

// distinctValues returns the distinct non-null values of column idx, in
// first-seen order. Zero means "no reference" and is skipped.
func distinctValues(rows []*db.Row, idx int) []db.Cell {
	seen := make(map[string]bool)
	var out []db.Cell
	for _, r := range rows {
		c := r.Get(idx)
		if c.IsNull() || c.Value == "0" || seen[c.Value] {
			continue
		}
		seen[c.Value] = true
		out = append(out, c)
	}
	return out
}

func encodeList(values []db.Cell) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = db.EncodeCell(v)
	}
	return strings.Join(parts, ", ")
}

// sortNumeric orders integer values numerically and anything else after them.
func sortNumeric(values []string) {
	sort.SliceStable(values, func(i, j int) bool {
		a, aerr := strconv.ParseInt(values[i], 10, 64)
		b, berr := strconv.ParseInt(values[j], 10, 64)
		switch {
		case aerr == nil && berr == nil:
			return a < b
		case aerr == nil:
			return true
		case berr == nil:
			return false
		default:
			return values[i] < values[j]
		}
	})
}
