package merge

import (
	"fmt"
	"strings"

	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/schema"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the number of rows per insert statement unless a table
// asks for less.
const DefaultBatchSize = 500

// Mode selects how much of the merge pipeline runs.
type Mode string

const (
	// ModeCombine remaps identifiers, rewrites references, collapses
	// duplicates and clears excluded columns.
	ModeCombine Mode = "combine"
	// ModeAppend inserts source rows unmodified.
	ModeAppend Mode = "append"
)

// ParseMode parses a mode name. The empty string selects ModeCombine.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeCombine:
		return ModeCombine, nil
	case ModeAppend:
		return ModeAppend, nil
	default:
		return "", &ConfigurationError{Reason: fmt.Sprintf("unknown merge mode %q (expected combine or append)", s)}
	}
}

// Options configures an Engine.
type Options struct {
	BatchSize int
	Mode      Mode
	Logger    logrus.FieldLogger
	Metrics   *Metrics
}

// Engine merges source databases into a destination, one table at a time in
// schema order.
type Engine struct {
	schema  *schema.Schema
	opts    Options
	log     logrus.FieldLogger
	metrics *Metrics
}

// NewEngine validates opts and returns an engine for s.
func NewEngine(s *schema.Schema, opts Options) (*Engine, error) {
	if s == nil {
		return nil, &ConfigurationError{Reason: "no schema"}
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize < 0 {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("batch size must be positive, got %d", opts.BatchSize)}
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode
	if opts.Logger == nil {
		logger := logrus.New()
		logger.SetLevel(logrus.WarnLevel)
		opts.Logger = logger
	}

	return &Engine{
		schema:  s,
		opts:    opts,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

// Merge copies every table of source into dest. The returned report covers
// the tables processed so far, including the failing one, even when an error
// is returned. Tables committed before a failure stay in dest.
func (e *Engine) Merge(source db.Reader, dest db.Store) (*SourceReport, error) {
	report := &SourceReport{Source: source.Path()}
	mappings := make(map[string]*Mapping, e.schema.Len())

	log := e.log.WithFields(logrus.Fields{
		"source": source.Path(),
		"mode":   e.opts.Mode,
	})
	log.Info("merging database")

	for _, table := range e.schema.Tables() {
		tr := &TableReport{Table: table.Name()}
		report.Tables = append(report.Tables, tr)

		tm := &tableMerge{
			engine:   e,
			table:    table,
			source:   source,
			dest:     dest,
			mappings: mappings,
			report:   tr,
			log:      log.WithField("table", table.Name()),
		}
		if err := tm.run(); err != nil {
			return report, err
		}
	}

	return report, nil
}

// tableMerge carries the state of one table through the merge steps.
type tableMerge struct {
	engine   *Engine
	table    *schema.Table
	source   db.Reader
	dest     db.Store
	mappings map[string]*Mapping
	report   *TableReport
	log      logrus.FieldLogger

	columns  []string
	rows     []*db.Row
	destCols []string
	destRows []*db.Row
	mapping  *Mapping
}

func (tm *tableMerge) run() error {
	name := tm.table.Name()
	if err := db.RequireTable(tm.source, name); err != nil {
		return err
	}
	if err := db.RequireTable(tm.dest, name); err != nil {
		return err
	}

	if err := tm.load(); err != nil {
		return err
	}
	tm.report.Processed = int64(len(tm.rows))
	tm.engine.metrics.addRows(name, OutcomeProcessed, tm.report.Processed)

	if tm.engine.opts.Mode == ModeCombine {
		if err := tm.rewriteReferences(false); err != nil {
			return err
		}
		if tm.table.HasIdentifier() {
			if err := tm.remapIdentifiers(); err != nil {
				return err
			}
		}
		if err := tm.rewriteReferences(true); err != nil {
			return err
		}
		tm.excludeColumns()
	}

	err := tm.insert()
	tm.log.WithFields(logrus.Fields{
		"processed": tm.report.Processed,
		"inserted":  tm.report.Inserted,
		"skipped":   tm.report.Skipped,
		"failed":    tm.report.Failed,
	}).Info("table merged")
	return err
}

// load reads both sides and aligns the source rows to a column list the
// destination accepts.
func (tm *tableMerge) load() error {
	name := tm.table.Name()
	srcCols, err := tm.source.Columns(name)
	if err != nil {
		return err
	}
	destCols, err := tm.dest.Columns(name)
	if err != nil {
		return err
	}

	var drop []int
	for i, c := range srcCols {
		if db.ColumnIndex(destCols, c) < 0 {
			drop = append(drop, i)
		}
	}
	if len(srcCols)-len(drop) != len(destCols) {
		return &SchemaMismatchError{
			Table:              name,
			Source:             tm.source.Path(),
			Destination:        tm.dest.Path(),
			SourceColumns:      srcCols,
			DestinationColumns: destCols,
		}
	}

	rows, err := tm.source.QueryAll(name, "")
	if err != nil {
		return err
	}

	columns := srcCols
	if len(drop) > 0 {
		columns = make([]string, 0, len(destCols))
		for i, c := range srcCols {
			if !containsInt(drop, i) {
				columns = append(columns, c)
			} else {
				tm.report.DroppedColumns = append(tm.report.DroppedColumns, c)
			}
		}
		for _, r := range rows {
			r.Remove(drop)
		}
		tm.log.WithField("columns", tm.report.DroppedColumns).Warn("dropping source columns missing from destination")
	}

	tm.columns = columns
	tm.rows = rows
	tm.destCols = destCols
	return nil
}

// rewriteReferences maps reference columns through their target's mapping.
// Cross-table references run before the table's own identifiers are remapped,
// self references after.
func (tm *tableMerge) rewriteReferences(self bool) error {
	for _, ref := range tm.table.References() {
		if ref.IsSelf(tm.table) != self {
			continue
		}
		target := ref.Target.Name()
		m, ok := tm.mappings[target]
		if self {
			m, ok = tm.mapping, tm.mapping != nil
		}
		if !ok {
			return fmt.Errorf("table %s references %s but no identifier mapping exists for it", tm.table.Name(), target)
		}

		idx := db.ColumnIndex(tm.columns, ref.Column)
		if idx < 0 {
			return fmt.Errorf("table %s has no reference column %s", tm.table.Name(), ref.Column)
		}

		rewritten := 0
		for i, r := range tm.rows {
			id, present, err := r.Int64(idx)
			if err != nil {
				return fmt.Errorf("%s row %d column %s: %w", tm.table.Name(), i, ref.Column, err)
			}
			// NULL means no reference; zero and negative values are sentinels.
			if !present || id <= 0 {
				continue
			}
			r.SetInt64(idx, m.Resolve(id))
			rewritten++
		}
		tm.log.WithFields(logrus.Fields{
			"column":    ref.Column,
			"target":    target,
			"rewritten": rewritten,
		}).Debug("rewrote reference column")
	}
	return nil
}

// remapIdentifiers builds the table's mapping and applies it to every row's
// own identifier.
func (tm *tableMerge) remapIdentifiers() error {
	name := tm.table.Name()
	idCol := tm.table.IDColumn()
	idx := db.ColumnIndex(tm.columns, idCol)
	if idx < 0 {
		return fmt.Errorf("table %s has no identifier column %s", name, idCol)
	}
	destIdx := db.ColumnIndex(tm.destCols, idCol)

	destRows, err := tm.dest.QueryAll(name, "")
	if err != nil {
		return err
	}
	tm.destRows = destRows

	offset, err := ComputeOffset(destRows, destIdx)
	if err != nil {
		return fmt.Errorf("failed to compute offset of %s: %w", name, err)
	}
	m := NewMapping(offset)

	// Abort tables leave duplicate handling to the storage engine.
	if tm.table.ConflictPolicy() != schema.ConflictAbort {
		if err := tm.collapseDuplicates(m, idx, destIdx); err != nil {
			return err
		}
	}

	for i, r := range tm.rows {
		id, ok, err := r.Int64(idx)
		if err != nil {
			return fmt.Errorf("%s row %d: %w", name, i, err)
		}
		if !ok {
			return fmt.Errorf("%s row %d has a NULL %s", name, i, idCol)
		}
		r.SetInt64(idx, m.Resolve(id))
	}

	tm.mapping = m
	tm.mappings[name] = m
	tm.report.Offset = offset
	tm.report.Overrides = m.Overrides()
	tm.log.WithFields(logrus.Fields{
		"offset":    offset,
		"overrides": m.Overrides(),
	}).Debug("applied identifier mapping")
	return nil
}

// collapseDuplicates registers an override for every source row that agrees
// with an existing destination row on all columns of a uniqueness constraint.
func (tm *tableMerge) collapseDuplicates(m *Mapping, idx, destIdx int) error {
	for _, constraint := range tm.table.UniqueConstraints() {
		cname := schema.ConstraintName(constraint)

		srcKey, err := keyIndices(tm.columns, constraint)
		if err != nil {
			return fmt.Errorf("table %s: %w", tm.table.Name(), err)
		}
		destKey, err := keyIndices(tm.destCols, constraint)
		if err != nil {
			return fmt.Errorf("table %s: %w", tm.table.Name(), err)
		}

		existing := make(map[string]int64, len(tm.destRows))
		for _, r := range tm.destRows {
			key, ok := rowKey(r, destKey)
			if !ok {
				continue
			}
			id, present, err := r.Int64(destIdx)
			if err != nil || !present {
				continue
			}
			if _, seen := existing[key]; !seen {
				existing[key] = id
			}
		}

		found := 0
		for i, r := range tm.rows {
			key, ok := rowKey(r, srcKey)
			if !ok {
				continue
			}
			destID, dup := existing[key]
			if !dup {
				continue
			}
			srcID, present, err := r.Int64(idx)
			if err != nil {
				return fmt.Errorf("%s row %d: %w", tm.table.Name(), i, err)
			}
			if !present {
				continue
			}
			m.Override(srcID, destID)
			found++
		}

		if found > 0 {
			if tm.report.Duplicates == nil {
				tm.report.Duplicates = make(map[string]int)
			}
			tm.report.Duplicates[cname] = found
			tm.engine.metrics.addDuplicates(tm.table.Name(), cname, found)
			tm.log.WithFields(logrus.Fields{
				"constraint": cname,
				"duplicates": found,
			}).Info("collapsing duplicate rows")
		}
	}
	return nil
}

func (tm *tableMerge) excludeColumns() {
	for _, col := range tm.table.ExcludedColumns() {
		idx := db.ColumnIndex(tm.columns, col)
		if idx < 0 {
			continue
		}
		for _, r := range tm.rows {
			r.SetNull(idx)
		}
		tm.log.WithField("column", col).Debug("cleared excluded column")
	}
}

func keyIndices(columns, constraint []string) ([]int, error) {
	idx := make([]int, len(constraint))
	for i, c := range constraint {
		idx[i] = db.ColumnIndex(columns, c)
		if idx[i] < 0 {
			return nil, fmt.Errorf("unique column %s not found", c)
		}
	}
	return idx, nil
}

// rowKey encodes the constrained cells of r. NULL never matches anything.
func rowKey(r *db.Row, indices []int) (string, bool) {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		c := r.Get(idx)
		if c.IsNull() {
			return "", false
		}
		parts[i] = db.EncodeCell(c)
	}
	return strings.Join(parts, "\x1f"), true
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
