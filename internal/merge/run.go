package merge

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/schema"
	"github.com/lherron/msgmerge/internal/verify"
	"github.com/sirupsen/logrus"
)

// RunOptions describes a complete merge of several inputs into one output.
type RunOptions struct {
	Schema *schema.Schema
	// Inputs are merged in order; the first one seeds the output verbatim.
	Inputs    []string
	Output    string
	BatchSize int
	Mode      Mode
	Logger    logrus.FieldLogger
	Metrics   *Metrics
	// RunID tags log lines and the report. A random one is used when empty.
	RunID string
}

// Run checks every input, copies the first one to the output, merges the
// others into it, syncs AUTOINCREMENT counters and checks the result. The
// report is returned together with any error and covers the work done so far.
func Run(opts RunOptions) (*Report, error) {
	if opts.Schema == nil {
		return nil, &ConfigurationError{Reason: "no schema selected"}
	}
	switch len(opts.Inputs) {
	case 0:
		return nil, &ConfigurationError{Reason: "no input databases found"}
	case 1:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("only 1 database found (%s), nothing to merge", opts.Inputs[0])}
	}
	if opts.Output == "" {
		return nil, &ConfigurationError{Reason: "no output path"}
	}
	for _, in := range opts.Inputs {
		if db.SamePath(in, opts.Output) {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("output %s is also an input", opts.Output)}
		}
	}

	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		logger = l
	}
	log := logger.WithField("run_id", opts.RunID)

	engine, err := NewEngine(opts.Schema, Options{
		BatchSize: opts.BatchSize,
		Mode:      opts.Mode,
		Logger:    log,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:     opts.RunID,
		Schema:    opts.Schema.Name(),
		Mode:      engine.opts.Mode,
		BatchSize: engine.opts.BatchSize,
		Inputs:    opts.Inputs,
		Output:    opts.Output,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		report.FinishedAt = time.Now().UTC()
	}()

	sources := make([]*db.DB, 0, len(opts.Inputs))
	defer func() {
		for _, s := range sources {
			s.Close()
		}
	}()
	for _, in := range opts.Inputs {
		src, err := db.OpenReadOnly(in)
		if err != nil {
			return report, fmt.Errorf("failed to open input %s: %w", in, err)
		}
		sources = append(sources, src)

		log.WithField("database", in).Info("checking consistency")
		check, err := verify.Verify(opts.Schema, src, verify.Options{Strict: true, Logger: log})
		report.InputChecks = append(report.InputChecks, check)
		if err != nil {
			return report, err
		}
	}

	if _, err := os.Stat(opts.Output); err == nil {
		log.WithField("output", opts.Output).Warn("output database exists and will be overwritten")
	} else if !errors.Is(err, os.ErrNotExist) {
		return report, fmt.Errorf("failed to stat output: %w", err)
	}

	log.WithFields(logrus.Fields{"from": opts.Inputs[0], "to": opts.Output}).Info("copying first input")
	if err := sources[0].CopyTo(opts.Output); err != nil {
		return report, err
	}

	out, err := db.Open(opts.Output)
	if err != nil {
		return report, fmt.Errorf("failed to open output: %w", err)
	}
	defer out.Close()

	if engine.opts.Mode == ModeCombine {
		if err := clearExcludedColumns(opts.Schema, out, log); err != nil {
			return report, err
		}
	}

	for _, src := range sources[1:] {
		sr, err := engine.Merge(src, out)
		report.Sources = append(report.Sources, sr)
		if err != nil {
			return report, fmt.Errorf("failed to merge %s: %w", src.Path(), err)
		}
	}

	fixes, err := db.FixSequenceDrifts(out, db.SequenceSpecs(opts.Schema))
	if err != nil {
		return report, err
	}
	report.SequenceFixes = fixes
	for _, f := range fixes {
		log.WithFields(logrus.Fields{"table": f.Table, "seq": f.SeqValue, "max_id": f.MaxID}).Info("raised sqlite_sequence")
	}

	log.WithField("database", opts.Output).Info("checking consistency")
	check, err := verify.Verify(opts.Schema, out, verify.Options{Strict: true, Logger: log})
	report.OutputCheck = check
	if err != nil {
		return report, err
	}

	return report, nil
}

// clearExcludedColumns applies column exclusion to the rows seeded from the
// first input, which never pass through the engine.
func clearExcludedColumns(s *schema.Schema, out *db.DB, log logrus.FieldLogger) error {
	for _, table := range s.Tables() {
		for _, col := range table.ExcludedColumns() {
			cols, err := out.Columns(table.Name())
			if err != nil {
				return err
			}
			if db.ColumnIndex(cols, col) < 0 {
				continue
			}
			n, err := out.ClearColumn(table.Name(), col)
			if err != nil {
				return err
			}
			log.WithFields(logrus.Fields{"table": table.Name(), "column": col, "rows": n}).Debug("cleared excluded column")
		}
	}
	return nil
}
