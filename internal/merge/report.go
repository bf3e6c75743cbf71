package merge

import (
	"time"

	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/verify"
)

// Report describes a complete run: consistency of the inputs, every merged
// source, and the final state of the output.
type Report struct {
	RunID         string             `json:"run_id" yaml:"run_id"`
	Schema        string             `json:"schema" yaml:"schema"`
	Mode          Mode               `json:"mode" yaml:"mode"`
	BatchSize     int                `json:"batch_size" yaml:"batch_size"`
	Inputs        []string           `json:"inputs" yaml:"inputs"`
	Output        string             `json:"output" yaml:"output"`
	StartedAt     time.Time          `json:"started_at" yaml:"started_at"`
	FinishedAt    time.Time          `json:"finished_at" yaml:"finished_at"`
	InputChecks   []*verify.Report   `json:"input_checks" yaml:"input_checks"`
	Sources       []*SourceReport    `json:"sources" yaml:"sources"`
	SequenceFixes []db.SequenceDrift `json:"sequence_fixes,omitempty" yaml:"sequence_fixes,omitempty"`
	OutputCheck   *verify.Report     `json:"output_check,omitempty" yaml:"output_check,omitempty"`
}

// Totals sums the counts of every merged source.
func (r *Report) Totals() Counts {
	var c Counts
	for _, s := range r.Sources {
		c.add(s.Totals())
	}
	return c
}

// Counts tallies rows by outcome.
type Counts struct {
	Processed int64 `json:"processed" yaml:"processed"`
	Inserted  int64 `json:"inserted" yaml:"inserted"`
	Skipped   int64 `json:"skipped" yaml:"skipped"`
	Failed    int64 `json:"failed" yaml:"failed"`
}

func (c *Counts) add(o Counts) {
	c.Processed += o.Processed
	c.Inserted += o.Inserted
	c.Skipped += o.Skipped
	c.Failed += o.Failed
}

// SourceReport covers the merge of one source database into the output.
type SourceReport struct {
	Source string         `json:"source" yaml:"source"`
	Tables []*TableReport `json:"tables" yaml:"tables"`
}

// Totals sums the counts of every table of the source.
func (s *SourceReport) Totals() Counts {
	var c Counts
	for _, t := range s.Tables {
		c.add(t.Counts)
	}
	return c
}

// TableReport covers one table of one source.
type TableReport struct {
	Table  string `json:"table" yaml:"table"`
	Counts `yaml:",inline"`

	// Offset is the destination's largest identifier before the merge.
	Offset         int64          `json:"offset,omitempty" yaml:"offset,omitempty"`
	Overrides      int            `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	DroppedColumns []string       `json:"dropped_columns,omitempty" yaml:"dropped_columns,omitempty"`
	Duplicates     map[string]int `json:"duplicates,omitempty" yaml:"duplicates,omitempty"`
	FailedBatches  []FailedBatch  `json:"failed_batches,omitempty" yaml:"failed_batches,omitempty"`
}

// FailedBatch records a chunk dropped from a best-effort table.
type FailedBatch struct {
	Index int    `json:"index" yaml:"index"`
	Size  int    `json:"size" yaml:"size"`
	Error string `json:"error" yaml:"error"`
}
