package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lherron/msgmerge/internal/schema"
)

// SequenceSpec names a table whose AUTOINCREMENT counter should cover its
// largest identifier.
type SequenceSpec struct {
	Table    string
	IDColumn string
}

// SequenceDrift captures drift between sqlite_sequence and the max existing ID.
type SequenceDrift struct {
	Table    string `json:"table" yaml:"table"`
	MaxID    int64  `json:"max_id" yaml:"max_id"`
	SeqValue int64  `json:"seq_value" yaml:"seq_value"`
}

type sqlExecutor interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// SequenceSpecs returns one spec per identifier-carrying table of s.
func SequenceSpecs(s *schema.Schema) []SequenceSpec {
	var specs []SequenceSpec
	for _, t := range s.Tables() {
		if t.HasIdentifier() {
			specs = append(specs, SequenceSpec{Table: t.Name(), IDColumn: t.IDColumn()})
		}
	}
	return specs
}

// SequenceDrifts returns any sequences whose sqlite_sequence value is below the
// max existing ID. Tables without an AUTOINCREMENT counter are skipped.
func SequenceDrifts(exec sqlExecutor, specs []SequenceSpec) ([]SequenceDrift, error) {
	drifts := []SequenceDrift{}

	var hasSequences int
	err := exec.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'sqlite_sequence'").Scan(&hasSequences)
	if err != nil {
		return nil, fmt.Errorf("failed to check for sqlite_sequence: %w", err)
	}
	if hasSequences == 0 {
		return drifts, nil
	}

	for _, spec := range specs {
		seqValue, ok, err := currentSequence(exec, spec.Table)
		if err != nil {
			return nil, fmt.Errorf("failed to read sqlite_sequence for %s: %w", spec.Table, err)
		}
		if !ok {
			continue
		}

		maxID, err := maxExistingID(exec, spec)
		if err != nil {
			return nil, fmt.Errorf("failed to compute max ID for %s: %w", spec.Table, err)
		}

		if seqValue < maxID {
			drifts = append(drifts, SequenceDrift{
				Table:    spec.Table,
				MaxID:    maxID,
				SeqValue: seqValue,
			})
		}
	}

	return drifts, nil
}

// FixSequenceDrifts updates sqlite_sequence to match the max existing IDs.
// Returns the list of sequences that were updated.
func FixSequenceDrifts(exec sqlExecutor, specs []SequenceSpec) ([]SequenceDrift, error) {
	drifts, err := SequenceDrifts(exec, specs)
	if err != nil {
		return nil, err
	}

	for _, drift := range drifts {
		if _, err := exec.Exec("UPDATE sqlite_sequence SET seq = ? WHERE name = ?", drift.MaxID, drift.Table); err != nil {
			return nil, fmt.Errorf("failed to update sqlite_sequence for %s: %w", drift.Table, err)
		}
	}

	return drifts, nil
}

func maxExistingID(exec sqlExecutor, spec SequenceSpec) (int64, error) {
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", QuoteIdent(spec.IDColumn), QuoteIdent(spec.Table))
	var maxID int64
	if err := exec.QueryRow(query).Scan(&maxID); err != nil {
		return 0, err
	}
	return maxID, nil
}

func currentSequence(exec sqlExecutor, table string) (int64, bool, error) {
	var seq sql.NullInt64
	err := exec.QueryRow("SELECT seq FROM sqlite_sequence WHERE name = ?", table).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return seq.Int64, true, nil
}
