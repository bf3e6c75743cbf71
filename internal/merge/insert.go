package merge

import (
	"time"

	"github.com/lherron/msgmerge/internal/db"
	"github.com/sirupsen/logrus"
)

// chunkSize returns the rows per insert statement for the table.
func (tm *tableMerge) chunkSize() int {
	size := tm.engine.opts.BatchSize
	if limit := tm.table.MaxBatchSize(); limit > 0 && limit < size {
		size = limit
	}
	return size
}

// insert writes the prepared rows in order, chunk by chunk. A failing chunk is
// dropped on best-effort tables and aborts the merge everywhere else.
func (tm *tableMerge) insert() error {
	name := tm.table.Name()
	policy := tm.table.ConflictPolicy()
	size := tm.chunkSize()

	for chunk, start := 0, 0; start < len(tm.rows); chunk, start = chunk+1, start+size {
		end := start + size
		if end > len(tm.rows) {
			end = len(tm.rows)
		}
		batch := tm.rows[start:end]

		began := time.Now()
		n, err := tm.dest.Insert(name, tm.columns, batch, policy)
		tm.engine.metrics.observeBatch(name, len(batch), time.Since(began), err)

		if err != nil {
			if !tm.table.DropFailingBatches() {
				return &BatchInsertError{
					Table: name,
					Chunk: chunk,
					Size:  len(batch),
					Rows:  encodeRows(batch),
					Err:   err,
				}
			}
			tm.report.Failed += int64(len(batch))
			tm.report.FailedBatches = append(tm.report.FailedBatches, FailedBatch{
				Index: chunk,
				Size:  len(batch),
				Error: err.Error(),
			})
			tm.engine.metrics.addRows(name, OutcomeFailed, int64(len(batch)))
			tm.log.WithFields(logrus.Fields{
				"batch": chunk,
				"size":  len(batch),
			}).WithError(err).Warn("dropping failed batch")
			tm.log.WithField("rows", encodeRows(batch)).Debug("dropped rows")
			continue
		}

		skipped := int64(len(batch)) - n
		tm.report.Inserted += n
		tm.report.Skipped += skipped
		tm.engine.metrics.addRows(name, OutcomeInserted, n)
		tm.engine.metrics.addRows(name, OutcomeSkipped, skipped)
		tm.log.WithFields(logrus.Fields{
			"inserted": tm.report.Inserted,
			"total":    len(tm.rows),
		}).Debug("appended batch")
	}
	return nil
}

func encodeRows(rows []*db.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = db.EncodeRow(r)
	}
	return out
}
