package merge

import (
	"errors"
	"testing"

	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/schema"
	"github.com/lherron/msgmerge/internal/testutil"
	"github.com/lherron/msgmerge/internal/verify"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingStore remembers the size of every insert it forwards.
type recordingStore struct {
	*db.DB
	batches []int
}

func (s *recordingStore) Insert(table string, columns []string, rows []*db.Row, policy schema.ConflictPolicy) (int64, error) {
	s.batches = append(s.batches, len(rows))
	return s.DB.Insert(table, columns, rows, policy)
}

func newEngine(t *testing.T, s *schema.Schema, opts Options) *Engine {
	t.Helper()
	e, err := NewEngine(s, opts)
	require.NoError(t, err)
	return e
}

func queryInts(t *testing.T, database *db.DB, query string) []*int64 {
	t.Helper()
	rows, err := database.Query(query)
	require.NoError(t, err)
	defer rows.Close()

	var out []*int64
	for rows.Next() {
		var v *int64
		require.NoError(t, rows.Scan(&v))
		out = append(out, v)
	}
	require.NoError(t, rows.Err())
	return out
}

func ptr(v int64) *int64 { return &v }

var keyedSchema = schema.NewBuilder("keyed").
	Table(schema.TableSpec{
		Name:    "t",
		HasID:   true,
		Uniques: [][]string{schema.Unique("k")},
	}).
	Table(schema.TableSpec{
		Name:  "c",
		HasID: true,
		Refs:  []schema.RefSpec{schema.Ref("t_id", "t")},
	}).
	MustBuild()

const (
	keyedT = `CREATE TABLE t (_id INTEGER PRIMARY KEY, k TEXT UNIQUE)`
	keyedC = `CREATE TABLE c (_id INTEGER PRIMARY KEY, t_id INTEGER)`
)

func TestMergeCollapsesDuplicatesOntoExistingRows(t *testing.T) {
	dest, _ := testutil.TempDB(t, keyedT, keyedC,
		`INSERT INTO t VALUES (1, 'a'), (2, 'b'), (3, 'c')`,
	)
	source, _ := testutil.TempDB(t, keyedT, keyedC,
		`INSERT INTO t VALUES (1, 'v'), (2, 'w'), (3, 'x'), (4, 'b'), (5, 'y')`,
		`INSERT INTO c VALUES (1, 4), (2, 5), (3, NULL), (4, 0)`,
	)

	metrics := NewMetrics()
	e := newEngine(t, keyedSchema, Options{Metrics: metrics})

	report, err := e.Merge(source, dest)
	require.NoError(t, err)
	require.Len(t, report.Tables, 2)

	assert.Equal(t, []int64{1, 2, 3, 5, 6, 7, 9}, testutil.IDs(t, dest, "t"))
	assert.Equal(t, []*int64{ptr(2), ptr(9), nil, ptr(0)},
		queryInts(t, dest, `SELECT t_id FROM c ORDER BY _id`))
	assert.Equal(t, []int64{2, 3, 4, 5}, testutil.IDs(t, dest, "c"))

	tr := report.Tables[0]
	assert.Equal(t, int64(5), tr.Processed)
	assert.Equal(t, int64(4), tr.Inserted)
	assert.Equal(t, int64(1), tr.Skipped)
	assert.Equal(t, int64(3), tr.Offset)
	assert.Equal(t, 1, tr.Overrides)
	assert.Equal(t, map[string]int{"k": 1}, tr.Duplicates)

	totals := report.Totals()
	assert.Equal(t, int64(9), totals.Processed)
	assert.Equal(t, int64(8), totals.Inserted)

	assert.Equal(t, float64(4), promtestutil.ToFloat64(metrics.rows.WithLabelValues("t", OutcomeInserted)))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(metrics.rows.WithLabelValues("t", OutcomeSkipped)))
	assert.Equal(t, float64(1), promtestutil.ToFloat64(metrics.duplicates.WithLabelValues("t", "k")))

	vr, err := verify.Verify(keyedSchema, dest, verify.Options{Strict: true})
	require.NoError(t, err)
	assert.True(t, vr.Consistent())
}

func TestMergeSelfReferencesUseOwnMapping(t *testing.T) {
	s := schema.NewBuilder("quotes").
		Table(schema.TableSpec{
			Name:  "q",
			HasID: true,
			Refs:  []schema.RefSpec{schema.Ref("quoted_row_id", "q")},
		}).
		MustBuild()
	ddl := `CREATE TABLE q (_id INTEGER PRIMARY KEY, quoted_row_id INTEGER)`

	dest, _ := testutil.TempDB(t, ddl, `INSERT INTO q VALUES (1, NULL), (2, 1)`)
	source, _ := testutil.TempDB(t, ddl, `INSERT INTO q VALUES (1, NULL), (2, 1), (3, 2)`)

	_, err := newEngine(t, s, Options{}).Merge(source, dest)
	require.NoError(t, err)

	assert.Equal(t, []*int64{nil, ptr(1), nil, ptr(4), ptr(5)},
		queryInts(t, dest, `SELECT quoted_row_id FROM q ORDER BY _id`))
	assert.Equal(t, []int64{1, 2, 4, 5, 6}, testutil.IDs(t, dest, "q"))
}

func TestMergeLeavesSentinelReferencesUntouched(t *testing.T) {
	s := schema.NewBuilder("sentinels").
		Table(schema.TableSpec{Name: "t", HasID: true}).
		Table(schema.TableSpec{
			Name:  "c",
			HasID: true,
			Refs:  []schema.RefSpec{schema.IgnoredRef("last_t_id", "t")},
		}).
		MustBuild()
	ddlT := `CREATE TABLE t (_id INTEGER PRIMARY KEY)`
	ddlC := `CREATE TABLE c (_id INTEGER PRIMARY KEY, last_t_id INTEGER)`

	dest, _ := testutil.TempDB(t, ddlT, ddlC, `INSERT INTO t VALUES (1), (2)`)
	source, _ := testutil.TempDB(t, ddlT, ddlC,
		`INSERT INTO t VALUES (1), (2)`,
		`INSERT INTO c VALUES (1, -1), (2, 0), (3, NULL), (4, 2)`,
	)

	_, err := newEngine(t, s, Options{}).Merge(source, dest)
	require.NoError(t, err)

	// Only the positive id follows the mapping (offset 2).
	assert.Equal(t, []*int64{ptr(-1), ptr(0), nil, ptr(5)},
		queryInts(t, dest, `SELECT last_t_id FROM c ORDER BY _id`))
}

func TestMergeAbortStopsBeforeLaterTables(t *testing.T) {
	s := schema.NewBuilder("abort").
		Table(schema.TableSpec{Name: "a", HasID: true, Policy: schema.ConflictAbort}).
		Table(schema.TableSpec{Name: "b", HasID: true}).
		MustBuild()
	ddl := []string{
		`CREATE TABLE a (_id INTEGER PRIMARY KEY, k TEXT UNIQUE)`,
		`CREATE TABLE b (_id INTEGER PRIMARY KEY, v TEXT)`,
	}

	dest, _ := testutil.TempDB(t, append(ddl, `INSERT INTO a VALUES (1, 'dup')`)...)
	source, _ := testutil.TempDB(t, append(ddl,
		`INSERT INTO a VALUES (1, 'p'), (2, 'q'), (3, 'dup'), (4, 'r'), (5, 's')`,
		`INSERT INTO b VALUES (1, 'x'), (2, 'y')`,
	)...)

	report, err := newEngine(t, s, Options{BatchSize: 2}).Merge(source, dest)
	require.Error(t, err)

	var batchErr *BatchInsertError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, "a", batchErr.Table)
	assert.Equal(t, 1, batchErr.Chunk)
	assert.Equal(t, 2, batchErr.Size)
	assert.Len(t, batchErr.Rows, 2)
	assert.True(t, db.IsConstraintError(err))

	// The first chunk stays committed; nothing reaches b.
	assert.Equal(t, int64(3), testutil.Count(t, dest, "a"))
	assert.Equal(t, int64(0), testutil.Count(t, dest, "b"))
	require.Len(t, report.Tables, 1)
	assert.Equal(t, int64(2), report.Tables[0].Inserted)
}

func TestMergeDropsFailingBatches(t *testing.T) {
	s := schema.NewBuilder("thumbs").
		Table(schema.TableSpec{
			Name:               "thumbs",
			MaxBatch:           2,
			DropFailingBatches: true,
			Policy:             schema.ConflictAbort,
		}).
		Table(schema.TableSpec{Name: "after", HasID: true}).
		MustBuild()
	ddl := []string{
		`CREATE TABLE thumbs (k TEXT UNIQUE, data BLOB)`,
		`CREATE TABLE after (_id INTEGER PRIMARY KEY)`,
	}

	dest, _ := testutil.TempDB(t, append(ddl, `INSERT INTO thumbs VALUES ('dup', X'01')`)...)
	source, _ := testutil.TempDB(t, append(ddl,
		`INSERT INTO thumbs VALUES ('a', X'00'), ('b', NULL), ('dup', X'02'), ('c', NULL), ('d', X'FF')`,
		`INSERT INTO after VALUES (1)`,
	)...)

	store := &recordingStore{DB: dest}
	report, err := newEngine(t, s, Options{BatchSize: 500}).Merge(source, store)
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1, 1}, store.batches)
	// Source had 5 rows and the failing batch held 2.
	assert.Equal(t, int64(1+3), testutil.Count(t, dest, "thumbs"))
	assert.Equal(t, int64(1), testutil.Count(t, dest, "after"))

	tr := report.Tables[0]
	assert.Equal(t, int64(3), tr.Inserted)
	assert.Equal(t, int64(2), tr.Failed)
	require.Len(t, tr.FailedBatches, 1)
	assert.Equal(t, FailedBatch{Index: 1, Size: 2, Error: tr.FailedBatches[0].Error}, tr.FailedBatches[0])
}

func TestMergeClearsExcludedColumns(t *testing.T) {
	s := schema.NewBuilder("excl").
		Table(schema.TableSpec{Name: "props", HasID: true, Excludes: []string{"device_state"}}).
		MustBuild()
	ddl := `CREATE TABLE props (_id INTEGER PRIMARY KEY, name TEXT, device_state TEXT)`

	dest, _ := testutil.TempDB(t, ddl)
	source, _ := testutil.TempDB(t, ddl, `INSERT INTO props VALUES (1, 'x', 'secret'), (2, 'y', NULL), (3, 'z', 'other')`)

	_, err := newEngine(t, s, Options{}).Merge(source, dest)
	require.NoError(t, err)

	n, err := dest.Count("props", "device_state IS NOT NULL")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.Equal(t, int64(3), testutil.Count(t, dest, "props"))
}

func TestMergeDropsExtraSourceColumns(t *testing.T) {
	s := schema.NewBuilder("skew").
		Table(schema.TableSpec{Name: "jid", HasID: true}).
		MustBuild()

	dest, _ := testutil.TempDB(t, `CREATE TABLE jid (_id INTEGER PRIMARY KEY, server TEXT, raw_string TEXT)`)
	source, _ := testutil.TempDB(t,
		`CREATE TABLE jid (_id INTEGER PRIMARY KEY, raw_string TEXT, added_later TEXT, server TEXT)`,
		`INSERT INTO jid VALUES (1, 'a@s', 'new', 's')`,
	)

	report, err := newEngine(t, s, Options{}).Merge(source, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{"added_later"}, report.Tables[0].DroppedColumns)

	rows, err := dest.QueryAll("jid", "")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, db.Text("s"), rows[0].Get(1))
	assert.Equal(t, db.Text("a@s"), rows[0].Get(2))
}

func TestMergeRejectsIncompatibleColumns(t *testing.T) {
	s := schema.NewBuilder("skew").
		Table(schema.TableSpec{Name: "jid", HasID: true}).
		MustBuild()

	dest, _ := testutil.TempDB(t, `CREATE TABLE jid (_id INTEGER PRIMARY KEY, raw_string TEXT, only_dest TEXT)`)
	source, _ := testutil.TempDB(t, `CREATE TABLE jid (_id INTEGER PRIMARY KEY, raw_string TEXT)`)

	_, err := newEngine(t, s, Options{}).Merge(source, dest)
	var mismatch *SchemaMismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, "jid", mismatch.Table)
	assert.Contains(t, mismatch.Diff(), "-only_dest")
	assert.Contains(t, mismatch.Error(), dest.Path())
}

func TestMergeMissingTable(t *testing.T) {
	dest, _ := testutil.TempDB(t, keyedT, keyedC)
	source, _ := testutil.TempDB(t, keyedT)

	report, err := newEngine(t, keyedSchema, Options{}).Merge(source, dest)
	var missing *db.MissingTableError
	require.True(t, errors.As(err, &missing), "got %v", err)
	assert.Equal(t, "c", missing.Table)
	assert.Equal(t, source.Path(), missing.Database)
	assert.Len(t, report.Tables, 2)
}

func TestMergeAppendModeInsertsRowsUnmodified(t *testing.T) {
	dest, _ := testutil.TempDB(t, keyedT, keyedC,
		`INSERT INTO t VALUES (1, 'a'), (2, 'b'), (3, 'c')`,
	)
	source, _ := testutil.TempDB(t, keyedT, keyedC,
		`INSERT INTO t VALUES (1, 'z'), (4, 'd'), (5, 'b')`,
		`INSERT INTO c VALUES (1, 4)`,
	)

	report, err := newEngine(t, keyedSchema, Options{Mode: ModeAppend}).Merge(source, dest)
	require.NoError(t, err)

	// Only id 4 survives: id 1 and k 'b' both already exist.
	assert.Equal(t, []int64{1, 2, 3, 4}, testutil.IDs(t, dest, "t"))
	assert.Equal(t, []*int64{ptr(4)}, queryInts(t, dest, `SELECT t_id FROM c`))
	assert.Equal(t, int64(2), report.Tables[0].Skipped)
	assert.Zero(t, report.Tables[0].Offset)
}

func TestChunkSizeHonoursTableLimit(t *testing.T) {
	s := schema.NewBuilder("limits").
		Table(schema.TableSpec{Name: "small", HasID: true, MaxBatch: 2}).
		Table(schema.TableSpec{Name: "big", HasID: true}).
		MustBuild()
	ddl := []string{
		`CREATE TABLE small (_id INTEGER PRIMARY KEY)`,
		`CREATE TABLE big (_id INTEGER PRIMARY KEY)`,
	}

	dest, _ := testutil.TempDB(t, ddl...)
	source, _ := testutil.TempDB(t, append(ddl,
		`INSERT INTO small VALUES (1), (2), (3)`,
		`INSERT INTO big VALUES (1), (2), (3), (4), (5), (6), (7)`,
	)...)

	store := &recordingStore{DB: dest}
	_, err := newEngine(t, s, Options{BatchSize: 3}).Merge(source, store)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 3, 3, 1}, store.batches)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeCombine, m)

	m, err = ParseMode("APPEND")
	require.NoError(t, err)
	assert.Equal(t, ModeAppend, m)

	_, err = ParseMode("replace")
	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))

	_, err = NewEngine(keyedSchema, Options{BatchSize: -1})
	assert.True(t, errors.As(err, &cfgErr))
}
