package merge

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/schema"
	"github.com/lherron/msgmerge/internal/testutil"
	"github.com/lherron/msgmerge/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChatStore(t *testing.T, dir, name string, seed ...string) string {
	t.Helper()
	database, path := testutil.NewDB(t, dir, name, testutil.SchemaDDL(schema.March2022)...)
	testutil.Exec(t, database, seed...)
	require.NoError(t, database.Close())
	return path
}

func TestRunMergesInputsIntoOutput(t *testing.T) {
	root := t.TempDir()
	input := filepath.Join(root, "input")
	output := filepath.Join(root, "output", "msgstore.db")

	first := newChatStore(t, input, "a.db",
		`INSERT INTO jid (_id, raw_string) VALUES (1, 'alice'), (2, 'bob')`,
		`INSERT INTO messages (_id, timestamp) VALUES (1, 100), (2, 200)`,
		`INSERT INTO chat (_id, jid_row_id, last_message_row_id) VALUES (1, 1, 2)`,
	)
	second := newChatStore(t, input, "b.db",
		`INSERT INTO jid (_id, raw_string) VALUES (1, 'bob'), (2, 'carol')`,
		`INSERT INTO messages (_id, timestamp) VALUES (1, 300), (2, 400), (3, 500)`,
		`INSERT INTO chat (_id, jid_row_id, last_message_row_id) VALUES (1, 1, 3), (2, 2, 1)`,
	)

	report, err := Run(RunOptions{
		Schema: schema.March2022,
		Inputs: []string{first, second},
		Output: output,
		RunID:  "test-run",
	})
	require.NoError(t, err)

	assert.Equal(t, "test-run", report.RunID)
	assert.Equal(t, "march2022", report.Schema)
	assert.Equal(t, ModeCombine, report.Mode)
	assert.Equal(t, DefaultBatchSize, report.BatchSize)
	assert.Len(t, report.InputChecks, 2)
	require.Len(t, report.Sources, 1)
	require.NotNil(t, report.OutputCheck)
	assert.True(t, report.OutputCheck.Consistent())
	assert.False(t, report.FinishedAt.IsZero())

	out, err := db.OpenReadOnly(output)
	require.NoError(t, err)
	defer out.Close()

	// bob collapses onto the existing row; carol lands past the offset.
	assert.Equal(t, []int64{1, 2, 5}, testutil.IDs(t, out, "jid"))
	assert.Equal(t, []int64{1, 2, 4, 5, 6}, testutil.IDs(t, out, "messages"))

	rows, err := out.Query(`SELECT _id, jid_row_id, last_message_row_id FROM chat ORDER BY _id`)
	require.NoError(t, err)
	defer rows.Close()
	var got [][3]int64
	for rows.Next() {
		var r [3]int64
		require.NoError(t, rows.Scan(&r[0], &r[1], &r[2]))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, [][3]int64{{1, 1, 2}, {3, 2, 6}, {4, 5, 4}}, got)

	jid := report.Sources[0].Tables[0]
	assert.Equal(t, "jid", jid.Table)
	assert.Equal(t, map[string]int{"raw_string": 1}, jid.Duplicates)
}

func TestRunCopyOnlyOutputIsConsistent(t *testing.T) {
	dir := t.TempDir()
	only := newChatStore(t, dir, "only.db",
		`INSERT INTO jid (_id, raw_string) VALUES (1, 'alice')`,
		`INSERT INTO messages (_id, timestamp) VALUES (1, 100)`,
		`INSERT INTO chat (_id, jid_row_id, display_message_row_id, last_read_receipt_sent_message_row_id) VALUES (1, 1, 1, -1)`,
	)

	src, err := db.OpenReadOnly(only)
	require.NoError(t, err)
	defer src.Close()

	out := filepath.Join(dir, "out", "msgstore.db")
	require.NoError(t, src.CopyTo(out))

	copied, err := db.OpenReadOnly(out)
	require.NoError(t, err)
	defer copied.Close()

	report, err := verify.Verify(schema.March2022, copied, verify.Options{Strict: true})
	require.NoError(t, err)
	// The sentinel in an ignored reference is only a warning.
	require.Len(t, report.Violations(), 1)
	assert.True(t, report.Violations()[0].Ignored)
}

func TestRunRejectsBadInputSets(t *testing.T) {
	dir := t.TempDir()
	a := newChatStore(t, dir, "a.db")

	tests := []struct {
		name   string
		inputs []string
		output string
	}{
		{"no inputs", nil, filepath.Join(dir, "out.db")},
		{"single input", []string{a}, filepath.Join(dir, "out.db")},
		{"output is an input", []string{a, a}, a},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(RunOptions{Schema: schema.March2022, Inputs: tt.inputs, Output: tt.output})
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestRunStopsOnInconsistentInput(t *testing.T) {
	root := t.TempDir()
	good := newChatStore(t, root, "good.db")
	bad := newChatStore(t, root, "bad.db",
		`INSERT INTO jid (_id, raw_string) VALUES (1, 'alice')`,
		`INSERT INTO chat (_id, jid_row_id) VALUES (1, 7)`,
	)
	output := filepath.Join(root, "output", "msgstore.db")

	report, err := Run(RunOptions{Schema: schema.March2022, Inputs: []string{good, bad}, Output: output})

	var consErr *verify.ConsistencyError
	require.True(t, errors.As(err, &consErr), "got %v", err)
	assert.Equal(t, "chat", consErr.Result.Table)
	assert.Equal(t, []string{"7"}, consErr.Result.Missing)
	assert.Len(t, report.InputChecks, 2)

	_, statErr := os.Stat(output)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "output must not be written")
}
