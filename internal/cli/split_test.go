package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/lherron/msgmerge/internal/db"
	"github.com/lherron/msgmerge/internal/split"
	"github.com/lherron/msgmerge/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countRows(t *testing.T, path, table string) int64 {
	t.Helper()
	database, err := db.OpenReadOnly(path)
	require.NoError(t, err)
	defer database.Close()
	return testutil.Count(t, database, table)
}

func TestSplitCommandWritesCopy(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	src := newChatStore(t, dir, "full.db",
		`INSERT INTO messages (_id, timestamp) VALUES (1, 100), (2, 200), (3, 300)`,
		`INSERT INTO messages_quotes (_id, timestamp) VALUES (1, 50)`,
		`INSERT INTO jid (_id, raw_string) VALUES (1, 'alice')`,
	)
	dst := filepath.Join(dir, "recent.db")

	out, _, err := execute(t, "split", src, "--before", "250", "--output", dst, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 3 rows older than 1970-01-01T00:00:00Z from "+dst)

	assert.Equal(t, int64(3), countRows(t, src, "messages"))
	assert.Equal(t, int64(1), countRows(t, dst, "messages"))
	assert.Equal(t, int64(0), countRows(t, dst, "messages_quotes"))
	assert.Equal(t, int64(1), countRows(t, dst, "jid"))
}

func TestSplitCommandInPlaceJSON(t *testing.T) {
	isolate(t)
	src := newChatStore(t, t.TempDir(), "full.db",
		`INSERT INTO messages (_id, timestamp) VALUES (1, 100), (2, 86400000)`,
	)

	out, _, err := execute(t, "split", src, "--before", "1970-01-02", "--json", "--log-level", "error")
	require.NoError(t, err)

	var result split.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, src, result.Database)
	assert.Equal(t, int64(86400000), result.Before)
	assert.Equal(t, int64(1), result.Deleted())
	assert.Equal(t, int64(1), countRows(t, src, "messages"))
}

func TestSplitCommandValidation(t *testing.T) {
	isolate(t)
	src := newChatStore(t, t.TempDir(), "full.db")

	_, _, err := execute(t, "split", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "before" not set`)

	_, _, err = execute(t, "split", src, "--before", "soon")
	require.Error(t, err)
	assert.Equal(t, exitUsage, ExitCode(err))

	_, _, err = execute(t, "split", src, "--before", "1", "--output", src)
	require.Error(t, err)
	assert.Equal(t, exitUsage, ExitCode(err))
}
